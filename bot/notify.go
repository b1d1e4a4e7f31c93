package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Kitbitz/haveekos/config"
	"github.com/Kitbitz/haveekos/models"
	"github.com/Kitbitz/haveekos/realtime"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of the Telegram API the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier pushes order activity to the staff Telegram chat. It watches
// provider snapshots: new orders and status changes since the previous
// snapshot become messages. The first snapshot only seeds the known set,
// so a restart does not replay the whole history.
type Notifier struct {
	api    Sender
	chatID int64
	log    *slog.Logger

	seeded bool
	known  map[string]string // order id -> last seen status
}

func NewNotifier(cfg config.TelegramConfig, log *slog.Logger) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(cfg.MessageToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &Notifier{api: api, chatID: cfg.AdminChatID, log: log}, nil
}

// Run consumes snapshots until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context, provider *realtime.Provider) {
	snapshots, cancel := provider.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-snapshots:
			n.handle(snap)
		}
	}
}

func (n *Notifier) handle(snap realtime.Snapshot) {
	if !n.seeded {
		n.known = make(map[string]string, len(snap.Orders))
		for _, o := range snap.Orders {
			n.known[o.ID] = o.Status
		}
		n.seeded = true
		return
	}

	seen := make(map[string]string, len(snap.Orders))
	for _, o := range snap.Orders {
		seen[o.ID] = o.Status
		prev, ok := n.known[o.ID]
		if !ok {
			n.send(newOrderMessage(o))
		} else if prev != o.Status {
			n.send(fmt.Sprintf("Order from %s is now %s", o.Name, o.Status))
		}
	}
	n.known = seen
}

func (n *Notifier) send(text string) {
	if _, err := n.api.Send(tgbotapi.NewMessage(n.chatID, text)); err != nil {
		n.log.Error("telegram notification failed", "error", err)
	}
}

func newOrderMessage(o models.Order) string {
	return fmt.Sprintf("New order from %s\n%s\nTotal: %d (%s)",
		o.Name, o.OrderChoice, o.TotalPrice, o.PaymentMethod)
}
