package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Kitbitz/haveekos/db"
	"github.com/Kitbitz/haveekos/models"
	"github.com/Kitbitz/haveekos/services"

	"github.com/jackc/pgx/v5/pgconn"
)

// Channel is the Postgres notification channel the schema triggers fire
// on. The payload is the changed table's name.
const Channel = "haveekos_changes"

// Snapshot is the full application state pushed to subscribers. Streams
// are replaced wholesale on every change; a stream that failed to load
// keeps its previous value and records the failure in Errors.
type Snapshot struct {
	Orders       []models.Order
	MenuItems    []models.MenuItem
	Colors       []models.CategoryColor
	GCash        *models.GCashSettings
	Announcement *models.AnnouncementSettings
	AutoExport   *models.AutoExportSettings
	Errors       map[string]error
	At           time.Time
}

// Notifier is the slice of a LISTEN connection the provider needs.
type Notifier interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// Connector opens a fresh LISTEN connection.
type Connector func(ctx context.Context) (Notifier, error)

// Loaders reload one stream each. Zero fields fall back to the service
// layer.
type Loaders struct {
	Orders       func(ctx context.Context) ([]models.Order, error)
	MenuItems    func(ctx context.Context) ([]models.MenuItem, error)
	Colors       func(ctx context.Context) ([]models.CategoryColor, error)
	GCash        func(ctx context.Context) (*models.GCashSettings, error)
	Announcement func(ctx context.Context) (*models.AnnouncementSettings, error)
	AutoExport   func(ctx context.Context) (*models.AutoExportSettings, error)
}

func (l Loaders) withDefaults() Loaders {
	if l.Orders == nil {
		l.Orders = services.GetOrders
	}
	if l.MenuItems == nil {
		l.MenuItems = services.ListMenuItems
	}
	if l.Colors == nil {
		l.Colors = services.AllCategoryColors
	}
	if l.GCash == nil {
		l.GCash = services.GetGCashSettings
	}
	if l.Announcement == nil {
		l.Announcement = services.GetAnnouncement
	}
	if l.AutoExport == nil {
		l.AutoExport = services.GetAutoExportSettings
	}
	return l
}

// Provider keeps an in-memory snapshot of every stream current by
// listening for table-change notifications, and fans snapshots out to
// subscribers. One notification reloads only the named table's stream.
type Provider struct {
	log     *slog.Logger
	connect Connector
	load    Loaders
	redial  time.Duration

	mu         sync.Mutex
	snap       Snapshot
	subs       map[int]chan Snapshot
	nextSub    int
	offline    bool
	refreshing bool
	conn       Notifier
	wake       chan struct{}
}

func NewProvider(connect Connector, load Loaders, log *slog.Logger) *Provider {
	if connect == nil {
		connect = func(ctx context.Context) (Notifier, error) {
			return db.Listen(ctx, Channel)
		}
	}
	return &Provider{
		log:     log,
		connect: connect,
		load:    load.withDefaults(),
		redial:  5 * time.Second,
		snap:    Snapshot{Errors: map[string]error{}},
		subs:    map[int]chan Snapshot{},
		wake:    make(chan struct{}, 1),
	}
}

// Subscribe registers a snapshot channel. The current snapshot is
// delivered immediately; afterwards each published snapshot replaces any
// undelivered one, so a slow reader always gets the latest state. The
// returned cancel func must be called to release the subscription.
func (p *Provider) Subscribe() (<-chan Snapshot, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	ch := make(chan Snapshot, 1)
	ch <- p.snap
	p.subs[id] = ch
	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// Snapshot returns the current state.
func (p *Provider) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

// GoOffline drops the LISTEN connection and stops refreshing until
// GoOnline is called. The last snapshot stays visible.
func (p *Provider) GoOffline(ctx context.Context) {
	p.mu.Lock()
	p.offline = true
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()
	if conn != nil {
		_ = conn.Close(ctx)
	}
	p.log.Info("realtime provider offline")
}

// GoOnline resumes listening after GoOffline.
func (p *Provider) GoOnline() {
	p.mu.Lock()
	p.offline = false
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
	p.log.Info("realtime provider online")
}

// Refresh reloads every stream immediately. A Refresh arriving while one
// is already running is dropped rather than queued.
func (p *Provider) Refresh(ctx context.Context) {
	p.mu.Lock()
	if p.refreshing {
		p.mu.Unlock()
		return
	}
	p.refreshing = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.refreshing = false
		p.mu.Unlock()
	}()

	p.reloadAll(ctx)
	p.publish()
}

// Run blocks until ctx is cancelled, maintaining the LISTEN connection
// and reloading streams as notifications arrive.
func (p *Provider) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if p.isOffline() {
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
			}
			continue
		}

		conn, err := p.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error("realtime listen failed", "error", err)
			p.sleep(ctx, p.redial)
			continue
		}
		p.mu.Lock()
		p.conn = conn
		p.mu.Unlock()

		p.reloadAll(ctx)
		p.publish()
		p.listen(ctx, conn)

		p.mu.Lock()
		if p.conn == conn {
			p.conn = nil
		}
		p.mu.Unlock()
		_ = conn.Close(context.Background())

		if ctx.Err() == nil && !p.isOffline() {
			p.sleep(ctx, p.redial)
		}
	}
}

func (p *Provider) listen(ctx context.Context, conn Notifier) {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil && !p.isOffline() {
				p.log.Error("realtime notification wait failed", "error", err)
			}
			return
		}
		p.reloadStream(ctx, n.Payload)
		p.publish()
	}
}

func (p *Provider) isOffline() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offline
}

func (p *Provider) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (p *Provider) reloadAll(ctx context.Context) {
	p.reloadStream(ctx, "orders")
	p.reloadStream(ctx, "menu_items")
	p.reloadStream(ctx, "category_colors")
	p.reloadStream(ctx, "settings")
}

// reloadStream replaces one stream by table name. Unknown tables are
// ignored so schema additions cannot break running providers.
func (p *Provider) reloadStream(ctx context.Context, table string) {
	var err error
	var apply func(*Snapshot)

	switch table {
	case "orders":
		var orders []models.Order
		if orders, err = p.load.Orders(ctx); err == nil {
			apply = func(s *Snapshot) { s.Orders = orders }
		}
	case "menu_items":
		var items []models.MenuItem
		if items, err = p.load.MenuItems(ctx); err == nil {
			apply = func(s *Snapshot) { s.MenuItems = items }
		}
	case "category_colors":
		var colors []models.CategoryColor
		if colors, err = p.load.Colors(ctx); err == nil {
			apply = func(s *Snapshot) { s.Colors = colors }
		}
	case "settings":
		var gcash *models.GCashSettings
		var ann *models.AnnouncementSettings
		var auto *models.AutoExportSettings
		if gcash, err = p.load.GCash(ctx); err == nil {
			if ann, err = p.load.Announcement(ctx); err == nil {
				auto, err = p.load.AutoExport(ctx)
			}
		}
		if err == nil {
			apply = func(s *Snapshot) {
				s.GCash = gcash
				s.Announcement = ann
				s.AutoExport = auto
			}
		}
	default:
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	errs := make(map[string]error, len(p.snap.Errors))
	for k, v := range p.snap.Errors {
		errs[k] = v
	}
	if err != nil {
		p.log.Error("realtime stream reload failed", "table", table, "error", err)
		errs[table] = err
	} else {
		delete(errs, table)
		apply(&p.snap)
	}
	p.snap.Errors = errs
	p.snap.At = time.Now()
}

func (p *Provider) publish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- p.snap:
		default:
			// Drop the stale undelivered snapshot for this reader.
			select {
			case <-ch:
			default:
			}
			ch <- p.snap
		}
	}
}
