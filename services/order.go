package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Kitbitz/haveekos/db"
	"github.com/Kitbitz/haveekos/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OrderSyncer mirrors committed order changes into the spreadsheet. All
// calls made through it here are best-effort: the order is already durable
// and a sync failure is logged, never surfaced.
type OrderSyncer interface {
	SyncOrder(ctx context.Context, order models.Order) error
	SyncDeletions(ctx context.Context, orderIDs []string) error
}

var itemLineRe = regexp.MustCompile(`^(\d+)x\s+(.+)$`)

// ParseOrderItems splits the free-text order description into lines.
// Entries that do not match "<qty>x <name>" are skipped; a duplicated item
// name keeps its first position but takes the last quantity.
func ParseOrderItems(orderChoice string) []models.OrderLine {
	var lines []models.OrderLine
	index := map[string]int{}
	for _, entry := range strings.Split(orderChoice, ",") {
		m := itemLineRe.FindStringSubmatch(strings.TrimSpace(entry))
		if m == nil {
			continue
		}
		qty, err := strconv.Atoi(m[1])
		if err != nil || qty <= 0 {
			continue
		}
		name := m[2]
		if i, ok := index[name]; ok {
			lines[i].Qty = qty
			continue
		}
		index[name] = len(lines)
		lines = append(lines, models.OrderLine{Item: name, Qty: qty})
	}
	return lines
}

// CreateOrder validates the submission, then in a single transaction
// verifies stock, decrements each item's quantity, increments its total
// sold, and inserts the order. Either everything commits or nothing does.
// The sheet push happens after the commit and cannot fail the order.
func CreateOrder(ctx context.Context, input models.CreateOrderInput, sync OrderSyncer) (*models.Order, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, validationErr("name is required")
	}
	choice := strings.TrimSpace(input.OrderChoice)
	if choice == "" {
		return nil, validationErr("order items are required")
	}
	method := input.PaymentMethod
	if method == "" {
		method = models.PaymentMethodCash
	}
	if !models.ValidPaymentMethod(method) {
		return nil, validationErr("unknown payment method: " + method)
	}
	lines := ParseOrderItems(choice)
	if len(lines) == 0 {
		return nil, validationErr("order items are required")
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin order transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock rows first and fail before touching any quantity, so a stock or
	// not-found error never leaves a partial decrement behind.
	type locked struct {
		id       string
		price    int64
		quantity int
	}
	held := make([]locked, len(lines))
	for i, line := range lines {
		var l locked
		err := tx.QueryRow(ctx, `
			SELECT id, price, quantity FROM menu_items
			WHERE name = $1
			FOR UPDATE`,
			line.Item,
		).Scan(&l.id, &l.price, &l.quantity)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Kind: "menu item", IDs: []string{line.Item}}
		}
		if err != nil {
			return nil, fmt.Errorf("look up menu item %q: %w", line.Item, err)
		}
		if l.quantity < line.Qty {
			return nil, &StockError{Item: line.Item}
		}
		held[i] = l
	}

	var total int64
	for i, line := range lines {
		total += held[i].price * int64(line.Qty)
		if _, err := tx.Exec(ctx, `
			UPDATE menu_items SET
				quantity = quantity - $1,
				total_sold = total_sold + $1,
				updated_at = now()
			WHERE id = $2`,
			line.Qty, held[i].id,
		); err != nil {
			return nil, fmt.Errorf("decrement stock for %q: %w", line.Item, err)
		}
	}
	if input.TotalPrice != 0 && input.TotalPrice != total {
		return nil, validationErr(fmt.Sprintf("total price mismatch: submitted %d, items sum to %d", input.TotalPrice, total))
	}

	order := models.Order{
		ID:            uuid.NewString(),
		Name:          name,
		ContactNumber: strings.TrimSpace(input.ContactNumber),
		Email:         strings.TrimSpace(input.Email),
		OrderChoice:   choice,
		TotalPrice:    total,
		PaymentMethod: method,
		Status:        models.OrderStatusPending,
		PlacedMS:      time.Now().UnixMilli(),
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO orders (
			id, name, contact_number, email, order_choice,
			total_price, payment_method, status, is_paid, placed_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		order.ID, order.Name, order.ContactNumber, order.Email, order.OrderChoice,
		order.TotalPrice, order.PaymentMethod, order.Status, order.IsPaid, order.PlacedMS,
	); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit order: %w", err)
	}

	syncOrderBestEffort(sync, order)
	return &order, nil
}

// syncOrderBestEffort pushes a committed order to the sheet in the
// background. The order is already durable; failures only get logged.
func syncOrderBestEffort(sync OrderSyncer, order models.Order) {
	if sync == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := sync.SyncOrder(ctx, order); err != nil {
			slog.Error("failed to sync order to sheet", "order", order.ID, "error", err)
		}
	}()
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.Name, &o.ContactNumber, &o.Email, &o.OrderChoice,
		&o.TotalPrice, &o.PaymentMethod, &o.Status, &o.IsPaid,
		&o.PlacedMS, &o.StatusMS, &o.PaymentMS,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

const orderColumns = `
	id, name, contact_number, email, order_choice,
	total_price, payment_method, status, is_paid,
	placed_ms, status_ms, payment_ms`

// GetOrders returns every order, newest first.
func GetOrders(ctx context.Context) ([]models.Order, error) {
	return queryOrders(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY placed_ms DESC`)
}

// GetOrdersInRange returns orders placed within [fromMS, toMS], newest first.
func GetOrdersInRange(ctx context.Context, fromMS, toMS int64) ([]models.Order, error) {
	return queryOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE placed_ms >= $1 AND placed_ms <= $2
		ORDER BY placed_ms DESC`,
		fromMS, toMS)
}

func GetOrder(ctx context.Context, id string) (*models.Order, error) {
	o, err := scanOrder(db.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Kind: "order", IDs: []string{id}}
	}
	return o, err
}

func queryOrders(ctx context.Context, sql string, args ...interface{}) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}
