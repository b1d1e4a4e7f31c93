package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Kitbitz/haveekos/db"
	"github.com/Kitbitz/haveekos/models"

	"github.com/jackc/pgx/v5"
)

// deleteBatchSize bounds one DELETE statement during bulk deletion.
const deleteBatchSize = 500

// UpdateOrderStatus sets an order's status and stamps the status-change
// time, then best-effort syncs the updated row to the sheet.
func UpdateOrderStatus(ctx context.Context, id, status string, sync OrderSyncer) (*models.Order, error) {
	if id == "" {
		return nil, validationErr("invalid order ID")
	}
	if !models.ValidOrderStatus(status) {
		return nil, validationErr("unknown order status: " + status)
	}

	o, err := scanOrder(db.Pool.QueryRow(ctx, `
		UPDATE orders SET
			status = $1,
			status_ms = $2,
			updated_at = now()
		WHERE id = $3
		RETURNING `+orderColumns,
		status, time.Now().UnixMilli(), id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Kind: "order", IDs: []string{id}}
	}
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	syncOrderBestEffort(sync, *o)
	return o, nil
}

// UpdateOrderPayment sets the paid flag and stamps the payment-change
// time, then best-effort syncs the updated row to the sheet.
func UpdateOrderPayment(ctx context.Context, id string, isPaid bool, sync OrderSyncer) (*models.Order, error) {
	if id == "" {
		return nil, validationErr("invalid order ID")
	}

	o, err := scanOrder(db.Pool.QueryRow(ctx, `
		UPDATE orders SET
			is_paid = $1,
			payment_ms = $2,
			updated_at = now()
		WHERE id = $3
		RETURNING `+orderColumns,
		isPaid, time.Now().UnixMilli(), id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Kind: "order", IDs: []string{id}}
	}
	if err != nil {
		return nil, fmt.Errorf("update order payment: %w", err)
	}

	syncOrderBestEffort(sync, *o)
	return o, nil
}

// DeleteOrders removes the given orders. Every id must exist: a single
// stale id fails the whole batch, naming the missing ones, and nothing is
// deleted. Deletion itself proceeds in bounded batches, and the matching
// sheet rows are removed best-effort afterwards.
func DeleteOrders(ctx context.Context, ids []string, sync OrderSyncer) error {
	if len(ids) == 0 {
		return validationErr("no orders selected for deletion")
	}

	rows, err := db.Pool.Query(ctx, `SELECT id FROM orders WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("verify orders: %w", err)
	}
	existing := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		existing[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	var missing []string
	for _, id := range ids {
		if !existing[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &NotFoundError{Kind: "orders", IDs: missing}
	}

	for i := 0; i < len(ids); i += deleteBatchSize {
		end := i + deleteBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		if _, err := db.Pool.Exec(ctx, `DELETE FROM orders WHERE id = ANY($1)`, ids[i:end]); err != nil {
			return fmt.Errorf("delete orders: %w", err)
		}
	}

	if sync != nil {
		deleted := append([]string(nil), ids...)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := sync.SyncDeletions(ctx, deleted); err != nil {
				slog.Error("failed to sync order deletions to sheet", "count", len(deleted), "error", err)
			}
		}()
	}
	return nil
}
