package sheets

import (
	"context"
	"fmt"
	"time"

	"github.com/Kitbitz/haveekos/models"
)

// QueuedSyncer funnels all sheet writes through one serial queue so the
// API never sees concurrent or back-to-back requests. Order upserts are
// deduplicated by order ID: a second sync of the same order while the
// first is still queued collapses into one task.
type QueuedSyncer struct {
	Syncer *Syncer
	Queue  *Queue
}

func NewQueuedSyncer(syncer *Syncer, queue *Queue) *QueuedSyncer {
	return &QueuedSyncer{Syncer: syncer, Queue: queue}
}

func (q *QueuedSyncer) SyncOrder(ctx context.Context, order models.Order) error {
	return q.Queue.Enqueue(ctx, "order-"+order.ID, func(ctx context.Context) error {
		return q.Syncer.SyncOrder(ctx, order)
	})
}

func (q *QueuedSyncer) SyncDeletions(ctx context.Context, orderIDs []string) error {
	id := fmt.Sprintf("delete-orders-%d", time.Now().UnixMilli())
	return q.Queue.Enqueue(ctx, id, func(ctx context.Context) error {
		return q.Syncer.SyncDeletions(ctx, orderIDs)
	})
}

func (q *QueuedSyncer) ExportOrders(ctx context.Context, orders []models.Order) error {
	id := fmt.Sprintf("export-orders-%d", time.Now().UnixMilli())
	return q.Queue.Enqueue(ctx, id, func(ctx context.Context) error {
		return q.Syncer.ExportOrders(ctx, orders)
	})
}
