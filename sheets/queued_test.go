package sheets

import (
	"context"
	"log/slog"
	"testing"

	"github.com/Kitbitz/haveekos/models"
)

func TestQueuedSyncerWritesThroughQueue(t *testing.T) {
	fake := newFakeSheets()
	q := NewQueuedSyncer(newTestSyncer(t, fake), NewQueue(testQueueConfig(), slog.Default()))

	if err := q.SyncOrder(context.Background(), testOrder("o1")); err != nil {
		t.Fatalf("SyncOrder: %v", err)
	}
	if rows := fake.rows(OrdersSheet); len(rows) != 2 {
		t.Fatalf("got %d rows, want header plus one order", len(rows))
	}
	if q.Queue.Len() != 0 {
		t.Errorf("queue should be drained, %d tasks left", q.Queue.Len())
	}

	if err := q.ExportOrders(context.Background(), []models.Order{}); err != nil {
		t.Fatalf("ExportOrders: %v", err)
	}
}
