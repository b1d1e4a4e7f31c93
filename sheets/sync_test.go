package sheets

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Kitbitz/haveekos/models"
)

func testOrder(id string) models.Order {
	return models.Order{
		ID:            id,
		Name:          "Maria Santos",
		ContactNumber: "0917-555-0101",
		Email:         "maria@example.com",
		OrderChoice:   "2x Pork Sisig, 1x Calamansi Juice",
		TotalPrice:    410,
		PaymentMethod: models.PaymentMethodCash,
		Status:        models.OrderStatusPending,
		PlacedMS:      time.Date(2025, 3, 14, 15, 9, 26, 0, time.Local).UnixMilli(),
	}
}

func TestSyncOrderCreatesSheetAndAppends(t *testing.T) {
	fake := newFakeSheets()
	fake.seed("Sheet1", nil)
	s := newTestSyncer(t, fake)

	if err := s.SyncOrder(context.Background(), testOrder("ord-1")); err != nil {
		t.Fatalf("SyncOrder: %v", err)
	}

	rows := fake.rows(OrdersSheet)
	if len(rows) != 2 {
		t.Fatalf("sheet has %d rows, want header + 1 order", len(rows))
	}
	if !headersEqual(rows[0], Headers) {
		t.Errorf("header row = %v, want fixed header list", rows[0])
	}
	if rows[1][0] != "ord-1" {
		t.Errorf("row 2 order id = %q, want ord-1", rows[1][0])
	}
}

func TestSyncOrderIsIdempotent(t *testing.T) {
	fake := newFakeSheets()
	fake.seed("Sheet1", nil)
	s := newTestSyncer(t, fake)

	order := testOrder("ord-1")
	if err := s.SyncOrder(context.Background(), order); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	statusMS := time.Now().UnixMilli()
	order.Status = models.OrderStatusApproved
	order.StatusMS = &statusMS
	if err := s.SyncOrder(context.Background(), order); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	rows := fake.rows(OrdersSheet)
	if len(rows) != 2 {
		t.Fatalf("second sync appended a duplicate: %d rows, want 2", len(rows))
	}
	if got := rows[1][7]; got != models.OrderStatusApproved {
		t.Errorf("status cell = %q, want updated in place to approved", got)
	}
	if rows[1][11] == "" {
		t.Error("status-updated-at cell empty after status change")
	}
}

func TestSyncOrderRewritesDriftedHeaders(t *testing.T) {
	fake := newFakeSheets()
	fake.seed(OrdersSheet, [][]string{
		{"wrong", "header", "row"},
		{"ord-9", "Old Row"},
	})
	s := newTestSyncer(t, fake)

	if err := s.SyncOrder(context.Background(), testOrder("ord-1")); err != nil {
		t.Fatalf("SyncOrder: %v", err)
	}
	rows := fake.rows(OrdersSheet)
	if !headersEqual(rows[0], Headers) {
		t.Errorf("header row not rewritten: %v", rows[0])
	}
}

func TestSyncOrderRetriesRateLimit(t *testing.T) {
	fake := newFakeSheets()
	fake.seed("Sheet1", nil)
	s := newTestSyncer(t, fake)
	// First metadata probe answers 429; the retry must succeed.
	fake.failNext(http.MethodGet, "/spreadsheets/test-spreadsheet", 429, 1)

	if err := s.SyncOrder(context.Background(), testOrder("ord-1")); err != nil {
		t.Fatalf("SyncOrder after one 429: %v", err)
	}
	if len(fake.rows(OrdersSheet)) != 2 {
		t.Error("order row missing after retried sync")
	}
}

func TestExportOrdersRoundTrip(t *testing.T) {
	fake := newFakeSheets()
	fake.seed("Sheet1", nil)
	s := newTestSyncer(t, fake)

	orders := []models.Order{testOrder("a"), testOrder("b"), testOrder("c")}
	if err := s.ExportOrders(context.Background(), orders); err != nil {
		t.Fatalf("ExportOrders: %v", err)
	}

	rows := fake.rows(ExportSheet)
	if len(rows) != 4 {
		t.Fatalf("export sheet has %d rows, want header + 3", len(rows))
	}
	for i, want := range []string{"a", "b", "c"} {
		if rows[i+1][0] != want {
			t.Errorf("data row %d id = %q, want %q (submission order)", i+1, rows[i+1][0], want)
		}
	}
	if fake.sorts != 1 {
		t.Errorf("sortRange issued %d times, want 1", fake.sorts)
	}
}

func TestExportOrdersOverwritesPreviousExport(t *testing.T) {
	fake := newFakeSheets()
	fake.seed(ExportSheet, [][]string{
		Headers,
		OrderRow(testOrder("stale-1")),
		OrderRow(testOrder("stale-2")),
	})
	s := newTestSyncer(t, fake)

	if err := s.ExportOrders(context.Background(), []models.Order{testOrder("fresh"), testOrder("fresh-2")}); err != nil {
		t.Fatalf("ExportOrders: %v", err)
	}
	rows := fake.rows(ExportSheet)
	if rows[1][0] != "fresh" || rows[2][0] != "fresh-2" {
		t.Errorf("rows 2-3 = %q, %q; want overwritten with fresh ids", rows[1][0], rows[2][0])
	}
}

func TestSyncDeletionsRemovesMatchingRowsDescending(t *testing.T) {
	fake := newFakeSheets()
	fake.seed(OrdersSheet, [][]string{
		Headers,
		OrderRow(testOrder("a")),
		OrderRow(testOrder("b")),
		OrderRow(testOrder("c")),
		OrderRow(testOrder("d")),
	})
	s := newTestSyncer(t, fake)

	if err := s.SyncDeletions(context.Background(), []string{"b", "d", "missing"}); err != nil {
		t.Fatalf("SyncDeletions: %v", err)
	}

	rows := fake.rows(OrdersSheet)
	if len(rows) != 3 {
		t.Fatalf("sheet has %d rows after deletion, want 3", len(rows))
	}
	if rows[1][0] != "a" || rows[2][0] != "c" {
		t.Errorf("surviving rows = %q, %q; want a, c", rows[1][0], rows[2][0])
	}
	// Descending start indices: row 5 (d) before row 3 (b).
	if len(fake.deletes) != 2 || fake.deletes[0] != 4 || fake.deletes[1] != 2 {
		t.Errorf("delete request start indices = %v, want [4 2]", fake.deletes)
	}
	if !headersEqual(rows[0], Headers) {
		t.Error("header row must survive deletions")
	}
}

func TestSyncDeletionsNoMatchesIsNoop(t *testing.T) {
	fake := newFakeSheets()
	fake.seed(OrdersSheet, [][]string{Headers, OrderRow(testOrder("a"))})
	s := newTestSyncer(t, fake)

	if err := s.SyncDeletions(context.Background(), []string{"nope"}); err != nil {
		t.Fatalf("SyncDeletions: %v", err)
	}
	if len(fake.deletes) != 0 {
		t.Errorf("issued %d delete requests for no matches", len(fake.deletes))
	}
}

func TestOrderRow(t *testing.T) {
	placed := time.Date(2025, 3, 14, 15, 9, 26, 0, time.Local)
	statusMS := time.Date(2025, 3, 15, 9, 30, 0, 0, time.Local).UnixMilli()
	o := models.Order{
		ID:            "ord-7",
		Name:          "Jo",
		OrderChoice:   "1x Halo-Halo",
		TotalPrice:    120,
		Status:        models.OrderStatusApproved,
		IsPaid:        true,
		PlacedMS:      placed.UnixMilli(),
		StatusMS:      &statusMS,
		PaymentMethod: models.PaymentMethodOnline,
	}

	row := OrderRow(o)
	if len(row) != len(Headers) {
		t.Fatalf("row has %d cells, want %d", len(row), len(Headers))
	}
	if row[5] != "120" {
		t.Errorf("total cell = %q, want string \"120\"", row[5])
	}
	if row[8] != "Paid" {
		t.Errorf("payment status cell = %q, want Paid", row[8])
	}
	if row[9] != "3/14/2025" {
		t.Errorf("date cell = %q, want 3/14/2025", row[9])
	}
	if row[10] != "3:09:26 PM" {
		t.Errorf("time cell = %q, want 3:09:26 PM", row[10])
	}
	if row[11] != "3/15/2025 9:30:00 AM" {
		t.Errorf("status stamp cell = %q", row[11])
	}
	if row[12] != "" {
		t.Errorf("payment stamp cell = %q, want empty", row[12])
	}

	o.IsPaid = false
	o.PaymentMethod = ""
	row = OrderRow(o)
	if row[8] != "Unpaid" {
		t.Errorf("payment status cell = %q, want Unpaid", row[8])
	}
	if row[6] != models.PaymentMethodCash {
		t.Errorf("empty payment method cell = %q, want cash default", row[6])
	}
}
