package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Kitbitz/haveekos/models"
	"github.com/Kitbitz/haveekos/retry"
)

const (
	// OrdersSheet mirrors live orders one row per order.
	OrdersSheet = "Orders"
	// ExportSheet receives bulk exports, overwriting from row 2.
	ExportSheet = "All_Orders"

	exportChunkSize  = 500
	exportChunkPause = time.Second
)

// Headers is the fixed row 1 of both sheets. Column A must stay the order
// id: row matching and deletions key on it.
var Headers = []string{
	"Order ID",
	"Name",
	"Contact Number",
	"Email",
	"Order Details",
	"Total Price",
	"Payment Method",
	"Status",
	"Payment Status",
	"Order Date",
	"Order Time",
	"Status Updated At",
	"Payment Updated At",
}

// lastColumn is the A1 letter of the final header column.
var lastColumn = string(rune('A' + len(Headers) - 1))

// Syncer mirrors order records into the spreadsheet. It is safe for use
// from multiple goroutines as long as external calls are funnelled through
// the serial Queue, which callers own.
type Syncer struct {
	Client *Client
	Log    *slog.Logger

	// Retry applies to each whole operation. Zero value gets the default
	// policy; tests shrink the delays.
	Retry retry.Options

	chunkPause time.Duration
}

func NewSyncer(client *Client, log *slog.Logger) *Syncer {
	if log == nil {
		log = slog.Default()
	}
	return &Syncer{
		Client: client,
		Log:    log,
		Retry: retry.Options{
			MaxAttempts: 5,
			Delay:       2 * time.Second,
			Backoff:     2,
			ShouldRetry: IsRetryable,
		},
		chunkPause: exportChunkPause,
	}
}

// SyncOrder upserts one order into the Orders sheet: the row whose column A
// equals the order id is overwritten in place, otherwise a row is appended.
func (s *Syncer) SyncOrder(ctx context.Context, order models.Order) error {
	return retry.Do(ctx, func(ctx context.Context) error {
		if _, err := s.ensureSheet(ctx, OrdersSheet); err != nil {
			return err
		}
		if err := s.ensureHeaders(ctx, OrdersSheet); err != nil {
			return err
		}

		rows, err := s.Client.GetValues(ctx, OrdersSheet+"!A:A")
		if err != nil {
			return &Error{Message: "failed to check existing orders", Cause: err}
		}
		rowIndex := 0
		for i, row := range rows {
			if i == 0 {
				continue // header
			}
			if len(row) > 0 && row[0] == order.ID {
				rowIndex = i + 1 // 1-based sheet row
				break
			}
		}

		values := [][]string{OrderRow(order)}
		if rowIndex > 1 {
			rng := fmt.Sprintf("%s!A%d:%s%d", OrdersSheet, rowIndex, lastColumn, rowIndex)
			return s.Client.UpdateValues(ctx, rng, values)
		}
		return s.Client.AppendValues(ctx, fmt.Sprintf("%s!A:%s", OrdersSheet, lastColumn), values)
	}, s.Retry)
}

// ExportOrders rewrites the All_Orders sheet with the given orders starting
// at row 2, in submission order, then sorts data rows newest-first. There
// is no per-order matching; existing contents in the range are overwritten.
func (s *Syncer) ExportOrders(ctx context.Context, orders []models.Order) error {
	return retry.Do(ctx, func(ctx context.Context) error {
		sheetID, err := s.ensureSheet(ctx, ExportSheet)
		if err != nil {
			return err
		}
		if err := s.ensureHeaders(ctx, ExportSheet); err != nil {
			return err
		}

		rows := make([][]string, len(orders))
		for i, o := range orders {
			rows[i] = OrderRow(o)
		}

		for i := 0; i < len(rows); i += exportChunkSize {
			end := i + exportChunkSize
			if end > len(rows) {
				end = len(rows)
			}
			chunk := rows[i:end]
			rng := fmt.Sprintf("%s!A%d:%s%d", ExportSheet, i+2, lastColumn, i+1+len(chunk))
			if err := s.Client.UpdateValues(ctx, rng, chunk); err != nil {
				return err
			}
			// Pause between chunks so large exports stay under quota.
			if end < len(rows) {
				select {
				case <-time.After(s.chunkPause):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}

		return s.sortByDateDesc(ctx, sheetID)
	}, s.Retry)
}

// SyncDeletions removes the rows of the given order ids from the Orders
// sheet. Row-delete requests go out in descending index order so earlier
// deletions do not shift the rows later requests point at.
func (s *Syncer) SyncDeletions(ctx context.Context, orderIDs []string) error {
	if len(orderIDs) == 0 {
		return nil
	}
	wanted := make(map[string]bool, len(orderIDs))
	for _, id := range orderIDs {
		wanted[id] = true
	}

	return retry.Do(ctx, func(ctx context.Context) error {
		sheetID, err := s.ensureSheet(ctx, OrdersSheet)
		if err != nil {
			return err
		}
		rows, err := s.Client.GetValues(ctx, OrdersSheet+"!A:A")
		if err != nil {
			return &Error{Message: "failed to get sheet data", Cause: err}
		}

		var toDelete []int64
		for i, row := range rows {
			if i == 0 {
				continue // never delete the header
			}
			if len(row) > 0 && wanted[row[0]] {
				toDelete = append(toDelete, int64(i+1))
			}
		}
		if len(toDelete) == 0 {
			return nil
		}
		sort.Slice(toDelete, func(i, j int) bool { return toDelete[i] > toDelete[j] })

		requests := make([]Request, len(toDelete))
		for i, rowIndex := range toDelete {
			requests[i] = DeleteRowRequest(sheetID, rowIndex)
		}
		_, err = s.Client.BatchUpdate(ctx, requests)
		return err
	}, s.Retry)
}

// ensureSheet returns the sheet's numeric id, creating the sheet when the
// spreadsheet lacks one with that title.
func (s *Syncer) ensureSheet(ctx context.Context, title string) (int64, error) {
	meta, err := s.Client.Metadata(ctx)
	if err != nil {
		return 0, &Error{Message: "failed to check spreadsheet", Cause: err}
	}
	for _, sheet := range meta.Sheets {
		if sheet.Properties.Title == title {
			return sheet.Properties.SheetID, nil
		}
	}

	resp, err := s.Client.BatchUpdate(ctx, []Request{AddSheetRequest(title)})
	if err != nil {
		return 0, &Error{Message: "failed to create sheet " + title, Cause: err}
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil {
		return 0, newError("", "addSheet reply missing for %s", title)
	}
	s.Log.Info("created sheet", "title", title)
	return resp.Replies[0].AddSheet.Properties.SheetID, nil
}

// ensureHeaders rewrites row 1 when any cell differs from Headers.
func (s *Syncer) ensureHeaders(ctx context.Context, title string) error {
	rng := fmt.Sprintf("%s!A1:%s1", title, lastColumn)
	rows, err := s.Client.GetValues(ctx, rng)
	if err != nil {
		return &Error{Message: "failed to check headers", Cause: err}
	}
	var existing []string
	if len(rows) > 0 {
		existing = rows[0]
	}
	if headersEqual(existing, Headers) {
		return nil
	}
	return s.Client.UpdateValues(ctx, rng, [][]string{Headers})
}

func (s *Syncer) sortByDateDesc(ctx context.Context, sheetID int64) error {
	dateCol, timeCol := int64(-1), int64(-1)
	for i, h := range Headers {
		switch h {
		case "Order Date":
			dateCol = int64(i)
		case "Order Time":
			timeCol = int64(i)
		}
	}
	if dateCol < 0 || timeCol < 0 {
		return newError("", "date/time columns not found in headers")
	}
	_, err := s.Client.BatchUpdate(ctx, []Request{
		SortRangeRequest(sheetID, int64(len(Headers)), []SortSpec{
			{DimensionIndex: dateCol, SortOrder: "DESCENDING"},
			{DimensionIndex: timeCol, SortOrder: "DESCENDING"},
		}),
	})
	return err
}

func headersEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// OrderRow derives the 13 export cells from an order record.
func OrderRow(o models.Order) []string {
	placed := time.UnixMilli(o.PlacedMS)
	paid := "Unpaid"
	if o.IsPaid {
		paid = "Paid"
	}
	method := o.PaymentMethod
	if method == "" {
		method = models.PaymentMethodCash
	}
	return []string{
		o.ID,
		o.Name,
		o.ContactNumber,
		o.Email,
		o.OrderChoice,
		fmt.Sprintf("%d", o.TotalPrice),
		method,
		o.Status,
		paid,
		formatDate(placed),
		formatTime(placed),
		formatStamp(o.StatusMS),
		formatStamp(o.PaymentMS),
	}
}

func formatDate(t time.Time) string { return t.Format("1/2/2006") }

func formatTime(t time.Time) string { return t.Format("3:04:05 PM") }

// formatStamp renders an optional epoch-ms stamp as "date time", or "".
func formatStamp(ms *int64) string {
	if ms == nil || *ms == 0 {
		return ""
	}
	t := time.UnixMilli(*ms)
	return formatDate(t) + " " + formatTime(t)
}
