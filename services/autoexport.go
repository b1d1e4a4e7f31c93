package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Kitbitz/haveekos/models"
	"github.com/Kitbitz/haveekos/retry"
	"github.com/Kitbitz/haveekos/sheets"
)

// OrderExporter writes a full order history snapshot to the export sheet.
type OrderExporter interface {
	ExportOrders(ctx context.Context, orders []models.Order) error
}

// AutoExporter runs scheduled bulk exports. Once per check interval it
// reads the autoexport settings and, when the configured wall-clock time
// has passed without an export today, exports the current period's orders.
type AutoExporter struct {
	Exporter OrderExporter
	Log      *slog.Logger

	// CheckEvery defaults to one minute.
	CheckEvery time.Duration

	now func() time.Time
}

func NewAutoExporter(exporter OrderExporter, log *slog.Logger) *AutoExporter {
	return &AutoExporter{
		Exporter:   exporter,
		Log:        log,
		CheckEvery: time.Minute,
		now:        time.Now,
	}
}

// Run blocks until ctx is cancelled, checking the schedule periodically.
func (a *AutoExporter) Run(ctx context.Context) {
	ticker := time.NewTicker(a.CheckEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Tick(ctx); err != nil {
				a.Log.Error("auto export failed", "error", err)
			}
		}
	}
}

// Tick performs one schedule check, exporting if an export is due.
func (a *AutoExporter) Tick(ctx context.Context) error {
	settings, err := GetAutoExportSettings(ctx)
	if err != nil {
		return err
	}
	if !settings.Enabled {
		return nil
	}

	now := a.now()
	due, err := exportDue(settings, now)
	if err != nil {
		return err
	}
	if !due {
		return nil
	}

	from := periodStart(settings.Schedule, now)
	orders, err := GetOrdersInRange(ctx, from.UnixMilli(), now.UnixMilli())
	if err != nil {
		return err
	}

	err = retry.Do(ctx, func(ctx context.Context) error {
		return a.Exporter.ExportOrders(ctx, orders)
	}, retry.Options{
		MaxAttempts: 3,
		Delay:       2 * time.Second,
		Backoff:     2,
		ShouldRetry: sheets.IsRetryable,
	})
	if err != nil {
		return fmt.Errorf("export %d orders: %w", len(orders), err)
	}

	a.Log.Info("auto export completed", "schedule", settings.Schedule, "orders", len(orders))
	return StampLastExport(ctx, now)
}

// exportDue reports whether the configured export time has passed today
// and no export has run since.
func exportDue(s *models.AutoExportSettings, now time.Time) (bool, error) {
	target, err := todayAt(s.Time, now)
	if err != nil {
		return false, err
	}
	if now.Before(target) {
		return false, nil
	}
	return s.LastExport < target.UnixMilli(), nil
}

func todayAt(hhmm string, now time.Time) (time.Time, error) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("bad export time %q", hhmm)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("bad export time %q", hhmm)
	}
	min, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("bad export time %q", hhmm)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, now.Location()), nil
}

// periodStart picks how far back an export reaches for a given schedule.
func periodStart(schedule string, now time.Time) time.Time {
	switch schedule {
	case models.ScheduleWeekly:
		return now.AddDate(0, 0, -7)
	case models.ScheduleMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	default: // daily
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	}
}
