package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/Kitbitz/haveekos/db"
	"github.com/Kitbitz/haveekos/models"

	"github.com/jackc/pgx/v5"
)

// Settings keys. Each is one jsonb row in the settings table.
const (
	settingsGCash        = "gcash"
	settingsAnnouncement = "announcement"
	settingsAutoExport   = "autoexport"
)

func getSetting(ctx context.Context, key string, out interface{}) error {
	var raw []byte
	err := db.Pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil // absent key reads as the zero value
	}
	if err != nil {
		return fmt.Errorf("get setting %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode setting %s: %w", key, err)
	}
	return nil
}

func putSetting(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode setting %s: %w", key, err)
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, raw)
	if err != nil {
		return fmt.Errorf("store setting %s: %w", key, err)
	}
	return nil
}

func GetGCashSettings(ctx context.Context) (*models.GCashSettings, error) {
	var s models.GCashSettings
	if err := getSetting(ctx, settingsGCash, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func UpdateGCashSettings(ctx context.Context, s models.GCashSettings) (*models.GCashSettings, error) {
	s.UpdatedMS = time.Now().UnixMilli()
	if err := putSetting(ctx, settingsGCash, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func GetAnnouncement(ctx context.Context) (*models.AnnouncementSettings, error) {
	var s models.AnnouncementSettings
	if err := getSetting(ctx, settingsAnnouncement, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func UpdateAnnouncement(ctx context.Context, s models.AnnouncementSettings) (*models.AnnouncementSettings, error) {
	s.UpdatedMS = time.Now().UnixMilli()
	if err := putSetting(ctx, settingsAnnouncement, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

var exportTimeRe = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)

func GetAutoExportSettings(ctx context.Context) (*models.AutoExportSettings, error) {
	var s models.AutoExportSettings
	if err := getSetting(ctx, settingsAutoExport, &s); err != nil {
		return nil, err
	}
	if s.Schedule == "" {
		s.Schedule = models.ScheduleDaily
	}
	if s.Time == "" {
		s.Time = "18:00"
	}
	return &s, nil
}

func UpdateAutoExportSettings(ctx context.Context, s models.AutoExportSettings) (*models.AutoExportSettings, error) {
	switch s.Schedule {
	case models.ScheduleDaily, models.ScheduleWeekly, models.ScheduleMonthly:
	default:
		return nil, validationErr("unknown export schedule: " + s.Schedule)
	}
	if !exportTimeRe.MatchString(s.Time) {
		return nil, validationErr("export time must be HH:MM")
	}
	if err := putSetting(ctx, settingsAutoExport, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// StampLastExport records when an automatic export last completed.
func StampLastExport(ctx context.Context, at time.Time) error {
	s, err := GetAutoExportSettings(ctx)
	if err != nil {
		return err
	}
	s.LastExport = at.UnixMilli()
	return putSetting(ctx, settingsAutoExport, s)
}
