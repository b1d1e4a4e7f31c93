package models

// GCashSettings is the singleton settings/gcash document: payment numbers
// shown to customers choosing online payment.
type GCashSettings struct {
	Primary        string `json:"primary"`
	Secondary      string `json:"secondary"`
	PrimaryLabel   string `json:"primaryLabel"`
	SecondaryLabel string `json:"secondaryLabel"`
	UpdatedMS      int64  `json:"updatedAt,omitempty"`
}

// AnnouncementSettings is the singleton settings/announcement document.
type AnnouncementSettings struct {
	Content   string `json:"content"`
	IsEnabled bool   `json:"isEnabled"`
	UpdatedMS int64  `json:"updatedAt,omitempty"`
}

const (
	ScheduleDaily   = "daily"
	ScheduleWeekly  = "weekly"
	ScheduleMonthly = "monthly"
)

// AutoExportSettings is the singleton settings/autoexport document. Time is
// a local "HH:MM" wall-clock string; LastExport is epoch milliseconds.
type AutoExportSettings struct {
	Enabled    bool   `json:"enabled"`
	Schedule   string `json:"schedule"`
	Time       string `json:"time"`
	LastExport int64  `json:"lastExport,omitempty"`
}
