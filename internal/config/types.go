package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Store     StoreConfig     `json:"store"`
	Scheduler SchedulerConfig `json:"scheduler,omitempty"`
	Notify    NotifyConfig    `json:"notify,omitempty"`

	// Timezones is the selectable timezone catalog (display label + IANA
	// name). When omitted, the built-in catalog is used.
	Timezones []TimezoneEntry `json:"timezones,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StoreConfig controls the persistence layer.
//
// Example:
//
//	"store": { "driver": "file", "path": "./data/remindbot" }
type StoreConfig struct {
	Driver string `json:"driver,omitempty"` // "file" (default) or "sqlite"
	Path   string `json:"path"`

	// DefaultTimezone applies to owners without a saved preference.
	DefaultTimezone string `json:"default_timezone,omitempty"`

	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type SchedulerConfig struct {
	// Resync is a cron spec ("@hourly", "*/30 * * * *", "@every 1h") for the
	// job that re-arms complete reminders that lost their timers.
	// Empty disables the job.
	Resync string `json:"resync,omitempty"`
}

type NotifyConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`

	// Message templates; each must contain one %s for the reminder text.
	PrimaryTemplate  string `json:"primary_template,omitempty"`
	FollowUpTemplate string `json:"follow_up_template,omitempty"`

	// Images are attached (one at random) to primary deliveries.
	Images []string `json:"images,omitempty"`
}

type TimezoneEntry struct {
	Key   string `json:"key"`   // callback-data key, e.g. "moscow"
	Label string `json:"label"` // display label, e.g. "Moscow (UTC+3)"
	Zone  string `json:"zone"`  // IANA name, e.g. "Europe/Moscow"
}

// DefaultTimezones is the built-in catalog: the eleven Russian zones the bot
// originally shipped with, west to east.
func DefaultTimezones() []TimezoneEntry {
	return []TimezoneEntry{
		{Key: "kaliningrad", Label: "Kaliningrad (UTC+2)", Zone: "Europe/Kaliningrad"},
		{Key: "moscow", Label: "Moscow (UTC+3)", Zone: "Europe/Moscow"},
		{Key: "samara", Label: "Samara (UTC+4)", Zone: "Europe/Samara"},
		{Key: "yekaterinburg", Label: "Yekaterinburg (UTC+5)", Zone: "Asia/Yekaterinburg"},
		{Key: "omsk", Label: "Omsk (UTC+6)", Zone: "Asia/Omsk"},
		{Key: "krasnoyarsk", Label: "Krasnoyarsk (UTC+7)", Zone: "Asia/Krasnoyarsk"},
		{Key: "irkutsk", Label: "Irkutsk (UTC+8)", Zone: "Asia/Irkutsk"},
		{Key: "yakutsk", Label: "Yakutsk (UTC+9)", Zone: "Asia/Yakutsk"},
		{Key: "vladivostok", Label: "Vladivostok (UTC+10)", Zone: "Asia/Vladivostok"},
		{Key: "magadan", Label: "Magadan (UTC+11)", Zone: "Asia/Magadan"},
		{Key: "kamchatka", Label: "Kamchatka (UTC+12)", Zone: "Asia/Kamchatka"},
	}
}
