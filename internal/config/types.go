package config

// Config is the on-disk settings file. JSON or YAML, decoded strictly.
//
// All durations are Go duration strings (e.g. "5s", "24h").
type Config struct {
	Store     StoreConfig     `json:"store"`
	Monitor   MonitorConfig   `json:"monitor"`
	Messaging MessagingConfig `json:"messaging"`
	Email     EmailConfig     `json:"email"`
	Reports   ReportsConfig   `json:"reports"`
	Logging   LoggingConfig   `json:"logging"`
	Debug     DebugConfig     `json:"debug"`
}

type StoreConfig struct {
	Path string `json:"path"`
	// Autosave persists the snapshot after every foreground mutation.
	// Nil means true.
	Autosave *bool `json:"autosave,omitempty"`
}

func (s StoreConfig) AutosaveEnabled() bool { return s.Autosave == nil || *s.Autosave }

// MonitorConfig controls the background stock watcher.
//
// Defaults (when fields are omitted/zero):
//   - low_stock_threshold: 10
//   - poll_interval: "5s"
//   - paused_poll_interval: "1s"
//   - realert_cooldown: "24h"
//   - dispatch_timeout: "10s"
//   - stop_grace: "3s"
//   - rate_per_sec: 0 (unlimited)
type MonitorConfig struct {
	LowStockThreshold  int     `json:"low_stock_threshold,omitempty"`
	PollInterval       string  `json:"poll_interval,omitempty"`
	PausedPollInterval string  `json:"paused_poll_interval,omitempty"`
	RealertCooldown    string  `json:"realert_cooldown,omitempty"`
	DispatchTimeout    string  `json:"dispatch_timeout,omitempty"`
	StopGrace          string  `json:"stop_grace,omitempty"`
	RatePerSec         float64 `json:"rate_per_sec,omitempty"`
	Burst              int     `json:"burst,omitempty"`
	AlertOnStartup     bool    `json:"alert_on_startup,omitempty"`
}

// MessagingConfig selects the chat driver: "twilio" (WhatsApp) or "telegram".
type MessagingConfig struct {
	Enabled bool   `json:"enabled"`
	Driver  string `json:"driver,omitempty"`

	AccountSID string `json:"account_sid,omitempty"`
	AuthToken  string `json:"auth_token,omitempty"` // secret
	FromNumber string `json:"from_number,omitempty"`
	ToNumber   string `json:"to_number,omitempty"`
	APIBase    string `json:"api_base,omitempty"`

	BotToken string `json:"bot_token,omitempty"` // secret
	ChatID   int64  `json:"chat_id,omitempty"`
	APIURL   string `json:"api_url,omitempty"`

	Timeout string `json:"timeout,omitempty"`
}

type EmailConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"smtp_host,omitempty"`
	Port     int    `json:"smtp_port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"` // secret
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// ReportsConfig controls the scheduled report and reorder suggestions.
// An empty schedule disables the scheduled report.
type ReportsConfig struct {
	Schedule         string `json:"schedule,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
	Timeout          string `json:"timeout,omitempty"`
	RecentActivities int    `json:"recent_activities,omitempty"`
	VelocityWindow   string `json:"velocity_window,omitempty"`
	CoverDays        int    `json:"cover_days,omitempty"`
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

type DebugConfig struct {
	Pprof PprofConfig `json:"pprof"`
}

// PprofConfig controls the optional net/http/pprof listener. Bind it to
// loopback; it has no authentication.
type PprofConfig struct {
	Enabled              bool   `json:"enabled"`
	Address              string `json:"address,omitempty"`
	BlockProfileRate     int    `json:"block_profile_rate,omitempty"`
	MutexProfileFraction int    `json:"mutex_profile_fraction,omitempty"`
}
