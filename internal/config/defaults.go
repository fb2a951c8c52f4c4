package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"stockwatch/internal/schedule"
)

const DefaultStorePath = "./inventory_data.json"

// Default returns the settings used when no config file is given.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Path: DefaultStorePath},
		Monitor: MonitorConfig{
			LowStockThreshold:  10,
			PollInterval:       "5s",
			PausedPollInterval: "1s",
			RealertCooldown:    "24h",
			DispatchTimeout:    "10s",
			StopGrace:          "3s",
		},
		Messaging: MessagingConfig{Driver: "twilio"},
		Email:     EmailConfig{Port: 587},
		Reports: ReportsConfig{
			RecentActivities: 10,
			VelocityWindow:   "168h",
			CoverDays:        14,
		},
		Logging: LoggingConfig{Level: "info", Console: true},
	}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	if c.Store.Autosave != nil {
		v := *c.Store.Autosave
		out.Store.Autosave = &v
	}
	return &out
}

// Validate checks field formats. It does not check that enabled channels
// carry credentials; building the channels does that.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if c.Monitor.LowStockThreshold < 0 {
		errs = append(errs, errors.New("monitor.low_stock_threshold: must be >= 0"))
	}
	if c.Monitor.RatePerSec < 0 {
		errs = append(errs, errors.New("monitor.rate_per_sec: must be >= 0"))
	}
	if c.Monitor.Burst < 0 {
		errs = append(errs, errors.New("monitor.burst: must be >= 0"))
	}
	for path, raw := range map[string]string{
		"monitor.poll_interval":        c.Monitor.PollInterval,
		"monitor.paused_poll_interval": c.Monitor.PausedPollInterval,
		"monitor.realert_cooldown":     c.Monitor.RealertCooldown,
		"monitor.dispatch_timeout":     c.Monitor.DispatchTimeout,
		"monitor.stop_grace":           c.Monitor.StopGrace,
		"messaging.timeout":            c.Messaging.Timeout,
		"email.timeout":                c.Email.Timeout,
		"reports.timeout":              c.Reports.Timeout,
		"reports.velocity_window":      c.Reports.VelocityWindow,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Messaging.Driver)) {
	case "", "twilio", "telegram":
	default:
		errs = append(errs, fmt.Errorf("messaging.driver: unknown driver %q", c.Messaging.Driver))
	}
	if c.Email.Port < 0 || c.Email.Port > 65535 {
		errs = append(errs, fmt.Errorf("email.smtp_port: out of range: %d", c.Email.Port))
	}
	if s := strings.TrimSpace(c.Reports.Schedule); s != "" {
		if err := schedule.Validate(s); err != nil {
			errs = append(errs, fmt.Errorf("reports.schedule: %w", err))
		}
	}
	if tz := strings.TrimSpace(c.Reports.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("reports.timezone: %w", err))
		}
	}
	if c.Reports.RecentActivities < 0 {
		errs = append(errs, errors.New("reports.recent_activities: must be >= 0"))
	}
	if c.Reports.CoverDays < 0 {
		errs = append(errs, errors.New("reports.cover_days: must be >= 0"))
	}
	if p := c.Debug.Pprof; p.Enabled && strings.TrimSpace(p.Address) != "" {
		if _, _, err := net.SplitHostPort(p.Address); err != nil {
			errs = append(errs, fmt.Errorf("debug.pprof.address: %w", err))
		}
	}
	return errors.Join(errs...)
}
