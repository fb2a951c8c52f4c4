package config

import (
	"sort"
	"strings"

	logx "stockwatch/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and safe structured
// fields for logging. Secrets (auth tokens, passwords) are reported only as
// set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 24)

	if strings.TrimSpace(oldCfg.Store.Path) != strings.TrimSpace(newCfg.Store.Path) ||
		oldCfg.Store.AutosaveEnabled() != newCfg.Store.AutosaveEnabled() {
		changed = append(changed, "store")
		attrs = append(attrs,
			logx.String("store.path", strings.TrimSpace(newCfg.Store.Path)),
			logx.Bool("store.autosave", newCfg.Store.AutosaveEnabled()),
		)
	}

	if oldCfg.Monitor != newCfg.Monitor {
		changed = append(changed, "monitor")
		attrs = append(attrs,
			logx.Int("monitor.threshold", newCfg.Monitor.LowStockThreshold),
			logx.String("monitor.poll_interval", newCfg.Monitor.PollInterval),
			logx.String("monitor.realert_cooldown", newCfg.Monitor.RealertCooldown),
			logx.String("monitor.dispatch_timeout", newCfg.Monitor.DispatchTimeout),
			logx.Float64("monitor.rate_per_sec", newCfg.Monitor.RatePerSec),
			logx.Int("monitor.burst", newCfg.Monitor.Burst),
		)
	}

	// Messaging (never log tokens)
	if oldCfg.Messaging != newCfg.Messaging {
		changed = append(changed, "messaging")
		attrs = append(attrs,
			logx.Bool("messaging.enabled", newCfg.Messaging.Enabled),
			logx.String("messaging.driver", newCfg.Messaging.Driver),
			logx.Bool("messaging.account_sid_set", strings.TrimSpace(newCfg.Messaging.AccountSID) != ""),
			logx.Bool("messaging.auth_token_set", strings.TrimSpace(newCfg.Messaging.AuthToken) != ""),
			logx.Bool("messaging.bot_token_set", strings.TrimSpace(newCfg.Messaging.BotToken) != ""),
			logx.Bool("messaging.recipient_set", strings.TrimSpace(newCfg.Messaging.ToNumber) != "" || newCfg.Messaging.ChatID != 0),
		)
	}

	// Email (never log password)
	if oldCfg.Email != newCfg.Email {
		changed = append(changed, "email")
		attrs = append(attrs,
			logx.Bool("email.enabled", newCfg.Email.Enabled),
			logx.String("email.smtp_host", strings.TrimSpace(newCfg.Email.Host)),
			logx.Int("email.smtp_port", newCfg.Email.Port),
			logx.Bool("email.password_set", newCfg.Email.Password != ""),
			logx.Bool("email.recipient_set", strings.TrimSpace(newCfg.Email.To) != ""),
		)
	}

	if oldCfg.Reports != newCfg.Reports {
		changed = append(changed, "reports")
		attrs = append(attrs,
			logx.String("reports.schedule", strings.TrimSpace(newCfg.Reports.Schedule)),
			logx.String("reports.timezone", strings.TrimSpace(newCfg.Reports.Timezone)),
			logx.Int("reports.recent_activities", newCfg.Reports.RecentActivities),
			logx.String("reports.velocity_window", newCfg.Reports.VelocityWindow),
			logx.Int("reports.cover_days", newCfg.Reports.CoverDays),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.pprof.enabled", newCfg.Debug.Pprof.Enabled),
			logx.String("debug.pprof.address", newCfg.Debug.Pprof.Address),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
