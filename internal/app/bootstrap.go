package app

import (
	"strings"

	"stockwatch/internal/config"
	"stockwatch/internal/monitor"
	"stockwatch/internal/notifier"
	"stockwatch/internal/observability/pprof"
	logx "stockwatch/pkg/logx"
)

// ChannelFactory builds the notification channels for a settings snapshot.
type ChannelFactory func(cfg notifier.Config) ([]notifier.Channel, error)

func mapMonitorConfig(cfg *config.Config) monitor.Config {
	m := cfg.Monitor
	return monitor.Config{
		Threshold:          m.Threshold(),
		PollInterval:       m.PollEvery(),
		PausedPollInterval: m.PausedEvery(),
		Cooldown:           m.Cooldown(),
		DispatchTimeout:    m.Dispatch(),
		StopGrace:          m.Grace(),
		RatePerSec:         m.RatePerSec,
		Burst:              m.Burst,
		AlertOnStartup:     m.AlertOnStartup,
	}
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	msg, em := cfg.Messaging, cfg.Email
	return notifier.Config{
		Messaging: notifier.MessagingConfig{
			Enabled:    msg.Enabled,
			Driver:     strings.ToLower(strings.TrimSpace(msg.Driver)),
			AccountSID: msg.AccountSID,
			AuthToken:  msg.AuthToken,
			FromNumber: msg.FromNumber,
			ToNumber:   msg.ToNumber,
			APIBase:    msg.APIBase,
			BotToken:   msg.BotToken,
			ChatID:     msg.ChatID,
			APIURL:     msg.APIURL,
			Timeout:    msg.RequestTimeout(),
		},
		Email: notifier.EmailConfig{
			Enabled:  em.Enabled,
			Host:     em.Host,
			Port:     em.Port,
			Username: em.Username,
			Password: em.Password,
			From:     em.From,
			To:       em.To,
			Timeout:  em.RequestTimeout(),
		},
	}
}

func mapSuggestConfig(cfg *config.Config) notifier.SuggestConfig {
	return notifier.SuggestConfig{
		Window:    cfg.Reports.Window(),
		CoverDays: cfg.Reports.Cover(),
		Threshold: cfg.Monitor.Threshold(),
	}
}

// LogConfig maps the logging section onto the logging service config.
func LogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	p := cfg.Debug.Pprof
	return pprof.Config{
		Enabled:              p.Enabled,
		Address:              strings.TrimSpace(p.Address),
		BlockProfileRate:     p.BlockProfileRate,
		MutexProfileFraction: p.MutexProfileFraction,
	}
}
