package config

import (
	"strings"
	"time"
)

// Durations resolved from MonitorConfig. Zero fields fall back to the
// defaults of Default().
func (m MonitorConfig) PollEvery() time.Duration   { return mustDuration(m.PollInterval, 5*time.Second) }
func (m MonitorConfig) PausedEvery() time.Duration { return mustDuration(m.PausedPollInterval, time.Second) }
func (m MonitorConfig) Cooldown() time.Duration    { return mustDuration(m.RealertCooldown, 24*time.Hour) }
func (m MonitorConfig) Dispatch() time.Duration    { return mustDuration(m.DispatchTimeout, 10*time.Second) }
func (m MonitorConfig) Grace() time.Duration       { return mustDuration(m.StopGrace, 3*time.Second) }

func (m MonitorConfig) Threshold() int {
	if m.LowStockThreshold <= 0 {
		return 10
	}
	return m.LowStockThreshold
}

func (r ReportsConfig) Window() time.Duration     { return mustDuration(r.VelocityWindow, 7*24*time.Hour) }
func (r ReportsConfig) RunTimeout() time.Duration { return mustDuration(r.Timeout, 2*time.Minute) }

func (r ReportsConfig) Recent() int {
	if r.RecentActivities <= 0 {
		return 10
	}
	return r.RecentActivities
}

func (r ReportsConfig) Cover() int {
	if r.CoverDays <= 0 {
		return 14
	}
	return r.CoverDays
}

// Location loads Timezone, falling back to time.Local.
func (r ReportsConfig) Location() *time.Location {
	tz := strings.TrimSpace(r.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}

func (m MessagingConfig) RequestTimeout() time.Duration { return mustDuration(m.Timeout, 0) }
func (e EmailConfig) RequestTimeout() time.Duration     { return mustDuration(e.Timeout, 0) }
