package monitor

import (
	"errors"
	"time"

	"stockwatch/internal/inventory"
	"stockwatch/internal/notifier"
)

var (
	ErrNotRunning = errors.New("monitor not running")
	ErrStopped    = errors.New("monitor stopped")
)

// Event types published on the bus.
const (
	EventAlertSent   = "monitor.alert.sent"
	EventAlertFailed = "monitor.alert.failed"
	EventTickError   = "monitor.tick.error"
)

type State int32

const (
	StateStopped State = iota
	StateRunning
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

type Config struct {
	Threshold          int
	PollInterval       time.Duration
	PausedPollInterval time.Duration
	Cooldown           time.Duration
	DispatchTimeout    time.Duration
	StopGrace          time.Duration

	// Per-channel token bucket. RatePerSec <= 0 disables limiting.
	RatePerSec float64
	Burst      int

	// AlertOnStartup skips seeding on Start, so conditions present at
	// startup alert on the first tick.
	AlertOnStartup bool
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = inventory.DefaultLowStockThreshold
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.PausedPollInterval <= 0 {
		c.PausedPollInterval = time.Second
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 24 * time.Hour
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = 10 * time.Second
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 3 * time.Second
	}
	if c.RatePerSec > 0 && c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

// Store is the slice of the record store the loop needs.
type Store interface {
	Products() ([]inventory.Product, error)
	Append(agent inventory.Agent, action inventory.Action, details string) error
}

// ChannelSource is re-read on every tick.
type ChannelSource interface {
	Channels() []notifier.Channel
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// AlertState is the loop's memory of the last condition raised for a product.
type AlertState struct {
	Condition inventory.Condition
	RaisedAt  time.Time
}

// AlertEvent is the Data of alert events.
type AlertEvent struct {
	AlertID   string `json:"alert_id"`
	ProductID string `json:"product_id"`
	Channel   string `json:"channel"`
	Condition string `json:"condition"`
	Reminder  bool   `json:"reminder,omitempty"`
	Error     string `json:"error,omitempty"`
}
