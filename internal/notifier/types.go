package notifier

import (
	"context"
	"time"

	"stockwatch/internal/inventory"
)

// Channel is one delivery mechanism. Implementations hold no mutable state
// beyond their credentials and must be safe for concurrent use.
type Channel interface {
	// Name identifies the channel in logs and errors ("twilio", "telegram", "email").
	Name() string
	// Agent is the activity-log tag for outcomes of this channel.
	Agent() inventory.Agent

	SendAlert(ctx context.Context, a Alert) error
	SendReport(ctx context.Context, r Report) error
	// SuggestActions sends reorder advice. An empty suggestion is a no-op.
	SuggestActions(ctx context.Context, s Suggestion) error
}

// Alert is one due stock condition.
type Alert struct {
	ID        string
	ProductID string
	Name      string
	Quantity  int
	Condition inventory.Condition
	Threshold int
	RaisedAt  time.Time
	// Reminder is set when the same condition was already raised and the
	// cooldown elapsed.
	Reminder bool
}

// Report is an inventory summary with recent activity.
type Report struct {
	Snapshot    inventory.Snapshot
	Activities  []inventory.ActivityRecord
	Products    []inventory.Product
	GeneratedAt time.Time
}

// ReorderItem is advice for one product.
type ReorderItem struct {
	ProductID string
	Name      string
	Quantity  int
	Sold      int
	DailyRate float64
	Reorder   int
}

type Suggestion struct {
	Snapshot    inventory.Snapshot
	Items       []ReorderItem
	GeneratedAt time.Time
}

func (s Suggestion) Empty() bool { return len(s.Items) == 0 }

// Messaging drivers.
const (
	DriverTwilio   = "twilio"
	DriverTelegram = "telegram"
)

type MessagingConfig struct {
	Enabled bool
	Driver  string

	// twilio
	AccountSID string
	AuthToken  string
	FromNumber string
	ToNumber   string
	APIBase    string

	// telegram
	BotToken string
	ChatID   int64
	APIURL   string

	Timeout time.Duration
}

type EmailConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
	Timeout  time.Duration
}

// Config selects and configures the channels Build constructs.
type Config struct {
	Messaging MessagingConfig
	Email     EmailConfig
}
