package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// envOverrides lists the environment variables that override file settings.
// Unset variables leave the field alone.
type envOverrides struct {
	TwilioAccountSID *string `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  *string `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioFrom       *string `envconfig:"TWILIO_WHATSAPP_NUMBER"`
	TwilioTo         *string `envconfig:"RECIPIENT_WHATSAPP_NUMBER"`

	TelegramBotToken *string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   *int64  `envconfig:"TELEGRAM_CHAT_ID"`

	SMTPServer     *string `envconfig:"SMTP_SERVER"`
	SMTPPort       *int    `envconfig:"SMTP_PORT"`
	SMTPEmail      *string `envconfig:"SMTP_EMAIL"`
	SMTPPassword   *string `envconfig:"SMTP_PASSWORD"`
	RecipientEmail *string `envconfig:"RECIPIENT_EMAIL"`

	StorePath       *string        `envconfig:"STOCKWATCH_STORE_PATH"`
	Threshold       *int           `envconfig:"STOCKWATCH_LOW_STOCK_THRESHOLD"`
	PollInterval    *time.Duration `envconfig:"STOCKWATCH_POLL_INTERVAL"`
	RealertCooldown *time.Duration `envconfig:"STOCKWATCH_REALERT_COOLDOWN"`
	LogLevel        *string        `envconfig:"STOCKWATCH_LOG_LEVEL"`
}

// ApplyEnv overlays the process environment onto cfg.
func ApplyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return err
	}

	setStr := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	setStr(&cfg.Messaging.AccountSID, env.TwilioAccountSID)
	// Secrets are taken verbatim.
	setSecret := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setSecret(&cfg.Messaging.AuthToken, env.TwilioAuthToken)
	setStr(&cfg.Messaging.FromNumber, env.TwilioFrom)
	setStr(&cfg.Messaging.ToNumber, env.TwilioTo)
	setStr(&cfg.Messaging.BotToken, env.TelegramBotToken)
	if env.TelegramChatID != nil {
		cfg.Messaging.ChatID = *env.TelegramChatID
	}
	// Credentials in the environment turn the channel on, matching a bare
	// .env deployment with no config file.
	if env.TwilioAccountSID != nil && env.TwilioAuthToken != nil && env.TwilioTo != nil {
		cfg.Messaging.Enabled = true
	}
	if env.TelegramBotToken != nil && env.TelegramChatID != nil {
		cfg.Messaging.Enabled = true
		if env.TwilioAccountSID == nil {
			cfg.Messaging.Driver = "telegram"
		}
	}

	setStr(&cfg.Email.Host, env.SMTPServer)
	if env.SMTPPort != nil {
		cfg.Email.Port = *env.SMTPPort
	}
	setStr(&cfg.Email.Username, env.SMTPEmail)
	setSecret(&cfg.Email.Password, env.SMTPPassword)
	setStr(&cfg.Email.To, env.RecipientEmail)
	if env.SMTPServer != nil && env.RecipientEmail != nil {
		cfg.Email.Enabled = true
	}

	setStr(&cfg.Store.Path, env.StorePath)
	if env.Threshold != nil {
		cfg.Monitor.LowStockThreshold = *env.Threshold
	}
	if env.PollInterval != nil {
		cfg.Monitor.PollInterval = env.PollInterval.String()
	}
	if env.RealertCooldown != nil {
		cfg.Monitor.RealertCooldown = env.RealertCooldown.String()
	}
	setStr(&cfg.Logging.Level, env.LogLevel)
	return nil
}
