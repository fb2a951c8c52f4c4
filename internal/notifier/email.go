package notifier

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"

	"stockwatch/internal/inventory"
)

const emailName = "email"

// Email sends plain-text mail over SMTP, upgrading with STARTTLS when the
// server offers it. Port 465 uses implicit TLS.
type Email struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
	timeout  time.Duration

	// now stamps the Date header (tests).
	now func() time.Time
}

func NewEmail(cfg EmailConfig) (*Email, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" || strings.TrimSpace(cfg.To) == "" {
		return nil, fmt.Errorf("email: %w: smtp host and recipient are required", ErrNotConfigured)
	}
	port := cfg.Port
	if port <= 0 {
		port = 587
	}
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = strings.TrimSpace(cfg.Username)
	}
	if from == "" {
		return nil, fmt.Errorf("email: %w: sender address is required", ErrNotConfigured)
	}
	if _, err := mail.ParseAddress(from); err != nil {
		return nil, fmt.Errorf("email: invalid sender %q: %w", from, err)
	}
	var to []string
	for _, r := range strings.Split(cfg.To, ",") {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, err := mail.ParseAddress(r); err != nil {
			return nil, fmt.Errorf("email: invalid recipient %q: %w", r, err)
		}
		to = append(to, r)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Email{
		host:     host,
		port:     port,
		username: strings.TrimSpace(cfg.Username),
		password: cfg.Password,
		from:     from,
		to:       to,
		timeout:  timeout,
		now:      time.Now,
	}, nil
}

func (e *Email) Name() string           { return emailName }
func (e *Email) Agent() inventory.Agent { return inventory.AgentEmail }

func (e *Email) SendAlert(ctx context.Context, a Alert) error {
	msg, err := e.compose(AlertSubject(a), FormatAlert(a), nil)
	if err != nil {
		return deliveryErr(e.Name(), "alert", err)
	}
	return deliveryErr(e.Name(), "alert", e.deliver(ctx, msg))
}

// SendReport mails the summary with the product table attached as CSV.
func (e *Email) SendReport(ctx context.Context, r Report) error {
	var csvBuf bytes.Buffer
	if err := inventory.WriteProductsCSV(&csvBuf, r.Products); err != nil {
		return deliveryErr(e.Name(), "report", err)
	}
	at := r.GeneratedAt
	if at.IsZero() {
		at = e.now()
	}
	att := &attachment{
		name: "inventory_" + at.Format("20060102_1504") + ".csv",
		data: csvBuf.Bytes(),
	}
	subject := "Inventory report " + at.Format("2006-01-02")
	msg, err := e.compose(subject, FormatReport(r), att)
	if err != nil {
		return deliveryErr(e.Name(), "report", err)
	}
	return deliveryErr(e.Name(), "report", e.deliver(ctx, msg))
}

func (e *Email) SuggestActions(ctx context.Context, s Suggestion) error {
	if s.Empty() {
		return nil
	}
	subject := fmt.Sprintf("Reorder suggestions (%d products)", len(s.Items))
	msg, err := e.compose(subject, FormatSuggestion(s), nil)
	if err != nil {
		return deliveryErr(e.Name(), "suggest", err)
	}
	return deliveryErr(e.Name(), "suggest", e.deliver(ctx, msg))
}

type attachment struct {
	name string
	data []byte
}

func (e *Email) compose(subject, body string, att *attachment) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(e.from); err != nil {
		return nil, err
	}
	if err := m.To(e.to...); err != nil {
		return nil, err
	}
	m.Subject(subject)
	m.SetDateWithValue(e.now())
	m.SetMessageIDWithValue(uuid.NewString() + "@stockwatch")
	m.SetBodyString(gomail.TypeTextPlain, body)
	if att != nil {
		m.AttachReadSeeker(att.name, bytes.NewReader(att.data),
			gomail.WithFileContentType(gomail.ContentType("text/csv")))
	}
	return m, nil
}

// deliver runs one SMTP transaction bounded by ctx and the channel timeout.
func (e *Email) deliver(ctx context.Context, m *gomail.Msg) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	opts := []gomail.Option{
		gomail.WithTimeout(e.timeout),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithPort(e.port),
	}
	if e.port == 465 {
		opts = append(opts, gomail.WithSSL())
	}
	if e.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(e.username),
			gomail.WithPassword(e.password),
		)
	}
	c, err := gomail.NewClient(e.host, opts...)
	if err != nil {
		return err
	}
	return c.DialAndSendWithContext(ctx, m)
}
