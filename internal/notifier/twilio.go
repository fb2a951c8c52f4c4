package notifier

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	twilio "github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	twapi "github.com/twilio/twilio-go/rest/api/v2010"

	"stockwatch/internal/inventory"
)

// Twilio rejects WhatsApp bodies above 1600 characters.
const twilioBodyLimit = 1600

// Twilio sends WhatsApp messages through the Twilio Messages REST API.
type Twilio struct {
	sid     string
	token   string
	from    string
	to      string
	timeout time.Duration

	// base redirects API calls (tests, proxies); nil means api.twilio.com.
	base *url.URL
}

func NewTwilio(cfg MessagingConfig) (*Twilio, error) {
	sid := strings.TrimSpace(cfg.AccountSID)
	token := cfg.AuthToken
	from := strings.TrimSpace(cfg.FromNumber)
	to := strings.TrimSpace(cfg.ToNumber)
	if sid == "" || strings.TrimSpace(token) == "" || from == "" || to == "" {
		return nil, fmt.Errorf("twilio: %w: account sid, auth token, from and to numbers are required", ErrNotConfigured)
	}
	var base *url.URL
	if raw := strings.TrimSpace(cfg.APIBase); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("twilio: invalid api base %q", raw)
		}
		base = u
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Twilio{
		sid:     sid,
		token:   token,
		from:    whatsappAddr(from),
		to:      whatsappAddr(to),
		timeout: timeout,
		base:    base,
	}, nil
}

func whatsappAddr(n string) string {
	if strings.HasPrefix(n, "whatsapp:") {
		return n
	}
	return "whatsapp:" + n
}

func (t *Twilio) Name() string           { return DriverTwilio }
func (t *Twilio) Agent() inventory.Agent { return inventory.AgentMessaging }

func (t *Twilio) SendAlert(ctx context.Context, a Alert) error {
	return deliveryErr(t.Name(), "alert", t.send(ctx, FormatAlert(a)))
}

func (t *Twilio) SendReport(ctx context.Context, r Report) error {
	return deliveryErr(t.Name(), "report", t.send(ctx, FormatReport(r)))
}

func (t *Twilio) SuggestActions(ctx context.Context, s Suggestion) error {
	if s.Empty() {
		return nil
	}
	return deliveryErr(t.Name(), "suggest", t.send(ctx, FormatSuggestion(s)))
}

func (t *Twilio) send(ctx context.Context, text string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rc := t.client(ctx)
	for _, chunk := range splitText(text, twilioBodyLimit) {
		params := &twapi.CreateMessageParams{}
		params.SetPathAccountSid(t.sid)
		params.SetFrom(t.from)
		params.SetTo(t.to)
		params.SetBody(chunk)
		if _, err := rc.Api.CreateMessage(params); err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return fmt.Errorf("twilio: %w", cerr)
			}
			return fmt.Errorf("twilio: %w", err)
		}
	}
	return nil
}

// client builds a REST client whose requests are bound to ctx. The SDK
// builds its requests without a context, so cancellation rides on the
// transport.
func (t *Twilio) client(ctx context.Context) *twilio.RestClient {
	c := &twclient.Client{
		Credentials: twclient.NewCredentials(t.sid, t.token),
		HTTPClient: &http.Client{
			Timeout:   t.timeout,
			Transport: boundTransport{ctx: ctx, base: t.base, next: http.DefaultTransport},
		},
	}
	c.SetAccountSid(t.sid)
	return twilio.NewRestClientWithParams(twilio.ClientParams{Client: c})
}

type boundTransport struct {
	ctx  context.Context
	base *url.URL
	next http.RoundTripper
}

func (b boundTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(b.ctx)
	if b.base != nil {
		r.URL.Scheme = b.base.Scheme
		r.URL.Host = b.base.Host
		r.Host = b.base.Host
	}
	return b.next.RoundTrip(r)
}
