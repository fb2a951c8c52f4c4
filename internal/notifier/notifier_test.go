package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twclient "github.com/twilio/twilio-go/client"

	"stockwatch/internal/inventory"
)

func lowAlert() Alert {
	return Alert{
		ID:        "2f9c1c2e-3a4b-4c5d-8e9f-001122334455",
		ProductID: "P001",
		Name:      "Widget",
		Quantity:  5,
		Condition: inventory.ConditionLow,
		Threshold: 10,
		RaisedAt:  time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestFormatAlert(t *testing.T) {
	t.Parallel()
	got := FormatAlert(lowAlert())
	assert.Contains(t, got, "LOW STOCK")
	assert.Contains(t, got, "Widget (ID: P001)")
	assert.Contains(t, got, "Quantity: 5 (threshold 10)")
	assert.Contains(t, got, "Ref: 2f9c1c2e")

	out := lowAlert()
	out.Condition = inventory.ConditionOut
	out.Quantity = 0
	out.Reminder = true
	got = FormatAlert(out)
	assert.True(t, strings.HasPrefix(got, "🚨 OUT OF STOCK (reminder)"))
	assert.NotContains(t, got, "threshold")
}

func TestFormatReport(t *testing.T) {
	t.Parallel()
	r := Report{
		Snapshot: inventory.Snapshot{TotalProducts: 3, OutOfStock: 1, LowStock: 1, TotalValue: 12345.5, Threshold: 10},
		Products: []inventory.Product{
			{ID: "A", Name: "Apple", Quantity: 0},
			{ID: "B", Name: "Banana", Quantity: 4},
			{ID: "C", Name: "Cable", Quantity: 40},
		},
		Activities: []inventory.ActivityRecord{
			{Agent: inventory.AgentExternal, Action: inventory.ActionSellProduct, Details: "Sold 1 units of Apple (ID: A), 0 remaining"},
		},
	}
	got := FormatReport(r)
	assert.Contains(t, got, "Total value: $12,345.50")
	assert.Contains(t, got, "- Apple (ID: A): 0")
	assert.Contains(t, got, "- Banana (ID: B): 4")
	assert.NotContains(t, got, "Cable")
	assert.Contains(t, got, "Sold 1 units of Apple")
}

func TestMoney(t *testing.T) {
	t.Parallel()
	cases := map[float64]string{
		0:          "0.00",
		999.999:    "1,000.00",
		1234567.89: "1,234,567.89",
		-4200:      "-4,200.00",
	}
	for in, want := range cases {
		assert.Equal(t, want, money(in), "%v", in)
	}
}

func TestSplitText(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"short"}, splitText("short", 100))

	line := strings.Repeat("x", 30)
	text := strings.Join([]string{line, line, line, line}, "\n")
	chunks := splitText(text, 70)
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 70)
		assert.False(t, strings.HasPrefix(c, "\n"))
	}
	assert.Equal(t, line+"\n"+line, chunks[0])

	long := strings.Repeat("é", 25)
	chunks = splitText(long, 10)
	require.Len(t, chunks, 3)
	assert.Equal(t, long, strings.Join(chunks, ""))
}

type salesMap map[string]int

func (m salesMap) SalesSince(id string, _ time.Time) int { return m[id] }

func TestSuggest(t *testing.T) {
	t.Parallel()
	products := []inventory.Product{
		{ID: "fast", Name: "Fast", Quantity: 5},
		{ID: "stocked", Name: "Stocked", Quantity: 500},
		{ID: "idle", Name: "Idle", Quantity: 0},
		{ID: "slow", Name: "Slow", Quantity: 3},
	}
	sales := salesMap{"fast": 70, "stocked": 70, "slow": 1}

	items := Suggest(products, sales, time.Now(), SuggestConfig{Threshold: 10})
	require.Len(t, items, 2)

	assert.Equal(t, "fast", items[0].ProductID)
	assert.InDelta(t, 10.0, items[0].DailyRate, 1e-9)
	assert.Equal(t, 135, items[0].Reorder) // 10/day * 14 days - 5

	// Slow sellers are topped up to the threshold.
	assert.Equal(t, "slow", items[1].ProductID)
	assert.Equal(t, 7, items[1].Reorder)
}

func TestSuggestWithoutSalesIsEmpty(t *testing.T) {
	t.Parallel()
	items := Suggest([]inventory.Product{{ID: "P1", Name: "Widget", Quantity: 1}}, salesMap{}, time.Now(), SuggestConfig{})
	assert.Empty(t, items)
	assert.True(t, Suggestion{Items: items}.Empty())
}

func TestTwilioSendAlert(t *testing.T) {
	t.Parallel()
	var (
		mu   sync.Mutex
		form map[string][]string
		path string
		user string
		pass string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		mu.Lock()
		form = r.PostForm
		path = r.URL.Path
		user, pass, _ = r.BasicAuth()
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"sid":"SM1","status":"queued"}`)
	}))
	defer srv.Close()

	ch, err := NewTwilio(MessagingConfig{
		AccountSID: "AC123",
		AuthToken:  "secret",
		FromNumber: "+14155238886",
		ToNumber:   "whatsapp:+15550001111",
		APIBase:    srv.URL,
	})
	require.NoError(t, err)
	require.NoError(t, ch.SendAlert(context.Background(), lowAlert()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", path)
	assert.Equal(t, "AC123", user)
	assert.Equal(t, "secret", pass)
	assert.Equal(t, "whatsapp:+14155238886", form["From"][0])
	assert.Equal(t, "whatsapp:+15550001111", form["To"][0])
	assert.Contains(t, form["Body"][0], "LOW STOCK")
	assert.Equal(t, inventory.AgentMessaging, ch.Agent())
}

func TestTwilioErrorResponse(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 21211, "message": "Invalid 'To' Phone Number", "status": 400})
	}))
	defer srv.Close()

	ch, err := NewTwilio(MessagingConfig{AccountSID: "AC1", AuthToken: "t", FromNumber: "+1", ToNumber: "+2", APIBase: srv.URL})
	require.NoError(t, err)

	err = ch.SendReport(context.Background(), Report{})
	require.Error(t, err)
	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "twilio", de.Channel)
	assert.Equal(t, "report", de.Op)
	assert.Contains(t, err.Error(), "21211")
	var rest *twclient.TwilioRestError
	require.True(t, errors.As(err, &rest))
	assert.Equal(t, 21211, rest.Code)
}

func TestTwilioConfigValidation(t *testing.T) {
	_, err := NewTwilio(MessagingConfig{AccountSID: "AC1", AuthToken: "t", FromNumber: "+1"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewTwilio(MessagingConfig{AccountSID: "AC1", AuthToken: "t", FromNumber: "+1", ToNumber: "+2", APIBase: "not a url"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api base")

	ch, err := NewTwilio(MessagingConfig{AccountSID: "AC1", AuthToken: " tok ", FromNumber: "+1", ToNumber: "+2"})
	require.NoError(t, err)
	assert.Equal(t, " tok ", ch.token)
	assert.Nil(t, ch.base)
}

func TestTwilioHonorsContext(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ch, err := NewTwilio(MessagingConfig{AccountSID: "AC1", AuthToken: "t", FromNumber: "+1", ToNumber: "+2", APIBase: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = ch.SendAlert(ctx, lowAlert())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestTelegramSend(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	var body atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		raw, _ := io.ReadAll(r.Body)
		body.Store(string(raw))
		assert.True(t, strings.HasSuffix(r.URL.Path, "/sendMessage"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":1700000000,"chat":{"id":42,"type":"private"},"text":"ok"}}`)
	}))
	defer srv.Close()

	ch, err := NewTelegram(MessagingConfig{BotToken: "123:abc", ChatID: 42, APIURL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, ch.SendAlert(context.Background(), lowAlert()))

	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, body.Load().(string), "Widget")
	assert.Contains(t, body.Load().(string), "42")
}

func TestTelegramAPIError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
	}))
	defer srv.Close()

	ch, err := NewTelegram(MessagingConfig{BotToken: "123:abc", ChatID: 42, APIURL: srv.URL})
	require.NoError(t, err)
	err = ch.SendAlert(context.Background(), lowAlert())
	require.Error(t, err)
	var de *DeliveryError
	assert.True(t, errors.As(err, &de))
}

func TestBuild(t *testing.T) {
	t.Parallel()

	chs, err := Build(Config{})
	require.NoError(t, err)
	assert.Empty(t, chs)

	chs, err = Build(Config{
		Messaging: MessagingConfig{Enabled: true, AccountSID: "AC1", AuthToken: "t", FromNumber: "+1", ToNumber: "+2"},
		Email:     EmailConfig{Enabled: true, Host: "smtp.example.com", Port: 587, Username: "shop@example.com", To: "owner@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"twilio", "email"}, Names(chs))

	_, err = Build(Config{
		Messaging: MessagingConfig{Enabled: true, Driver: "telegram"},
		Email:     EmailConfig{Enabled: true},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Contains(t, err.Error(), "telegram")
	assert.Contains(t, err.Error(), "email")

	_, err = Build(Config{Messaging: MessagingConfig{Enabled: true, Driver: "pigeon"}})
	assert.ErrorContains(t, err, "pigeon")
}

type fakeChannel struct {
	name  string
	err   error
	delay time.Duration

	mu      sync.Mutex
	reports int
}

func (f *fakeChannel) Name() string           { return f.name }
func (f *fakeChannel) Agent() inventory.Agent { return inventory.AgentMessaging }
func (f *fakeChannel) SendAlert(ctx context.Context, a Alert) error {
	return f.err
}
func (f *fakeChannel) SendReport(ctx context.Context, r Report) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.reports++
	f.mu.Unlock()
	return f.err
}
func (f *fakeChannel) SuggestActions(ctx context.Context, s Suggestion) error { return f.err }

func TestMultiJoinsFailures(t *testing.T) {
	t.Parallel()
	ok := &fakeChannel{name: "ok"}
	bad := &fakeChannel{name: "bad", err: errors.New("boom")}
	var seen []string
	m := Multi{
		Channels: []Channel{bad, ok},
		OnResult: func(ch Channel, err error) { seen = append(seen, ch.Name()) },
	}

	err := m.SendReport(context.Background(), Report{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.NotContains(t, err.Error(), "ok send")
	assert.Equal(t, []string{"bad", "ok"}, seen)
	assert.Equal(t, 1, ok.reports)

	assert.NoError(t, m.SuggestActions(context.Background(), Suggestion{}))
}

func TestCallBoundsHungChannel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Call(ctx, func(context.Context) error {
		time.Sleep(time.Second)
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	err = Call(context.Background(), func(context.Context) error { panic("kaboom") })
	assert.ErrorContains(t, err, "kaboom")
}

func TestProviderSwap(t *testing.T) {
	t.Parallel()
	a := &fakeChannel{name: "a"}
	b := &fakeChannel{name: "b"}
	p := NewProvider(a)

	got := p.Channels()
	require.Len(t, got, 1)
	prev := p.Swap([]Channel{b})
	assert.Equal(t, "a", prev[0].Name())
	assert.Equal(t, "a", got[0].Name())
	assert.Equal(t, []string{"b"}, Names(p.Channels()))

	var nilProvider *Provider
	assert.Empty(t, nilProvider.Channels())
}
