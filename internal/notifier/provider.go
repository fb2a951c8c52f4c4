package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"stockwatch/internal/inventory"
)

// Build constructs every enabled channel. An enabled channel with missing or
// invalid settings is an error; nothing is returned in that case.
func Build(cfg Config) ([]Channel, error) {
	var (
		out  []Channel
		errs []error
	)
	if cfg.Messaging.Enabled {
		driver := strings.ToLower(strings.TrimSpace(cfg.Messaging.Driver))
		switch driver {
		case "", DriverTwilio:
			ch, err := NewTwilio(cfg.Messaging)
			if err != nil {
				errs = append(errs, err)
			} else {
				out = append(out, ch)
			}
		case DriverTelegram:
			ch, err := NewTelegram(cfg.Messaging)
			if err != nil {
				errs = append(errs, err)
			} else {
				out = append(out, ch)
			}
		default:
			errs = append(errs, fmt.Errorf("messaging: unknown driver %q", cfg.Messaging.Driver))
		}
	}
	if cfg.Email.Enabled {
		ch, err := NewEmail(cfg.Email)
		if err != nil {
			errs = append(errs, err)
		} else {
			out = append(out, ch)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

// Provider holds the current channel set. Readers take a copy per use, so a
// Swap never affects a dispatch already in progress.
type Provider struct {
	mu  sync.RWMutex
	chs []Channel
}

func NewProvider(chs ...Channel) *Provider {
	return &Provider{chs: append([]Channel(nil), chs...)}
}

func (p *Provider) Channels() []Channel {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Channel(nil), p.chs...)
}

// Swap installs chs and returns the previous set.
func (p *Provider) Swap(chs []Channel) []Channel {
	p.mu.Lock()
	prev := p.chs
	p.chs = append([]Channel(nil), chs...)
	p.mu.Unlock()
	return prev
}

// Names lists channel names in order, for logs.
func Names(chs []Channel) []string {
	out := make([]string, 0, len(chs))
	for _, ch := range chs {
		out = append(out, ch.Name())
	}
	return out
}

// Multi fans each call out to every channel in order. A failure on one
// channel does not stop the rest; the returned error joins all failures.
type Multi struct {
	Channels []Channel
	// OnResult, when set, observes each channel's outcome.
	OnResult func(ch Channel, err error)
}

func (m Multi) Name() string           { return "multi" }
func (m Multi) Agent() inventory.Agent { return inventory.AgentMonitor }

func (m Multi) SendAlert(ctx context.Context, a Alert) error {
	return m.each(ctx, func(ctx context.Context, ch Channel) error { return ch.SendAlert(ctx, a) })
}

func (m Multi) SendReport(ctx context.Context, r Report) error {
	return m.each(ctx, func(ctx context.Context, ch Channel) error { return ch.SendReport(ctx, r) })
}

func (m Multi) SuggestActions(ctx context.Context, s Suggestion) error {
	if s.Empty() {
		return nil
	}
	return m.each(ctx, func(ctx context.Context, ch Channel) error { return ch.SuggestActions(ctx, s) })
}

func (m Multi) each(ctx context.Context, fn func(context.Context, Channel) error) error {
	var errs []error
	for _, ch := range m.Channels {
		ch := ch
		err := Call(ctx, func(ctx context.Context) error { return fn(ctx, ch) })
		if err != nil {
			errs = append(errs, deliveryErr(ch.Name(), "send", err))
		}
		if m.OnResult != nil {
			m.OnResult(ch, err)
		}
	}
	return errors.Join(errs...)
}

// Call runs fn and returns when it finishes or ctx is done, whichever comes
// first. A channel that ignores its context cannot hold the caller past ctx;
// its goroutine finishes in the background.
func Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- fn(ctx)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
