package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stockwatch/internal/eventbus"
	"stockwatch/internal/inventory"
	"stockwatch/internal/notifier"
	logx "stockwatch/pkg/logx"
)

var errNoDelivery = errors.New("no channel delivered the alert")

// storeError marks an activity-log write failure, which aborts the tick.
type storeError struct{ err error }

func (e *storeError) Error() string { return e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

// gate admits channel calls until closed. Stop closes it so nothing new
// starts after Stop returns, even if a tick goroutine outlives the grace.
type gate struct {
	mu     sync.RWMutex
	closed bool
}

func (g *gate) close() {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// call starts fn unless the gate is closed and waits for it or ctx.
func (g *gate) call(ctx context.Context, fn func(context.Context) error) error {
	done := make(chan error, 1)
	g.mu.RLock()
	if g.closed {
		g.mu.RUnlock()
		return ErrStopped
	}
	if err := ctx.Err(); err != nil {
		g.mu.RUnlock()
		return err
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("channel panic: %v", r)
			}
		}()
		done <- fn(ctx)
	}()
	g.mu.RUnlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newAlert(p inventory.Product, cond inventory.Condition, threshold int, now time.Time, reminder bool) notifier.Alert {
	return notifier.Alert{
		ID:        uuid.NewString(),
		ProductID: p.ID,
		Name:      p.Name,
		Quantity:  p.Quantity,
		Condition: cond,
		Threshold: threshold,
		RaisedAt:  now,
		Reminder:  reminder,
	}
}

func conditionLabel(c inventory.Condition) string {
	if c == inventory.ConditionOut {
		return "Out of stock"
	}
	return "Low stock"
}

// dispatch sends a to every channel and records the outcome. The alert
// memory advances only after the alert activity is written and at least one
// channel delivered. With no channels configured the alert is recorded as
// such and the memory still advances.
func (l *Loop) dispatch(ctx context.Context, g *gate, cfg Config, chans []notifier.Channel, a notifier.Alert) error {
	log := l.log.With(logx.String("product", a.ProductID), logx.String("alert", a.ID))
	var delivered []string
	for _, ch := range chans {
		err := l.send(ctx, g, cfg, ch, a)
		if err == nil {
			delivered = append(delivered, ch.Name())
			l.bus.Publish(eventbus.Event{Type: EventAlertSent, Data: AlertEvent{
				AlertID: a.ID, ProductID: a.ProductID, Channel: ch.Name(),
				Condition: a.Condition.String(), Reminder: a.Reminder,
			}})
			continue
		}
		if ctx.Err() != nil || errors.Is(err, ErrStopped) {
			return err
		}
		log.Warn("alert delivery failed", logx.String("channel", ch.Name()), logx.Err(err))
		l.bus.Publish(eventbus.Event{Type: EventAlertFailed, Data: AlertEvent{
			AlertID: a.ID, ProductID: a.ProductID, Channel: ch.Name(),
			Condition: a.Condition.String(), Reminder: a.Reminder, Error: err.Error(),
		}})
		details := fmt.Sprintf("Failed to send %s alert for %s (ID: %s) via %s: %v",
			strings.ToLower(conditionLabel(a.Condition)), a.Name, a.ProductID, ch.Name(), err)
		if aerr := l.store.Append(ch.Agent(), inventory.ActionError, details); aerr != nil {
			return &storeError{err: aerr}
		}
	}
	if len(chans) > 0 && len(delivered) == 0 {
		return errNoDelivery
	}

	details := fmt.Sprintf("%s alert for %s (ID: %s): %d units left", conditionLabel(a.Condition), a.Name, a.ProductID, a.Quantity)
	if a.Reminder {
		details += ", reminder"
	}
	if len(delivered) == 0 {
		details += ", no channels configured"
	} else {
		details += ", sent via " + strings.Join(delivered, ", ")
	}
	if err := l.store.Append(inventory.AgentMonitor, inventory.ActionAlert, details); err != nil {
		return &storeError{err: err}
	}
	l.raised(a.ProductID, a.Condition, a.RaisedAt)
	log.Info("alert recorded", logx.String("condition", a.Condition.String()), logx.Int("channels", len(delivered)))
	return nil
}

// send delivers one alert on one channel within DispatchTimeout, including
// any rate-limit wait.
func (l *Loop) send(ctx context.Context, g *gate, cfg Config, ch notifier.Channel, a notifier.Alert) error {
	cctx, cancel := context.WithTimeout(ctx, cfg.DispatchTimeout)
	defer cancel()
	if lim := l.limiter(ch.Name(), cfg); lim != nil {
		if err := lim.Wait(cctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	return g.call(cctx, func(ctx context.Context) error { return ch.SendAlert(ctx, a) })
}
