package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"stockwatch/internal/config"
	"stockwatch/internal/eventbus"
	"stockwatch/internal/inventory"
	"stockwatch/internal/notifier"
	logx "stockwatch/pkg/logx"
)

// autosave persists after a foreground mutation. The mutation itself has
// already succeeded; a failed write is returned so the caller knows the
// change is only in memory.
func (c *Controller) autosave(st *inventory.Store, cfg *config.Config) error {
	if !cfg.Store.AutosaveEnabled() {
		return nil
	}
	if err := st.Persist(); err != nil {
		c.log.Warn("autosave failed; persistence degraded", logx.Err(err))
		return fmt.Errorf("persistence degraded: %w", err)
	}
	return nil
}

func (c *Controller) AddProduct(id, name string, quantity int, price float64, category string) error {
	st, cfg, err := c.storeRef()
	if err != nil {
		return err
	}
	if err := st.AddProduct(id, name, quantity, price, category); err != nil {
		return err
	}
	return c.autosave(st, cfg)
}

func (c *Controller) SellProduct(id string, qty int) error {
	st, cfg, err := c.storeRef()
	if err != nil {
		return err
	}
	if err := st.SellProduct(id, qty); err != nil {
		return err
	}
	return c.autosave(st, cfg)
}

func (c *Controller) UpdateQuantity(id string, delta int) error {
	st, cfg, err := c.storeRef()
	if err != nil {
		return err
	}
	if err := st.UpdateQuantity(id, delta); err != nil {
		return err
	}
	return c.autosave(st, cfg)
}

func (c *Controller) UpsertProduct(p inventory.Product) error {
	st, cfg, err := c.storeRef()
	if err != nil {
		return err
	}
	if err := st.UpsertProduct(p); err != nil {
		return err
	}
	return c.autosave(st, cfg)
}

func (c *Controller) DeleteProduct(id string) error {
	st, cfg, err := c.storeRef()
	if err != nil {
		return err
	}
	if err := st.DeleteProduct(id); err != nil {
		return err
	}
	return c.autosave(st, cfg)
}

// Persist writes the snapshot now, regardless of autosave.
func (c *Controller) Persist() error {
	st, _, err := c.storeRef()
	if err != nil {
		return err
	}
	return st.Persist()
}

func (c *Controller) Snapshot() (inventory.Snapshot, error) {
	st, cfg, err := c.storeRef()
	if err != nil {
		return inventory.Snapshot{}, err
	}
	return st.Snapshot(cfg.Monitor.Threshold()), nil
}

func (c *Controller) Products() ([]inventory.Product, error) {
	st, _, err := c.storeRef()
	if err != nil {
		return nil, err
	}
	return st.Products()
}

// ExportJSON writes products and the full activity log as the snapshot
// document.
func (c *Controller) ExportJSON(w io.Writer) error {
	st, _, err := c.storeRef()
	if err != nil {
		return err
	}
	return st.WriteJSON(w)
}

func (c *Controller) Search(term, category string) ([]inventory.Product, error) {
	st, _, err := c.storeRef()
	if err != nil {
		return nil, err
	}
	return st.Search(term, category), nil
}

func (c *Controller) RecentActivities(n int) ([]inventory.ActivityRecord, error) {
	st, _, err := c.storeRef()
	if err != nil {
		return nil, err
	}
	return st.RecentActivities(n), nil
}

func (c *Controller) Activities(f inventory.ActivityFilter) ([]inventory.ActivityRecord, error) {
	st, _, err := c.storeRef()
	if err != nil {
		return nil, err
	}
	return st.Activities(f), nil
}

// TriggerAlertNow alerts every low or out-of-stock product immediately,
// ignoring the re-alert cooldown. It returns how many alerts were recorded.
func (c *Controller) TriggerAlertNow(ctx context.Context) (int, error) {
	loop, err := c.loopRef()
	if err != nil {
		return 0, err
	}
	n, err := loop.AlertNow(ctx)
	c.persistQuietly()
	return n, err
}

// SendReportNow sends the inventory summary and recent activity through
// every channel. Each channel outcome is recorded in the activity log.
func (c *Controller) SendReportNow(ctx context.Context) error {
	st, cfg, err := c.storeRef()
	if err != nil {
		return err
	}
	chans := c.chans.Channels()
	if len(chans) == 0 {
		return notifier.ErrNoChannels
	}
	products, err := st.Products()
	if err != nil {
		return err
	}
	r := notifier.Report{
		Snapshot:    st.Snapshot(cfg.Monitor.Threshold()),
		Activities:  st.RecentActivities(cfg.Reports.Recent()),
		Products:    products,
		GeneratedAt: c.clock(),
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Reports.RunTimeout())
	defer cancel()
	var sent []string
	m := notifier.Multi{Channels: chans, OnResult: func(ch notifier.Channel, err error) {
		if err != nil {
			c.log.Warn("report delivery failed", logx.String("channel", ch.Name()), logx.Err(err))
			c.record(st, ch.Agent(), inventory.ActionError,
				fmt.Sprintf("Failed to send inventory report via %s: %v", ch.Name(), err))
			return
		}
		sent = append(sent, ch.Name())
		c.record(st, ch.Agent(), inventory.ActionReport,
			fmt.Sprintf("Sent inventory report via %s: %d products, %d low stock, %d out of stock",
				ch.Name(), r.Snapshot.TotalProducts, r.Snapshot.LowStock, r.Snapshot.OutOfStock))
	}}
	err = m.SendReport(ctx, r)
	if len(sent) > 0 {
		c.bus.Publish(eventbus.Event{Type: EventReportSent, Data: sent})
	}
	c.persistQuietly()
	return err
}

// SuggestActionsNow computes reorder advice from recent sales and sends it
// through every channel. With no sales history the suggestion is empty and
// no channel is called.
func (c *Controller) SuggestActionsNow(ctx context.Context) (notifier.Suggestion, error) {
	st, cfg, err := c.storeRef()
	if err != nil {
		return notifier.Suggestion{}, err
	}
	products, err := st.Products()
	if err != nil {
		return notifier.Suggestion{}, err
	}
	now := c.clock()
	s := notifier.Suggestion{
		Snapshot:    st.Snapshot(cfg.Monitor.Threshold()),
		Items:       notifier.Suggest(products, st, now, mapSuggestConfig(cfg)),
		GeneratedAt: now,
	}
	if s.Empty() {
		return s, nil
	}
	chans := c.chans.Channels()
	if len(chans) == 0 {
		return s, notifier.ErrNoChannels
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Reports.RunTimeout())
	defer cancel()
	m := notifier.Multi{Channels: chans, OnResult: func(ch notifier.Channel, err error) {
		if err != nil {
			c.record(st, ch.Agent(), inventory.ActionError,
				fmt.Sprintf("Failed to send reorder suggestions via %s: %v", ch.Name(), err))
			return
		}
		c.record(st, ch.Agent(), inventory.ActionSuggestion,
			fmt.Sprintf("Sent %d reorder suggestions via %s", len(s.Items), ch.Name()))
	}}
	err = m.SuggestActions(ctx, s)
	c.persistQuietly()
	return s, err
}

func (c *Controller) record(st *inventory.Store, agent inventory.Agent, action inventory.Action, details string) {
	if err := st.Append(agent, action, details); err != nil {
		c.log.Warn("activity append failed", logx.String("action", string(action)), logx.Err(err))
	}
}

// persistQuietly saves background outcomes when autosave is on. Failures
// are logged only; the next save or shutdown retries.
func (c *Controller) persistQuietly() {
	st, cfg, err := c.storeRef()
	if err != nil || !cfg.Store.AutosaveEnabled() {
		return
	}
	if err := st.Persist(); err != nil {
		c.log.Warn("persist failed", logx.Err(err))
	}
}

// Channels lists the names of the active notification channels.
func (c *Controller) Channels() []string { return notifier.Names(c.chans.Channels()) }

// Reconfigure applies new settings at runtime: channels are rebuilt and
// swapped, monitor knobs and logging are applied, and the report schedule
// is re-registered. When the channels cannot be built nothing changes.
// The store path only takes effect on the next Restart.
func (c *Controller) Reconfigure(next *config.Config) error {
	if next == nil {
		return fmt.Errorf("config is nil")
	}
	if err := next.Validate(); err != nil {
		return err
	}
	chs, err := c.factory(mapNotifierConfig(next))
	if err != nil {
		return fmt.Errorf("build channels: %w", err)
	}

	c.mu.Lock()
	prev := c.cfg
	c.cfg = next
	loop, sched, running := c.loop, c.sched, c.sup != nil
	c.mu.Unlock()

	sections, attrs := config.SummarizeConfigChange(prev, next)
	c.chans.Swap(chs)
	if loop != nil {
		loop.Apply(mapMonitorConfig(next))
	}
	if c.logs != nil {
		c.logs.Apply(LogConfig(next))
	}
	if sched != nil && prev.Reports != next.Reports {
		if err := c.registerReport(sched, next); err != nil {
			c.log.Warn("report schedule rejected", logx.Err(err))
		}
	}
	if running && prev.Debug != next.Debug {
		if err := c.prof.Apply(context.Background(), mapPprofConfig(next)); err != nil {
			c.log.Warn("debug listener not applied", logx.Err(err))
		}
	}
	if prev.Store.Path != next.Store.Path {
		c.log.Warn("store path changed; restart required for it to take effect")
	}
	if prev.Reports.Timezone != next.Reports.Timezone {
		c.log.Warn("report timezone changed; restart required for it to take effect")
	}

	c.bus.Publish(eventbus.Event{Type: EventConfigApplied, Data: sections})
	if len(sections) > 0 {
		fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
		c.log.Info("config applied", fields...)
	} else {
		c.log.Info("config applied (no changes)")
	}
	return nil
}
