package inventory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	logx "stockwatch/pkg/logx"
)

type fileProduct struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Quantity    *int     `json:"quantity"`
	Price       *float64 `json:"price"`
	LastUpdated string   `json:"last_updated"`
}

type fileActivity struct {
	Timestamp string `json:"timestamp"`
	Agent     string `json:"agent"`
	Action    string `json:"action"`
	Details   string `json:"details"`
}

type fileSnapshot struct {
	Inventory   map[string]json.RawMessage `json:"inventory"`
	ActivityLog []fileActivity             `json:"activity_log"`
}

// Accepted on load. Older snapshot files carry naive local timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

// Persist writes products and the full activity log to the snapshot file.
// The write goes to a temp file in the same directory which is then renamed
// over the target, so a crash mid-write leaves the previous file intact.
func (s *Store) Persist() error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	data, err := s.encode()
	if err != nil {
		return &StoreIOError{Op: "encode", Path: s.path, Err: err}
	}
	if err := writeAtomic(s.path, data); err != nil {
		s.log.Warn("persist failed", logx.String("path", s.path), logx.Err(err))
		return &StoreIOError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}

func (s *Store) encode() ([]byte, error) {
	s.mu.RLock()
	snap := struct {
		Inventory   map[string]fileProduct `json:"inventory"`
		ActivityLog []fileActivity         `json:"activity_log"`
	}{
		Inventory:   make(map[string]fileProduct, len(s.products)),
		ActivityLog: make([]fileActivity, 0, len(s.activities)),
	}
	for id, p := range s.products {
		q, price := p.Quantity, p.Price
		snap.Inventory[id] = fileProduct{
			Name:        p.Name,
			Category:    p.Category,
			Quantity:    &q,
			Price:       &price,
			LastUpdated: formatTimestamp(p.LastUpdated),
		}
	}
	for _, a := range s.activities {
		snap.ActivityLog = append(snap.ActivityLog, fileActivity{
			Timestamp: formatTimestamp(a.Timestamp),
			Agent:     string(a.Agent),
			Action:    string(a.Action),
			Details:   a.Details,
		})
	}
	s.mu.RUnlock()

	return json.MarshalIndent(snap, "", "  ")
}

// WriteJSON writes the same {"inventory", "activity_log"} document Persist
// stores on disk.
func (s *Store) WriteJSON(w io.Writer) error {
	data, err := s.encode()
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load replaces the in-memory state with the snapshot file contents.
//
// A missing file yields an empty store and a nil error. A corrupt file yields
// an empty store and a *StoreIOError. Both cases, and any rejected product
// entries, are recorded as one error activity.
func (s *Store) Load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		s.reset()
		if errors.Is(err, fs.ErrNotExist) {
			_ = s.Append(AgentMonitor, ActionError, fmt.Sprintf("No data file at %s, starting with an empty inventory", s.path))
			s.log.Info("no snapshot file, starting empty", logx.String("path", s.path))
			return nil
		}
		_ = s.Append(AgentMonitor, ActionError, fmt.Sprintf("Could not read %s, starting with an empty inventory: %v", s.path, err))
		return &StoreIOError{Op: "read", Path: s.path, Err: err}
	}

	var snap fileSnapshot
	if len(bytes.TrimSpace(raw)) == 0 {
		err = errors.New("empty file")
	} else {
		err = json.Unmarshal(raw, &snap)
	}
	if err != nil {
		s.reset()
		_ = s.Append(AgentMonitor, ActionError, fmt.Sprintf("Data file %s is corrupt, starting with an empty inventory: %v", s.path, err))
		s.log.Warn("corrupt snapshot, starting empty", logx.String("path", s.path), logx.Err(err))
		return &StoreIOError{Op: "decode", Path: s.path, Err: err}
	}

	// Keys that trim to the same ID are ambiguous; none of them is kept.
	keys := make([]string, 0, len(snap.Inventory))
	byID := make(map[string][]string, len(snap.Inventory))
	for key := range snap.Inventory {
		keys = append(keys, key)
		id := strings.TrimSpace(key)
		byID[id] = append(byID[id], key)
	}
	sort.Strings(keys)

	products := make(map[string]Product, len(snap.Inventory))
	var rejected []string
	for _, key := range keys {
		if dup := byID[strings.TrimSpace(key)]; len(dup) > 1 {
			rejected = append(rejected, fmt.Sprintf("%q (id collides with %d other entries after trimming)", key, len(dup)-1))
			continue
		}
		p, err := decodeProduct(key, snap.Inventory[key])
		if err != nil {
			rejected = append(rejected, fmt.Sprintf("%q (%v)", key, err))
			continue
		}
		products[p.ID] = p
	}

	activities := make([]ActivityRecord, 0, len(snap.ActivityLog))
	for _, a := range snap.ActivityLog {
		ts, _ := parseTimestamp(a.Timestamp)
		activities = append(activities, ActivityRecord{
			Timestamp: ts,
			Agent:     Agent(a.Agent),
			Action:    Action(a.Action),
			Details:   a.Details,
		})
	}

	s.mu.Lock()
	s.products = products
	s.activities = activities
	s.sales = rebuildSales(activities)
	s.mu.Unlock()

	if len(rejected) > 0 {
		_ = s.Append(AgentMonitor, ActionError, fmt.Sprintf("Rejected %d malformed product entries on load: %s",
			len(rejected), strings.Join(rejected, "; ")))
		s.log.Warn("rejected malformed products", logx.Int("count", len(rejected)))
	}
	s.log.Info("snapshot loaded",
		logx.String("path", s.path),
		logx.Int("products", len(products)),
		logx.Int("activities", len(activities)),
	)
	return nil
}

func (s *Store) reset() {
	s.mu.Lock()
	s.products = map[string]Product{}
	s.activities = nil
	s.sales = map[string][]sale{}
	s.mu.Unlock()
}

func decodeProduct(id string, raw json.RawMessage) (Product, error) {
	id = strings.TrimSpace(id)
	var fp fileProduct
	if err := json.Unmarshal(raw, &fp); err != nil {
		return Product{}, err
	}
	if fp.Quantity == nil {
		return Product{}, errors.New("missing quantity")
	}
	if fp.Price == nil {
		return Product{}, errors.New("missing price")
	}
	if err := validateFields(id, strings.TrimSpace(fp.Name), *fp.Quantity, *fp.Price); err != nil {
		return Product{}, err
	}
	updated, _ := parseTimestamp(fp.LastUpdated)
	return Product{
		ID:          id,
		Name:        strings.TrimSpace(fp.Name),
		Category:    strings.TrimSpace(fp.Category),
		Quantity:    *fp.Quantity,
		Price:       *fp.Price,
		LastUpdated: updated,
	}, nil
}

var soldRe = regexp.MustCompile(`^Sold (\d+) units of .* \(ID: (.+?)\)`)

// rebuildSales recovers the per-product sales ledger from sell_product records.
func rebuildSales(activities []ActivityRecord) map[string][]sale {
	out := map[string][]sale{}
	for _, a := range activities {
		if a.Action != ActionSellProduct {
			continue
		}
		m := soldRe.FindStringSubmatch(a.Details)
		if m == nil {
			continue
		}
		qty, err := strconv.Atoi(m[1])
		if err != nil || qty <= 0 {
			continue
		}
		out[m[2]] = append(out[m[2]], sale{at: a.Timestamp, qty: qty})
	}
	return out
}
