package inventory

import (
	"sort"
	"strings"
	"time"
)

// ActivityFilter narrows Activities. Zero fields match everything.
type ActivityFilter struct {
	Agent  Agent
	Action string // case-insensitive substring
	Since  time.Time
	Limit  int
}

// Activities returns matching records, most recent first.
func (s *Store) Activities(f ActivityFilter) []ActivityRecord {
	action := strings.ToLower(strings.TrimSpace(f.Action))

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []ActivityRecord{}
	for i := len(s.activities) - 1; i >= 0; i-- {
		a := s.activities[i]
		if f.Agent != "" && a.Agent != f.Agent {
			continue
		}
		if action != "" && !strings.Contains(strings.ToLower(string(a.Action)), action) {
			continue
		}
		if !f.Since.IsZero() && a.Timestamp.Before(f.Since) {
			continue
		}
		out = append(out, a)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Categories returns the distinct non-empty categories, sorted.
func (s *Store) Categories() []string {
	s.mu.RLock()
	seen := map[string]struct{}{}
	for _, p := range s.products {
		if p.Category != "" {
			seen[p.Category] = struct{}{}
		}
	}
	s.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Search matches term against name and ID (case-insensitive) and, when
// category is set, requires an exact category match.
func (s *Store) Search(term, category string) []Product {
	term = strings.ToLower(strings.TrimSpace(term))
	category = strings.TrimSpace(category)

	s.mu.RLock()
	out := []Product{}
	for _, p := range s.products {
		if category != "" && p.Category != category {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(p.Name), term) && !strings.Contains(strings.ToLower(p.ID), term) {
			continue
		}
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SalesSince sums units sold for id at or after since.
func (s *Store) SalesSince(id string, since time.Time) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, sl := range s.sales[id] {
		if !sl.at.Before(since) {
			total += sl.qty
		}
	}
	return total
}
