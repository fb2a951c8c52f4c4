package inventory

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistLoadRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.AddProduct("P001", "Widget", 15, 2.5, "tools"))
	require.NoError(t, s.AddProduct("P002", "Gadget", 4, 10, ""))
	require.NoError(t, s.SellProduct("P001", 6))
	require.NoError(t, s.UpdateQuantity("P002", -4))
	require.NoError(t, s.Append(AgentMessaging, ActionAlert, "Low stock: Widget"))
	require.NoError(t, s.Persist())

	fresh := New(s.Path())
	require.NoError(t, fresh.Load())

	wantProducts, err := s.Products()
	require.NoError(t, err)
	gotProducts, err := fresh.Products()
	require.NoError(t, err)
	assert.Equal(t, wantProducts, gotProducts)
	assert.Equal(t, s.RecentActivities(100), fresh.RecentActivities(100))
	assert.Equal(t, 6, fresh.SalesSince("P001", time.Time{}))
}

func TestPersistLeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.AddProduct("P001", "Widget", 1, 1, ""))
	require.NoError(t, s.Persist())
	require.NoError(t, s.Persist())

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "inventory.json", entries[0].Name())
}

func TestPersistUnwritableDirectory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	s := New(filepath.Join(blocker, "inventory.json"))
	require.NoError(t, s.AddProduct("P001", "Widget", 1, 1, ""))
	err := s.Persist()
	require.Error(t, err)
	assert.True(t, IsPersistence(err))

	p, ok := s.Product("P001")
	require.True(t, ok)
	assert.Equal(t, 1, p.Quantity)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Load())

	n, _ := s.Len()
	assert.Zero(t, n)
	acts := s.RecentActivities(10)
	require.Len(t, acts, 1)
	assert.Equal(t, ActionError, acts[0].Action)
	assert.Contains(t, acts[0].Details, "No data file")
}

func TestLoadCorruptFile(t *testing.T) {
	t.Parallel()
	for _, content := range []string{"{not json", "", `["list"]`} {
		path := filepath.Join(t.TempDir(), "inventory.json")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		s := New(path)
		require.NoError(t, s.AddProduct("stale", "Stale", 1, 1, ""))
		err := s.Load()
		require.Error(t, err, content)
		assert.True(t, IsPersistence(err))

		n, acts := s.Len()
		assert.Zero(t, n)
		assert.Equal(t, 1, acts)
		assert.Equal(t, ActionError, s.RecentActivities(1)[0].Action)
	}
}

func TestLoadRejectsMalformedEntries(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "inventory.json")
	doc := `{
  "inventory": {
    "P001": {"name": "Laptop", "category": "Electronics", "quantity": 15, "price": 999.99, "last_updated": "2024-05-01 10:11:12.123456"},
    "P002": {"name": "Mouse", "quantity": -3, "price": 20},
    "P003": {"name": "", "quantity": 1, "price": 1},
    "P004": {"name": "Desk", "quantity": 2},
    "P005": {"name": "Chair", "quantity": "many", "price": 1}
  },
  "activity_log": [
    {"timestamp": "2024-05-01 10:11:12.123456", "agent": "external-caller", "action": "sell_product", "details": "Sold 3 units of Laptop (ID: P001), 15 remaining"}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	s := New(path)
	require.NoError(t, s.Load())

	products, err := s.Products()
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Laptop", products[0].Name)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 11, 12, 123456000, time.UTC), products[0].LastUpdated)

	last := s.RecentActivities(1)[0]
	assert.Equal(t, ActionError, last.Action)
	assert.Contains(t, last.Details, "Rejected 4 malformed")
	for _, id := range []string{"P002", "P003", "P004", "P005"} {
		assert.Contains(t, last.Details, id)
	}
	assert.Equal(t, 3, s.SalesSince("P001", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Zero(t, s.SalesSince("P001", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestLoadRejectsTrimmedIDCollision(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "inventory.json")
	doc := `{
  "inventory": {
    "P1": {"name": "Widget", "quantity": 5, "price": 1},
    " P1": {"name": "Widget Old", "quantity": 9, "price": 2},
    "P2": {"name": "Bolt", "quantity": 3, "price": 0.5}
  },
  "activity_log": []
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	for n := 0; n < 5; n++ {
		s := New(path)
		require.NoError(t, s.Load())

		_, ok := s.Product("P1")
		assert.False(t, ok)
		p, ok := s.Product("P2")
		require.True(t, ok)
		assert.Equal(t, "Bolt", p.Name)

		last := s.RecentActivities(1)[0]
		assert.Equal(t, ActionError, last.Action)
		assert.Contains(t, last.Details, "Rejected 2 malformed")
		assert.Contains(t, last.Details, `"P1" (id collides`)
		assert.Contains(t, last.Details, `" P1" (id collides`)
	}
}

func TestWriteJSONMatchesSnapshot(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.AddProduct("P001", "Widget", 15, 2.5, "tools"))
	require.NoError(t, s.SellProduct("P001", 5))

	var buf bytes.Buffer
	require.NoError(t, s.WriteJSON(&buf))

	var doc struct {
		Inventory map[string]struct {
			Name     string  `json:"name"`
			Quantity int     `json:"quantity"`
			Price    float64 `json:"price"`
		} `json:"inventory"`
		ActivityLog []struct {
			Agent  string `json:"agent"`
			Action string `json:"action"`
		} `json:"activity_log"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Contains(t, doc.Inventory, "P001")
	assert.Equal(t, 10, doc.Inventory["P001"].Quantity)
	require.Len(t, doc.ActivityLog, 2)
	assert.Equal(t, string(ActionSellProduct), doc.ActivityLog[1].Action)

	require.NoError(t, s.Persist())
	disk, err := os.ReadFile(s.path)
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(string(disk)), strings.TrimSpace(buf.String()))
}

func TestQueries(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.AddProduct("P001", "Laptop", 15, 999.99, "Electronics"))
	require.NoError(t, s.AddProduct("P002", "Desk Lamp", 4, 20, "Furniture"))
	require.NoError(t, s.AddProduct("P003", "Laptop Stand", 4, 35, "Furniture"))
	require.NoError(t, s.Append(AgentEmail, ActionReport, "Daily report sent"))

	assert.Equal(t, []string{"Electronics", "Furniture"}, s.Categories())

	hits := s.Search("laptop", "")
	require.Len(t, hits, 2)
	assert.Equal(t, "P001", hits[0].ID)
	hits = s.Search("laptop", "Furniture")
	require.Len(t, hits, 1)
	assert.Equal(t, "P003", hits[0].ID)
	assert.Len(t, s.Search("p00", ""), 3)

	assert.Len(t, s.Activities(ActivityFilter{Agent: AgentEmail}), 1)
	assert.Len(t, s.Activities(ActivityFilter{Action: "ADD"}), 3)
	assert.Len(t, s.Activities(ActivityFilter{Limit: 2}), 2)
	assert.Empty(t, s.Activities(ActivityFilter{Since: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}))
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.AddProduct("P002", "Desk, Oak", 2, 120, "Furniture"))
	require.NoError(t, s.AddProduct("P001", "Laptop", 3, 999.99, "Electronics"))

	var buf bytes.Buffer
	require.NoError(t, s.WriteCSV(&buf))

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"P001", "Laptop", "Electronics", "3", "999.99", "2999.97"}, rows[1][:6])
	assert.Equal(t, "Desk, Oak", rows[2][1])
}
