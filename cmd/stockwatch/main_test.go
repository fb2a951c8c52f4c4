package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "stockwatch.yaml")
	body := "store:\n  path: " + filepath.Join(dir, "inventory.json") + "\nmonitor:\n  low_stock_threshold: 10\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, cfgPath string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestAddSellStatus(t *testing.T) {
	cfg := writeConfig(t)

	out, _, err := execute(t, cfg, "add", "W1", "Widget", "--qty", "12", "--price", "2.5", "--category", "tools")
	require.NoError(t, err)
	assert.Contains(t, out, "added W1")

	out, _, err = execute(t, cfg, "sell", "W1", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "sold 5 of W1")

	out, _, err = execute(t, cfg, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "products: 1")
	assert.Contains(t, out, "low: 1")
	assert.Contains(t, out, "channels: none")
	assert.Contains(t, out, "Widget")
	assert.Contains(t, out, "Sold 5")
}

func TestRejectedInput(t *testing.T) {
	cfg := writeConfig(t)

	_, _, err := execute(t, cfg, "sell", "missing", "1")
	require.Error(t, err)

	_, _, err = execute(t, cfg, "sell", "W1", "many")
	require.Error(t, err)

	_, _, err = execute(t, cfg, "add", "W1")
	require.Error(t, err)
}

func TestExportCSV(t *testing.T) {
	cfg := writeConfig(t)
	_, _, err := execute(t, cfg, "add", "B2", "Bolt", "--qty", "3", "--price", "0.5")
	require.NoError(t, err)
	_, _, err = execute(t, cfg, "add", "A1", "Anchor", "--qty", "20", "--price", "1")
	require.NoError(t, err)

	out, _, err := execute(t, cfg, "export")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,name,category,quantity,price,value,last_updated", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "A1,Anchor,"))
	assert.True(t, strings.HasPrefix(lines[2], "B2,Bolt,,3,0.50,1.50,"))
}

func TestExportJSON(t *testing.T) {
	cfg := writeConfig(t)
	_, _, err := execute(t, cfg, "add", "W1", "Widget", "--qty", "4", "--price", "2")
	require.NoError(t, err)
	_, _, err = execute(t, cfg, "sell", "W1", "1")
	require.NoError(t, err)

	out, _, err := execute(t, cfg, "export", "--format", "json")
	require.NoError(t, err)
	var doc struct {
		Inventory map[string]struct {
			Name     string `json:"name"`
			Quantity int    `json:"quantity"`
		} `json:"inventory"`
		ActivityLog []struct {
			Action  string `json:"action"`
			Details string `json:"details"`
		} `json:"activity_log"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Contains(t, doc.Inventory, "W1")
	assert.Equal(t, 3, doc.Inventory["W1"].Quantity)
	require.NotEmpty(t, doc.ActivityLog)
	assert.Equal(t, "sell_product", doc.ActivityLog[len(doc.ActivityLog)-1].Action)

	_, _, err = execute(t, cfg, "export", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown export format")
}

func TestAlertWithoutChannelsIsRecorded(t *testing.T) {
	cfg := writeConfig(t)
	_, _, err := execute(t, cfg, "add", "E1", "Empty", "--qty", "0", "--price", "1")
	require.NoError(t, err)

	out, _, err := execute(t, cfg, "alert")
	require.NoError(t, err)
	assert.Contains(t, out, "1 alert(s) raised")

	out, _, err = execute(t, cfg, "activity", "--agent", "monitor", "--action", "alert")
	require.NoError(t, err)
	assert.Contains(t, out, "Out of stock alert for Empty (ID: E1)")
	assert.Contains(t, out, "no channels configured")
}

func TestReportWithoutChannelsFails(t *testing.T) {
	cfg := writeConfig(t)
	_, _, err := execute(t, cfg, "report")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no")
}

func TestCheckConfig(t *testing.T) {
	cfg := writeConfig(t)
	out, _, err := execute(t, cfg, "check-config")
	require.NoError(t, err)
	assert.Contains(t, out, "config ok")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("monitor:\n  poll_interval: soon\n"), 0o644))
	_, _, err = execute(t, bad, "check-config")
	require.Error(t, err)
}

func TestAdjustNegativeDelta(t *testing.T) {
	cfg := writeConfig(t)
	_, _, err := execute(t, cfg, "add", "W1", "Widget", "--qty", "5", "--price", "1")
	require.NoError(t, err)

	out, _, err := execute(t, cfg, "adjust", "W1", "--", "-3")
	require.NoError(t, err)
	assert.Contains(t, out, "adjusted W1 by -3")

	_, _, err = execute(t, cfg, "adjust", "W1", "--", "-3")
	require.Error(t, err)

	out, _, err = execute(t, cfg, "search", "widg")
	require.NoError(t, err)
	assert.Contains(t, out, "W1")
	assert.Contains(t, out, "low")
}
