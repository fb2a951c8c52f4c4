package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// ErrConfigRoot is returned when a config file is not a mapping of sections
// (store, monitor, messaging, ...).
var ErrConfigRoot = errors.New("config root must be a mapping of sections")

func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// yamlToJSON re-encodes a YAML config as JSON so both formats share the
// strict decoder. An empty document yields nil.
func yamlToJSON(data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	if v == nil {
		return nil, nil
	}
	root, ok := stringKeys(v).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w, got %s", ErrConfigRoot, yamlKind(v))
	}
	return json.Marshal(root)
}

// stringKeys rewrites map[any]any nodes with string keys. Non-string keys
// such as `1:` become their printed form and then fail the strict decode as
// unknown fields.
func stringKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = stringKeys(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	default:
		return in
	}
}

func yamlKind(v any) string {
	switch v.(type) {
	case []any:
		return "a list"
	case string, bool, int, int64, uint64, float64:
		return "a scalar"
	default:
		return fmt.Sprintf("%T", v)
	}
}
