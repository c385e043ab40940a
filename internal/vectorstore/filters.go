package vectorstore

import (
	"fmt"
	"sort"
	"strconv"
)

// sortedKeys returns filter keys in a stable order so generated queries are deterministic.
func sortedKeys(filters map[string]any) []string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stringify renders a payload value for backends that only store strings.
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
