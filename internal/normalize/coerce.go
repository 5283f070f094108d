package normalize

import (
	"encoding/json"
	"sort"
	"strconv"
)

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatInt(int64(t), 10)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

func asInt(v interface{}) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case json.Number:
		n, _ := t.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}

func asSlice(v interface{}) []interface{} {
	s, _ := v.([]interface{})
	return s
}

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

// toBytes coerces the blob shapes the host emits into a byte slice:
// plain strings, numeric arrays, and objects keyed by decimal indexes
// ("0", "1", ...) which are read in index order.
func toBytes(v interface{}) []byte {
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		return t
	case string:
		return []byte(t)
	case []interface{}:
		out := make([]byte, 0, len(t))
		for _, e := range t {
			out = append(out, byte(asInt(e)))
		}
		return out
	case map[string]interface{}:
		idx := make([]int, 0, len(t))
		for k := range t {
			if n, err := strconv.Atoi(k); err == nil {
				idx = append(idx, n)
			}
		}
		if len(idx) == 0 {
			return nil
		}
		sort.Ints(idx)
		out := make([]byte, 0, len(idx))
		for _, n := range idx {
			out = append(out, byte(asInt(t[strconv.Itoa(n)])))
		}
		return out
	default:
		return nil
	}
}
