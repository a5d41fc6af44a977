package item

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Item is one entry extracted from an API response. Field values keep the
// JSON type they resolved to; nil means the path did not resolve.
type Item struct {
	ID        any `json:"id,omitempty"`
	Timestamp any `json:"timestamp,omitempty"`
	Title     any `json:"title,omitempty"`
	Details   any `json:"details,omitempty"`
	Raw       any `json:"raw"`
}

// Key is the identity used for dedup and mute bookkeeping.
func (it Item) Key() (string, bool) {
	if it.ID == nil {
		return "", false
	}
	return Text(it.ID), true
}

// Text renders a resolved JSON value for humans and for id keys.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

func Keys(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if k, ok := it.Key(); ok {
			out = append(out, k)
		}
	}
	return out
}
