package mapper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
	"github.com/NordCoder/Feedwatch/internal/domain/item"
)

// Func is the signature of Map, handy for injection.
type Func func(raw any, m endpoint.Mapping) []item.Item

// Map extracts items from a decoded response. When ItemsPath does not lead
// to an array the raw value itself is used if it is an array, then
// raw.items, and otherwise the result is empty. Order follows the source.
func Map(raw any, m endpoint.Mapping) []item.Item {
	list := itemsOf(raw, m.ItemsPath)
	out := make([]item.Item, 0, len(list))
	for _, el := range list {
		it := item.Item{
			ID:        field(el, m.IDPath),
			Timestamp: field(el, m.TimestampPath),
			Raw:       el,
		}
		if m.TitlePath != "" {
			it.Title = field(el, m.TitlePath)
		}
		if m.DetailsPath != "" {
			it.Details = field(el, m.DetailsPath)
		}
		out = append(out, it)
	}
	return out
}

func itemsOf(raw any, path string) []any {
	if v, ok := Resolve(raw, path); ok {
		if arr, ok := v.([]any); ok {
			return arr
		}
	}
	if arr, ok := raw.([]any); ok {
		return arr
	}
	if obj, ok := raw.(map[string]any); ok {
		if arr, ok := obj["items"].([]any); ok {
			return arr
		}
	}
	return nil
}

func field(el any, path string) any {
	v, _ := Resolve(el, path)
	return v
}

// Decode reads a JSON document keeping numbers as json.Number so large ids
// survive untouched.
func Decode(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}

func DecodeBytes(b []byte) (any, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}
	return Decode(bytes.NewReader(b))
}
