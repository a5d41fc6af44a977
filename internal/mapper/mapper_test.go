package mapper

import (
	"encoding/json"
	"testing"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
	"github.com/NordCoder/Feedwatch/internal/domain/item"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_ItemsPath(t *testing.T) {
	raw := mustDecode(t, `{"data": {"list": [
		{"id": 1, "at": "2024-01-01T00:00:00Z", "info": {"name": "first", "amount": 10}},
		{"id": 2, "at": "2024-01-02T00:00:00Z", "info": {"name": "second"}}
	]}}`)

	items := Map(raw, endpoint.Mapping{
		ItemsPath:     "data.list",
		IDPath:        "id",
		TimestampPath: "at",
		TitlePath:     "info.name",
		DetailsPath:   "info.amount",
	})
	require.Len(t, items, 2)

	assert.Equal(t, json.Number("1"), items[0].ID)
	assert.Equal(t, "2024-01-01T00:00:00Z", items[0].Timestamp)
	assert.Equal(t, "first", items[0].Title)
	assert.Equal(t, json.Number("10"), items[0].Details)

	assert.Equal(t, "second", items[1].Title)
	assert.Nil(t, items[1].Details)
	assert.Equal(t, []string{"1", "2"}, item.Keys(items))
}

func TestMap_OptionalPathsLeftEmpty(t *testing.T) {
	raw := mustDecode(t, `[{"id": "a", "title": "ignored"}]`)
	items := Map(raw, endpoint.Mapping{ItemsPath: "x", IDPath: "id"})
	require.Len(t, items, 1)
	assert.Nil(t, items[0].Title)
	assert.Nil(t, items[0].Details)
	assert.Nil(t, items[0].Timestamp)
}

func TestMap_Fallbacks(t *testing.T) {
	m := endpoint.Mapping{ItemsPath: "results", IDPath: "id"}

	t.Run("top level array", func(t *testing.T) {
		items := Map(mustDecode(t, `[{"id": 1}, {"id": 2}]`), m)
		assert.Equal(t, []string{"1", "2"}, item.Keys(items))
	})
	t.Run("items key", func(t *testing.T) {
		items := Map(mustDecode(t, `{"items": [{"id": 3}]}`), m)
		assert.Equal(t, []string{"3"}, item.Keys(items))
	})
	t.Run("path not an array", func(t *testing.T) {
		items := Map(mustDecode(t, `{"results": {"id": 9}, "items": [{"id": 4}]}`), m)
		assert.Equal(t, []string{"4"}, item.Keys(items))
	})
	t.Run("nothing usable", func(t *testing.T) {
		assert.Empty(t, Map(mustDecode(t, `{"foo": "bar"}`), m))
		assert.Empty(t, Map(nil, m))
		assert.Empty(t, Map("text", m))
	})
}

func TestMap_PreservesOrderAndLength(t *testing.T) {
	raw := mustDecode(t, `{"rows": [{"id": "c"}, {"nope": 1}, {"id": "a"}, {"id": "b"}]}`)
	items := Map(raw, endpoint.Mapping{ItemsPath: "rows", IDPath: "id"})
	require.Len(t, items, 4)
	assert.Equal(t, "c", items[0].ID)
	assert.Nil(t, items[1].ID)
	assert.Equal(t, "a", items[2].ID)
	assert.Equal(t, "b", items[3].ID)

	// Map is pure: same input, same output.
	assert.Equal(t, items, Map(raw, endpoint.Mapping{ItemsPath: "rows", IDPath: "id"}))
}

func TestDecodeBytes_Empty(t *testing.T) {
	v, err := DecodeBytes([]byte("  "))
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = DecodeBytes([]byte("{"))
	assert.Error(t, err)
}
