package file

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverrideStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "overrides.json")
	s := NewOverrideStore(path)

	_, err := s.GetOverride(ctx, "x")
	assert.ErrorIs(t, err, endpoint.ErrNotFound)

	require.NoError(t, s.PutOverride(ctx, "x", []byte(`{"apiEndpoint":"http://a"}`)))
	require.NoError(t, s.PutOverride(ctx, "b", []byte(`{"apiEndpoint":"http://b"}`)))

	doc, err := NewOverrideStore(path).GetOverride(ctx, "x")
	require.NoError(t, err)
	assert.JSONEq(t, `{"apiEndpoint":"http://a"}`, string(doc))

	tags, err := s.ListOverrideTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "x"}, tags)

	require.NoError(t, s.AddActive(ctx, "x"))
	require.NoError(t, s.AddActive(ctx, "b"))
	require.NoError(t, s.AddActive(ctx, "x"))
	active, err := s.ActiveTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "b"}, active)

	require.NoError(t, s.DeleteOverride(ctx, "b"))
	active, err = s.ActiveTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "b"}, active)

	require.NoError(t, s.Purge(ctx, "x"))
	_, err = s.GetOverride(ctx, "x")
	assert.ErrorIs(t, err, endpoint.ErrNotFound)
	active, err = s.ActiveTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, active)

	require.NoError(t, s.RemoveActive(ctx, "b"))
	active, err = s.ActiveTags(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestOverrideStore_UpdateOverride(t *testing.T) {
	ctx := context.Background()
	s := NewOverrideStore(filepath.Join(t.TempDir(), "overrides.json"))

	require.NoError(t, s.UpdateOverride(ctx, "x", func(cur []byte) ([]byte, error) {
		assert.Nil(t, cur)
		return []byte(`{"n":1}`), nil
	}))
	require.NoError(t, s.UpdateOverride(ctx, "x", func(cur []byte) ([]byte, error) {
		assert.JSONEq(t, `{"n":1}`, string(cur))
		return []byte(`{"n":2}`), nil
	}))

	boom := errors.New("rejected")
	err := s.UpdateOverride(ctx, "x", func([]byte) ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	doc, err := s.GetOverride(ctx, "x")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":2}`, string(doc))
}
