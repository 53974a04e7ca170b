package server

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDocStore(t *testing.T) *DocStore {
	t.Helper()
	docs, err := OpenDocStore(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close() })
	return docs
}

func TestDocStore_CreateAssignsIDAndStamps(t *testing.T) {
	docs := newTestDocStore(t)

	id, err := docs.Create("invoices", map[string]any{"number": "INV-1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := docs.Get("invoices", id)
	require.NoError(t, err)
	assert.Equal(t, id, doc.ID())
	assert.Equal(t, "INV-1", doc["number"])
	assert.Contains(t, doc, "createdAt")
	assert.Contains(t, doc, "updatedAt")
}

func TestDocStore_ListInCreationOrder(t *testing.T) {
	docs := newTestDocStore(t)

	var ids []string
	for _, n := range []string{"INV-1", "INV-2", "INV-3"} {
		id, err := docs.Create("invoices", map[string]any{"number": n})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	list, err := docs.List("invoices")
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, doc := range list {
		assert.Equal(t, ids[i], doc.ID())
	}
}

func TestDocStore_ListUnknownResourceIsEmpty(t *testing.T) {
	docs := newTestDocStore(t)
	list, err := docs.List("ghosts")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDocStore_UpdateMergesFields(t *testing.T) {
	docs := newTestDocStore(t)
	id, err := docs.Create("items", map[string]any{"name": "bolt", "price": 2})
	require.NoError(t, err)

	require.NoError(t, docs.Update("items", id, map[string]any{"price": 3, "id": "spoofed", "createdAt": 0}))

	doc, err := docs.Get("items", id)
	require.NoError(t, err)
	assert.Equal(t, "bolt", doc["name"])
	assert.EqualValues(t, 3, doc["price"])
	// id and createdAt cannot be overwritten.
	assert.Equal(t, id, doc.ID())
	assert.NotEqualValues(t, 0, doc["createdAt"])
}

func TestDocStore_UpdateMissingFails(t *testing.T) {
	docs := newTestDocStore(t)
	err := docs.Update("items", "nope", map[string]any{"price": 3})
	assert.ErrorIs(t, err, ErrDocNotFound)
}

func TestDocStore_DeleteIsIdempotent(t *testing.T) {
	docs := newTestDocStore(t)
	id, err := docs.Create("items", map[string]any{"name": "bolt"})
	require.NoError(t, err)

	require.NoError(t, docs.Delete("items", id))
	require.NoError(t, docs.Delete("items", id))
	require.NoError(t, docs.Delete("ghosts", "nope"))

	_, err = docs.Get("items", id)
	assert.ErrorIs(t, err, ErrDocNotFound)
}
