package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocalID(t *testing.T) {
	id := NewLocalID()
	assert.True(t, IsLocalID(id))
	assert.NotEqual(t, id, NewLocalID())
}

func TestIsLocalID(t *testing.T) {
	assert.True(t, IsLocalID("offline_abc"))
	assert.False(t, IsLocalID("Fb8d0sQ2"))
	assert.False(t, IsLocalID(""))
}

func TestRecord_ID(t *testing.T) {
	assert.Equal(t, "inv-1", Record{"id": "inv-1"}.ID())
	assert.Equal(t, "", Record{}.ID())
	assert.Equal(t, "", Record{"id": 42}.ID())
}

func TestRecord_Clone(t *testing.T) {
	r := Record{"id": "a", "total": 1}
	c := r.Clone()
	c["total"] = 2
	assert.Equal(t, 1, r["total"])
}

func TestRecord_LastModifiedAcceptsJSONNumbers(t *testing.T) {
	stamp := time.Now().UnixMilli()

	r := Record{MetaLastModified: stamp}
	assert.Equal(t, time.UnixMilli(stamp), r.LastModified())

	// After a JSON round trip the stamp decodes as float64.
	raw, err := json.Marshal(r)
	require.NoError(t, err)
	var decoded Record
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, time.UnixMilli(stamp), decoded.LastModified())

	assert.True(t, Record{}.LastModified().IsZero())
}
