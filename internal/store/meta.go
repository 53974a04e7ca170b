package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// CacheMeta records when a collection was last replaced from the backend.
type CacheMeta struct {
	Collection string    `json:"collection"`
	LastSync   time.Time `json:"lastSync"`
	ItemCount  int       `json:"itemCount"`
}

// SetCacheMeta saves the resync stamp for a collection.
func (s *Store) SetCacheMeta(meta CacheMeta) error {
	if err := s.ensureInit(); err != nil {
		return storageErr("setCacheMeta", CacheMetaCollection, err)
	}
	raw, err := json.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("marshal cache meta: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket(CacheMetaCollection)).Put([]byte(meta.Collection), raw)
	})
	return storageErr("setCacheMeta", CacheMetaCollection, err)
}

// GetCacheMeta returns the resync stamp for a collection, or false when the
// collection has never been resynced.
func (s *Store) GetCacheMeta(collection string) (CacheMeta, bool, error) {
	if err := s.ensureInit(); err != nil {
		return CacheMeta{}, false, storageErr("getCacheMeta", CacheMetaCollection, err)
	}
	var meta CacheMeta
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(recordsBucket(CacheMetaCollection)).Get([]byte(collection))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &meta)
	})
	if err != nil {
		return CacheMeta{}, false, storageErr("getCacheMeta", CacheMetaCollection, err)
	}
	return meta, found, nil
}
