// Package store provides bbolt-based persistence for the offline-first core.
// It manages named record collections with secondary indexes, plus the
// durable sync-operation queue, in a single embedded database file.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/thisai/billsync/internal/models"
	bolt "go.etcd.io/bbolt"
)

// Reserved collections owned by the core rather than domain code.
const (
	QueueCollection     = "sync_queue"
	CacheMetaCollection = "cache_meta"
)

// Collection declares a named record partition and the record fields that
// get a secondary index.
type Collection struct {
	Name    string
	Indexes []string
}

// DefaultCollections mirrors the domain partitions of the business app.
func DefaultCollections() []Collection {
	return []Collection{
		{Name: "invoices", Indexes: []string{"invoiceNumber", "partyId", "date"}},
		{Name: "purchases", Indexes: []string{"invoiceNumber", "partyId", "date"}},
		{Name: "parties", Indexes: []string{"name", "phone", "type"}},
		{Name: "items", Indexes: []string{"name", "barcode", "category"}},
		{Name: "payments", Indexes: []string{"invoiceId", "partyId", "paymentDate"}},
		{Name: "expenses", Indexes: []string{"date", "category"}},
		{Name: "quotations", Indexes: []string{"quotationNumber", "partyId", "status"}},
		{Name: "delivery_challans", Indexes: []string{"challanNumber", "partyId", "status"}},
	}
}

// StorageError wraps an I/O failure from the underlying database. Absence of
// a record is never a StorageError.
type StorageError struct {
	Op         string
	Collection string
	Err        error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Collection: collection, Err: err}
}

// Store is the durable local store. Initialization is lazy and memoized: the
// first operation creates the collection buckets, and concurrent first
// callers share a single setup run.
type Store struct {
	db          *bolt.DB
	collections []Collection
	indexed     map[string]map[string]bool // collection -> field -> indexed

	initOnce sync.Once
	initErr  error

	now func() time.Time // test hook
}

// New opens or creates the database at dbPath. Schema setup is deferred to
// the first operation.
func New(dbPath string, collections []Collection) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	indexed := make(map[string]map[string]bool, len(collections))
	for _, c := range collections {
		fields := make(map[string]bool, len(c.Indexes))
		for _, f := range c.Indexes {
			fields[f] = true
		}
		indexed[c.Name] = fields
	}

	return &Store{
		db:          db,
		collections: collections,
		indexed:     indexed,
		now:         time.Now,
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ensureInit creates all buckets exactly once, no matter how many callers
// race into the first operation.
func (s *Store) ensureInit() error {
	s.initOnce.Do(func() {
		s.initErr = s.db.Update(func(tx *bolt.Tx) error {
			for _, c := range s.collections {
				if _, err := tx.CreateBucketIfNotExists(recordsBucket(c.Name)); err != nil {
					return fmt.Errorf("create bucket %s: %w", c.Name, err)
				}
				for _, f := range c.Indexes {
					if _, err := tx.CreateBucketIfNotExists(indexBucket(c.Name, f)); err != nil {
						return fmt.Errorf("create index bucket %s.%s: %w", c.Name, f, err)
					}
				}
			}
			for _, reserved := range []string{QueueCollection, CacheMetaCollection} {
				if _, err := tx.CreateBucketIfNotExists(recordsBucket(reserved)); err != nil {
					return fmt.Errorf("create bucket %s: %w", reserved, err)
				}
			}
			return nil
		})
	})
	return s.initErr
}

func recordsBucket(collection string) []byte {
	return []byte("records:" + collection)
}

func indexBucket(collection, field string) []byte {
	return []byte("index:" + collection + ":" + field)
}

// indexKey builds the composite "{value}\x00{id}" key so equal values stay
// grouped and ids keep entries unique.
func indexKey(value any, id string) []byte {
	return []byte(fmt.Sprintf("%v\x00%s", value, id))
}

func indexPrefix(value any) []byte {
	return []byte(fmt.Sprintf("%v\x00", value))
}

// Put inserts or replaces a record by id, stamping core metadata. It returns
// the stored record including the stamps.
func (s *Store) Put(collection string, rec models.Record) (models.Record, error) {
	if err := s.ensureInit(); err != nil {
		return nil, storageErr("put", collection, err)
	}
	id := rec.ID()
	if id == "" {
		return nil, fmt.Errorf("store: put %s: record has no id", collection)
	}

	stored := rec.Clone()
	stored[models.MetaOfflineCreated] = models.IsLocalID(id)
	stored[models.MetaLastModified] = s.now().UnixMilli()

	err := s.db.Update(func(tx *bolt.Tx) error {
		return s.putInTx(tx, collection, stored)
	})
	if err != nil {
		return nil, storageErr("put", collection, err)
	}
	return stored, nil
}

// putInTx writes one record and refreshes its index entries.
func (s *Store) putInTx(tx *bolt.Tx, collection string, rec models.Record) error {
	b := tx.Bucket(recordsBucket(collection))
	if b == nil {
		return fmt.Errorf("unknown collection %q", collection)
	}

	id := rec.ID()
	// Remove stale index entries from any previous version.
	if old := b.Get([]byte(id)); old != nil {
		var prev models.Record
		if err := json.Unmarshal(old, &prev); err == nil {
			if err := s.updateIndexes(tx, collection, prev, false); err != nil {
				return err
			}
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := b.Put([]byte(id), data); err != nil {
		return err
	}
	return s.updateIndexes(tx, collection, rec, true)
}

// updateIndexes adds or removes the secondary-index entries for rec.
func (s *Store) updateIndexes(tx *bolt.Tx, collection string, rec models.Record, add bool) error {
	for field := range s.indexed[collection] {
		val, ok := rec[field]
		if !ok || val == nil {
			continue
		}
		ib := tx.Bucket(indexBucket(collection, field))
		if ib == nil {
			continue
		}
		key := indexKey(val, rec.ID())
		if add {
			if err := ib.Put(key, []byte(rec.ID())); err != nil {
				return err
			}
		} else {
			if err := ib.Delete(key); err != nil {
				return err
			}
		}
	}
	return nil
}

// Get returns the record and true, or nil and false when absent.
func (s *Store) Get(collection, id string) (models.Record, bool, error) {
	if err := s.ensureInit(); err != nil {
		return nil, false, storageErr("get", collection, err)
	}
	var rec models.Record
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket(collection))
		if b == nil {
			return fmt.Errorf("unknown collection %q", collection)
		}
		v := b.Get([]byte(id))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return nil, false, storageErr("get", collection, err)
	}
	return rec, found, nil
}

// GetAll returns every record in the collection.
func (s *Store) GetAll(collection string) ([]models.Record, error) {
	if err := s.ensureInit(); err != nil {
		return nil, storageErr("getAll", collection, err)
	}
	var recs []models.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket(collection))
		if b == nil {
			return fmt.Errorf("unknown collection %q", collection)
		}
		return b.ForEach(func(_, v []byte) error {
			var rec models.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal record: %w", err)
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, storageErr("getAll", collection, err)
	}
	return recs, nil
}

// GetByIndex returns the records whose indexed field equals value. The field
// must be declared in the collection's index list.
func (s *Store) GetByIndex(collection, field string, value any) ([]models.Record, error) {
	if err := s.ensureInit(); err != nil {
		return nil, storageErr("getByIndex", collection, err)
	}
	if !s.indexed[collection][field] {
		return nil, fmt.Errorf("store: no index %q on collection %q", field, collection)
	}

	var recs []models.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		ib := tx.Bucket(indexBucket(collection, field))
		rb := tx.Bucket(recordsBucket(collection))
		if ib == nil || rb == nil {
			return fmt.Errorf("unknown collection %q", collection)
		}

		prefix := indexPrefix(value)
		c := ib.Cursor()
		for k, id := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, id = c.Next() {
			v := rb.Get(id)
			if v == nil {
				continue
			}
			var rec models.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal record: %w", err)
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("getByIndex", collection, err)
	}
	return recs, nil
}

// Delete removes a record by id. Deleting an absent record is a no-op.
func (s *Store) Delete(collection, id string) error {
	if err := s.ensureInit(); err != nil {
		return storageErr("delete", collection, err)
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket(collection))
		if b == nil {
			return fmt.Errorf("unknown collection %q", collection)
		}
		v := b.Get([]byte(id))
		if v == nil {
			return nil
		}
		var prev models.Record
		if err := json.Unmarshal(v, &prev); err == nil {
			if err := s.updateIndexes(tx, collection, prev, false); err != nil {
				return err
			}
		}
		return b.Delete([]byte(id))
	})
	return storageErr("delete", collection, err)
}

// Clear removes every record in the collection.
func (s *Store) Clear(collection string) error {
	if err := s.ensureInit(); err != nil {
		return storageErr("clear", collection, err)
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return s.clearInTx(tx, collection)
	})
	return storageErr("clear", collection, err)
}

func (s *Store) clearInTx(tx *bolt.Tx, collection string) error {
	name := recordsBucket(collection)
	if tx.Bucket(name) == nil {
		return fmt.Errorf("unknown collection %q", collection)
	}
	if err := tx.DeleteBucket(name); err != nil {
		return err
	}
	if _, err := tx.CreateBucket(name); err != nil {
		return err
	}
	for field := range s.indexed[collection] {
		iname := indexBucket(collection, field)
		if tx.Bucket(iname) == nil {
			continue
		}
		if err := tx.DeleteBucket(iname); err != nil {
			return err
		}
		if _, err := tx.CreateBucket(iname); err != nil {
			return err
		}
	}
	return nil
}

// BulkPut inserts or replaces many records as one durable unit.
func (s *Store) BulkPut(collection string, recs []models.Record) error {
	if err := s.ensureInit(); err != nil {
		return storageErr("bulkPut", collection, err)
	}
	stamp := s.now().UnixMilli()
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, rec := range recs {
			stored := rec.Clone()
			stored[models.MetaLastModified] = stamp
			if _, ok := stored[models.MetaOfflineCreated]; !ok {
				stored[models.MetaOfflineCreated] = models.IsLocalID(stored.ID())
			}
			if err := s.putInTx(tx, collection, stored); err != nil {
				return err
			}
		}
		return nil
	})
	return storageErr("bulkPut", collection, err)
}

// ReplaceAll atomically swaps the collection's contents for recs. Used during
// full resync so observers never see a partially updated collection.
func (s *Store) ReplaceAll(collection string, recs []models.Record) error {
	if err := s.ensureInit(); err != nil {
		return storageErr("replaceAll", collection, err)
	}
	stamp := s.now().UnixMilli()
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := s.clearInTx(tx, collection); err != nil {
			return err
		}
		for _, rec := range recs {
			stored := rec.Clone()
			stored[models.MetaLastModified] = stamp
			if _, ok := stored[models.MetaOfflineCreated]; !ok {
				stored[models.MetaOfflineCreated] = models.IsLocalID(stored.ID())
			}
			if err := s.putInTx(tx, collection, stored); err != nil {
				return err
			}
		}
		return nil
	})
	return storageErr("replaceAll", collection, err)
}

// Count returns the number of records in the collection.
func (s *Store) Count(collection string) (int, error) {
	if err := s.ensureInit(); err != nil {
		return 0, storageErr("count", collection, err)
	}
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket(collection))
		if b == nil {
			return fmt.Errorf("unknown collection %q", collection)
		}
		n = b.Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, storageErr("count", collection, err)
	}
	return n, nil
}

// Collections returns the declared domain collections.
func (s *Store) Collections() []Collection {
	return s.collections
}
