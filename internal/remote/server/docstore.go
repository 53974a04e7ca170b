package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/thisai/billsync/internal/models"
)

// ErrDocNotFound reports a missing document id within a resource.
var ErrDocNotFound = fmt.Errorf("document not found")

// DocStore persists the backend's documents in bbolt, one bucket per
// resource. Ids are ULIDs, so bucket key order is creation order.
type DocStore struct {
	db *bolt.DB
}

// OpenDocStore opens (creating if needed) the document database at path.
func OpenDocStore(path string) (*DocStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	return &DocStore{db: db}, nil
}

// Close releases the underlying database.
func (d *DocStore) Close() error {
	return d.db.Close()
}

func resourceBucket(resource string) []byte {
	return []byte("docs:" + resource)
}

// Create stores a new document and returns its assigned id.
func (d *DocStore) Create(resource string, fields map[string]any) (string, error) {
	id := ulid.Make().String()
	doc := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		doc[k] = v
	}
	now := time.Now().UnixMilli()
	doc["id"] = id
	doc["createdAt"] = now
	doc["updatedAt"] = now

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}

	err = d.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(resourceBucket(resource))
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Update merges fields into an existing document. The id and createdAt of
// the document are immutable.
func (d *DocStore) Update(resource, id string, fields map[string]any) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(resourceBucket(resource))
		if b == nil {
			return ErrDocNotFound
		}
		raw := b.Get([]byte(id))
		if raw == nil {
			return ErrDocNotFound
		}

		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("decode document %s: %w", id, err)
		}
		for k, v := range fields {
			if k == "id" || k == "createdAt" {
				continue
			}
			doc[k] = v
		}
		doc["updatedAt"] = time.Now().UnixMilli()

		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal document: %w", err)
		}
		return b.Put([]byte(id), data)
	})
}

// Delete removes a document. Deleting an absent document is not an error,
// so retried deletes from sync clients stay idempotent.
func (d *DocStore) Delete(resource, id string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(resourceBucket(resource))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(id))
	})
}

// Get returns one document, or ErrDocNotFound.
func (d *DocStore) Get(resource, id string) (models.Record, error) {
	var doc models.Record
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(resourceBucket(resource))
		if b == nil {
			return ErrDocNotFound
		}
		raw := b.Get([]byte(id))
		if raw == nil {
			return ErrDocNotFound
		}
		return json.Unmarshal(raw, &doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// List returns every document of a resource in creation order.
func (d *DocStore) List(resource string) ([]models.Record, error) {
	docs := []models.Record{}
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(resourceBucket(resource))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var doc models.Record
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("decode document: %w", err)
			}
			docs = append(docs, doc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}
