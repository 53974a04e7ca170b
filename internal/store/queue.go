package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/oklog/ulid/v2"
	"github.com/thisai/billsync/internal/models"
	bolt "go.etcd.io/bbolt"
)

// The operation queue lives in the reserved sync_queue collection. Operation
// ids are ULIDs, so bucket key order is creation order. The drain pass
// relies on this to apply same-record mutations in enqueue order.

// AddOperation appends a pending mutation to the queue and returns it.
// It always succeeds offline; only local I/O can fail.
func (s *Store) AddOperation(collection string, action models.Action, data models.Record) (*models.SyncOperation, error) {
	if err := s.ensureInit(); err != nil {
		return nil, storageErr("addOperation", QueueCollection, err)
	}

	op := &models.SyncOperation{
		ID:         ulid.Make().String(),
		Store:      collection,
		Action:     action,
		Data:       data,
		Timestamp:  s.now(),
		RetryCount: 0,
		Status:     models.OpPending,
	}

	raw, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("marshal operation: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket(QueueCollection)).Put([]byte(op.ID), raw)
	})
	if err != nil {
		return nil, storageErr("addOperation", QueueCollection, err)
	}
	return op, nil
}

// PendingOperations returns every operation still awaiting delivery, in
// enqueue order. Failed operations ride along so each pass retries them, and
// so do operations stuck in syncing by an interrupted pass; only completed
// entries are excluded.
func (s *Store) PendingOperations() ([]*models.SyncOperation, error) {
	if err := s.ensureInit(); err != nil {
		return nil, storageErr("pendingOperations", QueueCollection, err)
	}

	var ops []*models.SyncOperation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket(QueueCollection)).ForEach(func(_, v []byte) error {
			var op models.SyncOperation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("unmarshal operation: %w", err)
			}
			if op.Status != models.OpCompleted {
				ops = append(ops, &op)
			}
			return nil
		})
	})
	if err != nil {
		return nil, storageErr("pendingOperations", QueueCollection, err)
	}

	// Key order already reflects creation order; the stable sort guards
	// against operations imported from elsewhere with out-of-order ids.
	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].Timestamp.Before(ops[j].Timestamp)
	})
	return ops, nil
}

// UpdateOperationStatus transitions one operation. A negative retryCount
// keeps the existing count. Updating an absent (already purged) operation is
// a no-op.
func (s *Store) UpdateOperationStatus(id string, status models.OpStatus, retryCount int) error {
	if err := s.ensureInit(); err != nil {
		return storageErr("updateOperationStatus", QueueCollection, err)
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket(QueueCollection))
		v := b.Get([]byte(id))
		if v == nil {
			return nil
		}
		var op models.SyncOperation
		if err := json.Unmarshal(v, &op); err != nil {
			return fmt.Errorf("unmarshal operation: %w", err)
		}
		op.Status = status
		if retryCount >= 0 {
			op.RetryCount = retryCount
		}
		raw, err := json.Marshal(&op)
		if err != nil {
			return fmt.Errorf("marshal operation: %w", err)
		}
		return b.Put([]byte(id), raw)
	})
	return storageErr("updateOperationStatus", QueueCollection, err)
}

// ClearCompletedOperations purges completed entries and returns how many
// were removed. Called once per pass to bound queue growth.
func (s *Store) ClearCompletedOperations() (int, error) {
	if err := s.ensureInit(); err != nil {
		return 0, storageErr("clearCompletedOperations", QueueCollection, err)
	}
	var removed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket(QueueCollection))

		var keys [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			var op models.SyncOperation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("unmarshal operation: %w", err)
			}
			if op.Status == models.OpCompleted {
				key := make([]byte, len(k))
				copy(key, k)
				keys = append(keys, key)
			}
			return nil
		}); err != nil {
			return err
		}

		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, storageErr("clearCompletedOperations", QueueCollection, err)
	}
	return removed, nil
}

// OperationCounts returns a queue snapshot for status badges.
func (s *Store) OperationCounts() (models.QueueCounts, error) {
	if err := s.ensureInit(); err != nil {
		return models.QueueCounts{}, storageErr("operationCounts", QueueCollection, err)
	}
	var counts models.QueueCounts
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket(QueueCollection)).ForEach(func(_, v []byte) error {
			var op models.SyncOperation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("unmarshal operation: %w", err)
			}
			counts.Total++
			switch op.Status {
			case models.OpPending:
				counts.Pending++
			case models.OpFailed:
				counts.Failed++
			}
			return nil
		})
	})
	if err != nil {
		return models.QueueCounts{}, storageErr("operationCounts", QueueCollection, err)
	}
	return counts, nil
}
