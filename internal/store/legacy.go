package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/thisai/billsync/internal/models"
	_ "modernc.org/sqlite"
)

// ImportLegacy performs the one-time import of records from the app's
// previous sqlite database. The legacy schema is a single records table:
//
//	records(collection TEXT, id TEXT, data TEXT, PRIMARY KEY(collection, id))
//
// Rows for collections this store does not know are skipped. Imported
// records keep their ids, so anything that still carries a local-origin id
// remains marked offline-created. Returns imported counts per collection.
func (s *Store) ImportLegacy(sqlitePath string) (map[string]int, error) {
	if err := s.ensureInit(); err != nil {
		return nil, storageErr("importLegacy", "", err)
	}

	db, err := sql.Open("sqlite", sqlitePath+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open legacy database: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT collection, id, data FROM records ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("read legacy records: %w", err)
	}
	defer rows.Close()

	known := make(map[string]bool, len(s.collections))
	for _, c := range s.collections {
		known[c.Name] = true
	}

	byCollection := make(map[string][]models.Record)
	for rows.Next() {
		var collection, id, data string
		if err := rows.Scan(&collection, &id, &data); err != nil {
			return nil, fmt.Errorf("scan legacy record: %w", err)
		}
		if !known[collection] {
			continue
		}

		var rec models.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("parse legacy record %s/%s: %w", collection, id, err)
		}
		rec.SetID(id)
		byCollection[collection] = append(byCollection[collection], rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read legacy records: %w", err)
	}

	imported := make(map[string]int, len(byCollection))
	for collection, recs := range byCollection {
		if err := s.BulkPut(collection, recs); err != nil {
			return nil, err
		}
		imported[collection] = len(recs)
	}
	return imported, nil
}
