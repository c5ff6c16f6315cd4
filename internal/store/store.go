// Package store persists validated NNUE weight bundles and correction-
// history snapshots across process restarts, content-addressed by their
// xxhash64 checksum so a corrupt or stale write is never served back.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dustin/go-humanize"
)

const (
	keyPrefixWeights    = "weights/"
	keyPrefixCorrection = "correction/"
	keyActiveWeights    = "active_weights"
)

// WeightRecord is what gets persisted for one validated weight bundle: the
// raw bytes plus the metadata needed to tell a reader whether a cached copy
// is still trustworthy without re-parsing the whole file.
type WeightRecord struct {
	Filename  string    `json:"filename"`
	Checksum  uint64    `json:"xxhash64"`
	Size      int       `json:"size"`
	StoredAt  time.Time `json:"stored_at"`
	Data      []byte    `json:"data"`
}

// Store wraps a BadgerDB instance scoped to engine state: cached weight
// bundles and correction-history snapshots, keyed by checksum.
type Store struct {
	db *badger.DB
}

// Open opens (creating if absent) a badger database at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutWeights stores a weight bundle's raw bytes under its own checksum,
// then records that key as the active bundle GetActiveWeights returns.
func (s *Store) PutWeights(filename string, data []byte) (uint64, error) {
	sum := xxhash.Sum64(data)
	rec := WeightRecord{
		Filename: filename,
		Checksum: sum,
		Size:     len(data),
		StoredAt: time.Now(),
		Data:     data,
	}
	encoded, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("store: marshal weight record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		key := fmt.Sprintf("%s%016x", keyPrefixWeights, sum)
		if err := txn.Set([]byte(key), encoded); err != nil {
			return err
		}
		return txn.Set([]byte(keyActiveWeights), []byte(key))
	})
	if err != nil {
		return 0, fmt.Errorf("store: put weights: %w", err)
	}
	return sum, nil
}

// GetActiveWeights returns the most recently stored weight bundle, if any.
func (s *Store) GetActiveWeights() (*WeightRecord, bool, error) {
	var key []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyActiveWeights))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			key = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("store: get active weights pointer: %w", err)
	}
	if key == nil {
		return nil, false, nil
	}
	return s.getWeightsByKey(key)
}

// GetWeightsByChecksum fetches a specific cached bundle, verifying on read
// that its stored checksum still matches its bytes.
func (s *Store) GetWeightsByChecksum(sum uint64) (*WeightRecord, bool, error) {
	key := []byte(fmt.Sprintf("%s%016x", keyPrefixWeights, sum))
	return s.getWeightsByKey(key)
}

func (s *Store) getWeightsByKey(key []byte) (*WeightRecord, bool, error) {
	var rec WeightRecord
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("store: get weights: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	if xxhash.Sum64(rec.Data) != rec.Checksum {
		return nil, false, fmt.Errorf("store: cached weight bundle %s failed checksum verification", rec.Filename)
	}
	return &rec, true, nil
}

// PutCorrectionSnapshot persists a correction-history table under a named
// slot (the engine passes its active weights file name, so correction state
// is restored only alongside the weights it was learned against).
func (s *Store) PutCorrectionSnapshot(slot string, table []int16) error {
	encoded, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("store: marshal correction snapshot: %w", err)
	}
	key := keyPrefixCorrection + slot
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), encoded)
	})
}

// GetCorrectionSnapshot loads a previously stored correction-history table,
// if one exists for slot.
func (s *Store) GetCorrectionSnapshot(slot string) ([]int16, bool, error) {
	var table []int16
	found := false
	key := keyPrefixCorrection + slot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &table)
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("store: get correction snapshot: %w", err)
	}
	return table, found, nil
}

// SizeInfo reports a human-readable diagnostic string for a stored weight
// bundle, for diagnostic log output.
func SizeInfo(rec *WeightRecord) string {
	return fmt.Sprintf("%s (%s), stored %s", rec.Filename, humanize.Bytes(uint64(rec.Size)), rec.StoredAt.Format(time.RFC3339))
}
