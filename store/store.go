// Package store persists campaign and clone audit records to an embedded
// BadgerDB document store. Records are JSON values under prefixed keys; a
// secondary key per clone name supports the batch name-existence query the
// clone scheduler runs before touching the remote API.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: record not found")

// Key prefixes for BadgerDB storage.
const (
	listKeyPrefix      = "list:"
	cloneKeyPrefix     = "clone:"
	cloneNameKeyPrefix = "clonename:"
)

// Store is the audit record store.
type Store struct {
	db *badger.DB
}

// Open opens (creating if needed) a store at the given directory.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a store that lives only for the process. Used in tests.
func OpenInMemory() (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateListRecord stores a new created-list audit record. A missing ID or
// CreatedAt is filled in.
func (s *Store) CreateListRecord(ctx context.Context, rec *CreatedList) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal list record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(listKeyPrefix+rec.ID), data)
	})
}

// ListRecord retrieves a created-list record by ID.
func (s *Store) ListRecord(ctx context.Context, id string) (*CreatedList, error) {
	var rec CreatedList
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(listKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get list record: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRecords returns all created-list records.
func (s *Store) ListRecords(ctx context.Context) ([]CreatedList, error) {
	var recs []CreatedList
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(listKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec CreatedList
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// MarkListDeleted flags a created-list record as deleted. The record itself
// is kept for audit history.
func (s *Store) MarkListDeleted(ctx context.Context, id string) error {
	rec, err := s.ListRecord(ctx, id)
	if err != nil {
		return err
	}
	rec.Deleted = true
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal list record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(listKeyPrefix+rec.ID), data)
	})
}

// CreateCloneRecord stores a new cloned-email audit record and indexes its
// name for batch existence checks.
func (s *Store) CreateCloneRecord(ctx context.Context, rec *ClonedEmail) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = CloneStatusScheduled
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal clone record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(cloneKeyPrefix+rec.ID), data); err != nil {
			return fmt.Errorf("set clone record: %w", err)
		}
		if err := txn.Set([]byte(cloneNameKeyPrefix+rec.ClonedName), []byte(rec.ID)); err != nil {
			return fmt.Errorf("set clone name index: %w", err)
		}
		return nil
	})
}

// CloneRecord retrieves a cloned-email record by ID.
func (s *Store) CloneRecord(ctx context.Context, id string) (*ClonedEmail, error) {
	var rec ClonedEmail
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cloneKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get clone record: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveCloneRecord overwrites an existing cloned-email record.
func (s *Store) SaveCloneRecord(ctx context.Context, rec *ClonedEmail) error {
	if _, err := s.CloneRecord(ctx, rec.ID); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal clone record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(cloneKeyPrefix+rec.ID), data)
	})
}

// DeleteCloneRecord removes a cloned-email record and its name index entry.
func (s *Store) DeleteCloneRecord(ctx context.Context, id string) error {
	rec, err := s.CloneRecord(ctx, id)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(cloneKeyPrefix + id)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete clone record: %w", err)
		}
		if err := txn.Delete([]byte(cloneNameKeyPrefix + rec.ClonedName)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete clone name index: %w", err)
		}
		return nil
	})
}

// ExistingCloneNames reports which of the given names already belong to a
// cloned-email record.
func (s *Store) ExistingCloneNames(ctx context.Context, names []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(names))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, name := range names {
			_, err := txn.Get([]byte(cloneNameKeyPrefix + name))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("check clone name %q: %w", name, err)
			}
			existing[name] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}
