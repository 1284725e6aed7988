package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ahmed-com/pgcalendar/storage"
	"github.com/dgraph-io/badger/v4"
)

// BadgerStorage implements the Storage interface using BadgerDB
type BadgerStorage struct {
	db *badger.DB
}

var _ storage.Storage = (*BadgerStorage)(nil)

// NewBadgerStorage opens (or creates) a BadgerDB journal at path
func NewBadgerStorage(path string) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable default logging
	return open(opts)
}

// NewInMemoryBadgerStorage creates a journal that lives only in memory
func NewInMemoryBadgerStorage() (*BadgerStorage, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts)
}

func open(opts badger.Options) (*BadgerStorage, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &BadgerStorage{db: db}, nil
}

// Key schema:
//
//	firing/<firingID>                  -> Firing JSON
//	rule/<ruleID>/firing/<firingID>    -> empty (index)
//	attempt/<firingID>/<n>             -> Attempt JSON
func firingKey(id string) []byte {
	return []byte(fmt.Sprintf("firing/%s", id))
}

func ruleIndexKey(ruleID, firingID string) []byte {
	return []byte(fmt.Sprintf("rule/%s/firing/%s", ruleID, firingID))
}

func ruleIndexPrefix(ruleID string) []byte {
	return []byte(fmt.Sprintf("rule/%s/firing/", ruleID))
}

func attemptKey(firingID string, n int) []byte {
	return []byte(fmt.Sprintf("attempt/%s/%08d", firingID, n))
}

func attemptPrefix(firingID string) []byte {
	return []byte(fmt.Sprintf("attempt/%s/", firingID))
}

// Firing operations

func (s *BadgerStorage) CreateFiring(ctx context.Context, firing *storage.Firing) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := firingKey(firing.ID)

		// atomic create-if-not-exists
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("firing %s: %w", firing.ID, storage.ErrAlreadyExists)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		data, err := json.Marshal(firing)
		if err != nil {
			return fmt.Errorf("failed to marshal firing: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(ruleIndexKey(firing.RuleID, firing.ID), nil)
	})
}

func (s *BadgerStorage) GetFiring(ctx context.Context, firingID string) (*storage.Firing, error) {
	var firing *storage.Firing
	err := s.db.View(func(txn *badger.Txn) error {
		f, err := getFiring(txn, firingID)
		firing = f
		return err
	})
	if err != nil {
		return nil, err
	}
	return firing, nil
}

func getFiring(txn *badger.Txn, firingID string) (*storage.Firing, error) {
	item, err := txn.Get(firingKey(firingID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("firing %s: %w", firingID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var firing storage.Firing
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &firing)
	})
	if err != nil {
		return nil, err
	}
	return &firing, nil
}

func (s *BadgerStorage) UpdateFiring(ctx context.Context, firing *storage.Firing) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := firingKey(firing.ID)

		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("firing %s: %w", firing.ID, storage.ErrNotFound)
		}
		if err != nil {
			return err
		}

		firing.UpdatedAt = time.Now()
		data, err := json.Marshal(firing)
		if err != nil {
			return fmt.Errorf("failed to marshal firing: %w", err)
		}
		return txn.Set(key, data)
	})
}

func (s *BadgerStorage) DeleteFiring(ctx context.Context, firingID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		firing, err := getFiring(txn, firingID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		var attemptKeys [][]byte
		opts := badger.DefaultIteratorOptions
		opts.Prefix = attemptPrefix(firingID)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			attemptKeys = append(attemptKeys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range attemptKeys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		if err := txn.Delete(ruleIndexKey(firing.RuleID, firingID)); err != nil {
			return err
		}
		return txn.Delete(firingKey(firingID))
	})
}

func (s *BadgerStorage) ListFiringsByRuleID(ctx context.Context, ruleID string) ([]*storage.Firing, error) {
	var firings []*storage.Firing

	err := s.db.View(func(txn *badger.Txn) error {
		prefix := ruleIndexPrefix(ruleID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			firingID := string(it.Item().Key()[len(prefix):])
			f, err := getFiring(txn, firingID)
			if err != nil {
				return err
			}
			firings = append(firings, f)
		}
		return nil
	})

	sortByCreation(firings)
	return firings, err
}

func (s *BadgerStorage) ListRunningFirings(ctx context.Context) ([]*storage.Firing, error) {
	return s.scanFirings(func(f *storage.Firing) bool {
		return f.Status == storage.FiringStatusRunning
	})
}

func (s *BadgerStorage) ListStaleFirings(ctx context.Context, threshold time.Duration) ([]*storage.Firing, error) {
	now := time.Now()
	return s.scanFirings(func(f *storage.Firing) bool {
		return f.IsStale(now, threshold)
	})
}

func (s *BadgerStorage) scanFirings(keep func(*storage.Firing) bool) ([]*storage.Firing, error) {
	var firings []*storage.Firing

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("firing/")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var f storage.Firing
				if err := json.Unmarshal(val, &f); err != nil {
					return err
				}
				if keep(&f) {
					firings = append(firings, &f)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	sortByCreation(firings)
	return firings, err
}

// Attempt operations

func (s *BadgerStorage) CreateAttempt(ctx context.Context, attempt *storage.Attempt) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := attemptKey(attempt.FiringID, attempt.AttemptNumber)

		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("attempt %s: %w", attempt.ID, storage.ErrAlreadyExists)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		data, err := json.Marshal(attempt)
		if err != nil {
			return fmt.Errorf("failed to marshal attempt: %w", err)
		}
		return txn.Set(key, data)
	})
}

func (s *BadgerStorage) UpdateAttempt(ctx context.Context, attempt *storage.Attempt) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := attemptKey(attempt.FiringID, attempt.AttemptNumber)

		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("attempt %s: %w", attempt.ID, storage.ErrNotFound)
		}
		if err != nil {
			return err
		}

		data, err := json.Marshal(attempt)
		if err != nil {
			return fmt.Errorf("failed to marshal attempt: %w", err)
		}
		return txn.Set(key, data)
	})
}

func (s *BadgerStorage) ListAttemptsByFiringID(ctx context.Context, firingID string) ([]*storage.Attempt, error) {
	var attempts []*storage.Attempt

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = attemptPrefix(firingID)
		it := txn.NewIterator(opts)
		defer it.Close()

		// keys are zero-padded so iteration order is attempt order
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var a storage.Attempt
				if err := json.Unmarshal(val, &a); err != nil {
					return err
				}
				attempts = append(attempts, &a)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	return attempts, err
}

// Close closes the database connection
func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

func sortByCreation(firings []*storage.Firing) {
	sort.SliceStable(firings, func(i, j int) bool {
		return firings[i].CreatedAt.Before(firings[j].CreatedAt)
	})
}
