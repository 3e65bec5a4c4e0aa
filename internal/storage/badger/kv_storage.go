package badger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// KVStorage implements the KeyValueStorage interface for Badger
type KVStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewKVStorage creates a new KVStorage instance
func NewKVStorage(db *BadgerDB, logger arbor.ILogger) interfaces.KeyValueStorage {
	return &KVStorage{
		db:     db,
		logger: logger,
	}
}

// normalizeKey converts a key to lowercase for case-insensitive storage
func (s *KVStorage) normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Get retrieves a value by key (case-insensitive)
func (s *KVStorage) Get(ctx context.Context, key string) (string, error) {
	normalizedKey := s.normalizeKey(key)
	var pair interfaces.KeyValuePair
	err := s.db.Store().Get(normalizedKey, &pair)
	if err == badgerhold.ErrNotFound {
		return "", interfaces.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key: %w", err)
	}

	return pair.Value, nil
}

// Set inserts or updates a key/value pair (case-insensitive)
func (s *KVStorage) Set(ctx context.Context, key string, value string) error {
	normalizedKey := s.normalizeKey(key)
	now := time.Now()

	pair := interfaces.KeyValuePair{
		Key:       normalizedKey,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Check if exists to preserve CreatedAt
	var existing interfaces.KeyValuePair
	err := s.db.Store().Get(normalizedKey, &existing)
	if err == nil {
		pair.CreatedAt = existing.CreatedAt
	}

	if err := s.db.Store().Upsert(normalizedKey, &pair); err != nil {
		return fmt.Errorf("failed to set key/value: %w", err)
	}

	return nil
}

// Delete removes a key/value pair (case-insensitive)
func (s *KVStorage) Delete(ctx context.Context, key string) error {
	normalizedKey := s.normalizeKey(key)
	err := s.db.Store().Delete(normalizedKey, &interfaces.KeyValuePair{})
	if err == badgerhold.ErrNotFound {
		return interfaces.ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// Increment atomically adds delta to the counter stored at key and returns
// the new value. Runs as a single Badger transaction; commit conflicts with
// concurrent increments are retried until the context is cancelled. Every
// conflict means another increment committed, so retrying makes progress.
func (s *KVStorage) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	normalizedKey := s.normalizeKey(key)
	store := s.db.Store()

	var result int64
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		err := store.Badger().Update(func(tx *badgerdb.Txn) error {
			var pair interfaces.KeyValuePair
			current := int64(0)
			createdAt := time.Now()

			err := store.TxGet(tx, normalizedKey, &pair)
			if err != nil && err != badgerhold.ErrNotFound {
				return fmt.Errorf("failed to read counter: %w", err)
			}
			if err == nil {
				parsed, perr := strconv.ParseInt(pair.Value, 10, 64)
				if perr != nil {
					return fmt.Errorf("counter %s holds non-numeric value %q", normalizedKey, pair.Value)
				}
				current = parsed
				createdAt = pair.CreatedAt
			}

			result = current + delta
			updated := interfaces.KeyValuePair{
				Key:       normalizedKey,
				Value:     strconv.FormatInt(result, 10),
				CreatedAt: createdAt,
				UpdatedAt: time.Now(),
			}
			return store.TxUpsert(tx, normalizedKey, &updated)
		})
		if err == badgerdb.ErrConflict {
			continue
		}
		if err != nil {
			return 0, err
		}
		return result, nil
	}
}

// ListByPrefix returns all key/value pairs with keys starting with the given prefix
func (s *KVStorage) ListByPrefix(ctx context.Context, prefix string) ([]interfaces.KeyValuePair, error) {
	normalizedPrefix := s.normalizeKey(prefix)

	var pairs []interfaces.KeyValuePair
	err := s.db.Store().Find(&pairs, badgerhold.Where("Key").HasPrefix(normalizedPrefix).SortBy("Key"))
	if err != nil {
		return nil, fmt.Errorf("failed to list key/value pairs by prefix: %w", err)
	}
	return pairs, nil
}
