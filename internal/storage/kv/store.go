// Package kv is an embedded, on-disk memory store and trait ledger backed by Badger.
package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/easeaico/project-nudge/internal/memory"
	"github.com/easeaico/project-nudge/internal/traits"
	"github.com/easeaico/project-nudge/internal/types"
)

const (
	entryPrefix = "mem:"
	ownerPrefix = "memid:"
	traitPrefix = "traits:"
)

// Store implements memory.Store and traits.Ledger on a Badger database. Each trait write is a
// read-modify-write transaction; a concurrent commit on the same user surfaces as
// traits.ErrConflict.
type Store struct {
	db     *badger.DB
	closer func() error
}

// New wraps an open database. The caller keeps ownership of db.
func New(db *badger.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db cannot be nil")
	}
	return &Store{db: db}, nil
}

// Open opens (or creates) a database in dir. An empty dir opens an in-memory database.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &Store{db: db, closer: db.Close}, nil
}

// Close closes the database if Open created it.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// entryRecord is the persisted form of a memory entry; unlike the API shape it keeps the
// embedding.
type entryRecord struct {
	types.MemoryEntry
	Vector []float32 `json:"embedding,omitempty"`
}

func (s *Store) Append(ctx context.Context, entry types.MemoryEntry) error {
	data, err := json.Marshal(entryRecord{MemoryEntry: entry, Vector: entry.Embedding})
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := txn.Set(entryKey(entry.UserID, entry.ID), data); err != nil {
			return err
		}
		return txn.Set(ownerKey(entry.ID), []byte(entry.UserID))
	})
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]types.MemoryEntry, error) {
	var out []types.MemoryEntry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = userPrefix(userID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec entryRecord
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &rec) }); err != nil {
				return fmt.Errorf("failed to decode entry %s: %w", it.Item().Key(), err)
			}
			out = append(out, rec.entry())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (types.MemoryEntry, error) {
	var entry types.MemoryEntry
	err := s.db.View(func(txn *badger.Txn) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, _, err := loadEntry(txn, id)
		if err != nil {
			return err
		}
		entry = rec.entry()
		return nil
	})
	return entry, err
}

func (s *Store) UpdateContent(ctx context.Context, id, content string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, key, err := loadEntry(txn, id)
		if err != nil {
			return err
		}
		rec.Content = content
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, key, err := loadEntry(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(ownerKey(id))
	})
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = userPrefix(userID)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		if err := ctx.Err(); err != nil {
			return err
		}
		prefix := userPrefix(userID)
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Delete(ownerKey(string(bytes.TrimPrefix(key, prefix)))); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Read(ctx context.Context, userID string) (traits.Traits, error) {
	var tr traits.Traits
	err := s.db.View(func(txn *badger.Txn) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		tr, err = loadTraits(txn, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read traits: %w", err)
	}
	return tr, nil
}

func (s *Store) Update(ctx context.Context, userID, key string, value any) error {
	return s.Merge(ctx, userID, map[string]any{key: value})
}

func (s *Store) Merge(ctx context.Context, userID string, values map[string]any) error {
	return s.mutate(ctx, userID, func(tr traits.Traits) {
		for k, v := range values {
			tr[k] = traits.Normalize(v)
		}
	})
}

func (s *Store) Union(ctx context.Context, userID, key string, values ...string) error {
	return s.mutate(ctx, userID, func(tr traits.Traits) {
		tr[key] = traits.UnionStrings(tr.Strings(key), values...)
	})
}

func (s *Store) Reset(ctx context.Context, userID string, keys ...string) error {
	if len(keys) == 0 {
		return s.db.Update(func(txn *badger.Txn) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return txn.Delete(traitKey(userID))
		})
	}
	return s.mutate(ctx, userID, func(tr traits.Traits) {
		for _, k := range keys {
			delete(tr, k)
		}
	})
}

func (s *Store) mutate(ctx context.Context, userID string, apply func(traits.Traits)) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		tr, err := loadTraits(txn, userID)
		if err != nil {
			return err
		}
		apply(tr)
		data, err := json.Marshal(tr)
		if err != nil {
			return fmt.Errorf("failed to marshal traits: %w", err)
		}
		return txn.Set(traitKey(userID), data)
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %w", traits.ErrConflict, err)
	}
	return err
}

func loadTraits(txn *badger.Txn, userID string) (traits.Traits, error) {
	tr := make(traits.Traits)
	item, err := txn.Get(traitKey(userID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return tr, nil
	}
	if err != nil {
		return nil, err
	}
	err = item.Value(func(v []byte) error {
		dec := json.NewDecoder(bytes.NewReader(v))
		dec.UseNumber()
		return dec.Decode(&tr)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode traits: %w", err)
	}
	return tr, nil
}

func loadEntry(txn *badger.Txn, id string) (entryRecord, []byte, error) {
	var rec entryRecord
	owner, err := txn.Get(ownerKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return rec, nil, memory.ErrNotFound
	}
	if err != nil {
		return rec, nil, err
	}
	userID, err := owner.ValueCopy(nil)
	if err != nil {
		return rec, nil, err
	}
	key := entryKey(string(userID), id)
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return rec, nil, memory.ErrNotFound
	}
	if err != nil {
		return rec, nil, err
	}
	if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &rec) }); err != nil {
		return rec, nil, fmt.Errorf("failed to decode entry %s: %w", id, err)
	}
	return rec, key, nil
}

func (r entryRecord) entry() types.MemoryEntry {
	e := r.MemoryEntry
	e.Embedding = r.Vector
	return e
}

func userPrefix(userID string) []byte {
	return []byte(entryPrefix + userID + "\x00")
}

func entryKey(userID, id string) []byte {
	return append(userPrefix(userID), id...)
}

func ownerKey(id string) []byte {
	return []byte(ownerPrefix + id)
}

func traitKey(userID string) []byte {
	return []byte(traitPrefix + userID)
}
