package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/rkervin/rollcall/internal/model"
)

const keyPrefix = "session/"

// Entry is one registered attendance session: the class it belongs to and
// the wall-clock millisecond deadline at which it closes.
type Entry struct {
	Class   model.Class `json:"class"`
	CloseAt int64       `json:"close_at"`
}

// Registry is the device-local durable map of timetable id to open-session
// deadline. It is what lets a restarted process pick an in-window session
// back up instead of opening a duplicate, and it involves no network:
// everything lives in a local Badger store.
//
// Registries on different devices are not coordinated with each other.
type Registry struct {
	db *badger.DB
}

// Open opens (or creates) the registry at the given directory.
func Open(path string) (*Registry, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	return &Registry{db: db}, nil
}

// OpenInMemory opens a registry with no backing files. Used in tests.
func OpenInMemory() (*Registry, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory registry: %w", err)
	}
	return &Registry{db: db}, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

func key(timetableID string) []byte {
	return []byte(keyPrefix + timetableID)
}

// Register inserts or overwrites the entry for a class.
func (r *Registry) Register(class model.Class, closeAt int64) error {
	val, err := json.Marshal(Entry{Class: class, CloseAt: closeAt})
	if err != nil {
		return fmt.Errorf("marshal registry entry: %w", err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(class.TimetableID), val)
	})
	if err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	return nil
}

// Unregister removes the entry for a class. Removing an absent entry is not
// an error.
func (r *Registry) Unregister(timetableID string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(timetableID))
	})
	if err != nil {
		return fmt.Errorf("unregister session: %w", err)
	}
	return nil
}

// ListActive returns entries whose deadline is still ahead of now. Entries
// whose deadline has passed are pruned as part of the same read (lazy
// expiry), so a stale session never survives a listing.
func (r *Registry) ListActive(now int64) ([]Entry, error) {
	var active []Entry
	err := r.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)

		var stale [][]byte
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				it.Close()
				return err
			}
			var e Entry
			if err := json.Unmarshal(val, &e); err != nil {
				// Unreadable entry: treat as stale rather than wedge the
				// listing forever.
				stale = append(stale, item.KeyCopy(nil))
				continue
			}
			if e.CloseAt > now {
				active = append(active, e)
			} else {
				stale = append(stale, item.KeyCopy(nil))
			}
		}
		it.Close()

		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return active, nil
}

// Get returns the entry for a class, or nil if none is registered.
func (r *Registry) Get(timetableID string) (*Entry, error) {
	var e Entry
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(timetableID))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(val, &e)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session entry: %w", err)
	}
	return &e, nil
}
