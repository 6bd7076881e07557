// Package checkpoint persists stream continuation points across restarts.
package checkpoint

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "stream/last-event-id/"

// Store keeps the last seen event id per wiki.
type Store interface {
	Load(wiki string) (string, error)
	Save(wiki, eventID string) error
	Close() error
}

type badgerStore struct {
	db *badger.DB
}

// Open opens a badger store at path. An empty path keeps checkpoints in memory
// only, which makes every restart resume from now.
func Open(path string, logger *slog.Logger) (Store, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	logger.Info("checkpoint store opened", "path", path, "in_memory", path == "")
	return &badgerStore{db: db}, nil
}

// Load returns the stored event id, or "" when none was recorded.
func (s *badgerStore) Load(wiki string) (string, error) {
	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + wiki))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load checkpoint for %s: %w", wiki, err)
	}
	return id, nil
}

func (s *badgerStore) Save(wiki, eventID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+wiki), []byte(eventID))
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for %s: %w", wiki, err)
	}
	return nil
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}
