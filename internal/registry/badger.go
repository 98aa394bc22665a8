package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/edvin/clientops/internal/model"
)

var clientPrefix = []byte("client/")

func clientKey(name string) []byte {
	return append(append([]byte(nil), clientPrefix...), name...)
}

// badgerBackend keeps records as JSON values. Badger's transaction
// conflict detection and the revision check both map to ErrConflict.
// The directory is locked by the opening process.
type badgerBackend struct {
	db *badger.DB
}

func openBadger(path string, inMemory bool) (*badgerBackend, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if path == "" {
			return nil, errors.New("badger registry path is empty")
		}
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("create registry directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger registry: %w", err)
	}
	return &badgerBackend{db: db}, nil
}

// NewMemory returns a Registry backed by in-memory Badger.
func NewMemory() (*Registry, error) {
	b, err := openBadger("", true)
	if err != nil {
		return nil, err
	}
	return newRegistry(b), nil
}

func (b *badgerBackend) get(_ context.Context, name string) (*model.Client, error) {
	var c *model.Client
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		c, err = readClient(txn, name)
		return err
	})
	return c, err
}

func readClient(txn *badger.Txn, name string) (*model.Client, error) {
	item, err := txn.Get(clientKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get client %s: %w", name, err)
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("read client %s: %w", name, err)
	}
	var c model.Client
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode client %s: %w", name, err)
	}
	return &c, nil
}

// list iterates in key order, which is name order.
func (b *badgerBackend) list(_ context.Context, f Filter) ([]*model.Client, error) {
	var out []*model.Client
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(clientPrefix); it.ValidForPrefix(clientPrefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var c model.Client
			if err := json.Unmarshal(data, &c); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if f.Match(&c) {
				out = append(out, &c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return out, nil
}

func (b *badgerBackend) put(_ context.Context, c *model.Client) error {
	expected := c.Revision
	err := b.db.Update(func(txn *badger.Txn) error {
		current, err := readClient(txn, c.Name)
		switch {
		case errors.Is(err, ErrNotFound):
			if expected != 0 {
				return fmt.Errorf("%w: %s was removed", ErrConflict, c.Name)
			}
		case err != nil:
			return err
		case current.Revision != expected:
			return fmt.Errorf("%w: %s at revision %d, have %d", ErrConflict, c.Name, current.Revision, expected)
		}

		stored := *c
		stored.Revision = expected + 1
		data, err := json.Marshal(&stored)
		if err != nil {
			return fmt.Errorf("encode client %s: %w", c.Name, err)
		}
		return txn.Set(clientKey(c.Name), data)
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %s", ErrConflict, c.Name)
	}
	if err != nil {
		return err
	}
	c.Revision = expected + 1
	return nil
}

func (b *badgerBackend) close() error {
	return b.db.Close()
}
