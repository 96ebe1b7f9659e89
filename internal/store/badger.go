package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/davidbond17/pingpro/pkg/types"
)

const (
	sessionPrefix = "session/"
	indexPrefix   = "idx/"
)

// BadgerConfig selects where the session database lives.
type BadgerConfig struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *log.Logger
}

// BadgerStore keeps sessions in an embedded BadgerDB. Primary keys embed the
// start time so that key order is chronological.
type BadgerStore struct {
	db *badger.DB
}

type badgerLogger struct {
	logger *log.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Printf("badger error: "+format, args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Printf("badger warning: "+format, args...)
}

func (l badgerLogger) Infof(format string, args ...interface{})  {}
func (l badgerLogger) Debugf(format string, args ...interface{}) {}

func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("path is required for persistent database")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func sessionKey(s types.Session) []byte {
	nanos := s.StartTime.UnixNano()
	if nanos < 0 {
		nanos = 0
	}
	return []byte(fmt.Sprintf("%s%020d/%s", sessionPrefix, nanos, s.ID))
}

func indexKey(id string) []byte {
	return []byte(indexPrefix + id)
}

func (b *BadgerStore) SaveSession(ctx context.Context, session types.Session) error {
	if err := validate(session); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	key := sessionKey(session)
	err = b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(indexKey(session.ID))
		switch {
		case err == nil:
			prev, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !bytes.Equal(prev, key) {
				if err := txn.Delete(prev); err != nil {
					return err
				}
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if err := txn.Set(key, payload); err != nil {
			return err
		}
		return txn.Set(indexKey(session.ID), key)
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	return nil
}

func (b *BadgerStore) ListSessions(ctx context.Context, limit int) ([]types.Session, error) {
	var out []types.Session
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(sessionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(sessionPrefix + "\xff")); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var s types.Session
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &s)
			}); err != nil {
				return err
			}
			out = append(out, s)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

func (b *BadgerStore) GetSession(ctx context.Context, id string) (types.Session, error) {
	var s types.Session
	err := b.db.View(func(txn *badger.Txn) error {
		key, err := lookup(txn, id)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &s)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return types.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return types.Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return s, nil
}

func lookup(txn *badger.Txn, id string) ([]byte, error) {
	item, err := txn.Get(indexKey(id))
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (b *BadgerStore) DeleteSession(ctx context.Context, id string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		key, err := lookup(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(indexKey(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func (b *BadgerStore) DeleteAll(ctx context.Context) error {
	var keys [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for _, prefix := range [][]byte{[]byte(sessionPrefix), []byte(indexPrefix)} {
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan sessions: %w", err)
	}
	if err := b.deleteKeys(keys); err != nil {
		return fmt.Errorf("delete all sessions: %w", err)
	}
	return nil
}

func (b *BadgerStore) deleteKeys(keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (b *BadgerStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	bound := sessionKey(types.Session{StartTime: cutoff})

	var keys [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(sessionPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if string(key) >= string(bound) {
				break
			}
			keys = append(keys, key, indexKey(idFromKey(key)))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan expired sessions: %w", err)
	}
	if err := b.deleteKeys(keys); err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return len(keys) / 2, nil
}

// idFromKey extracts the session ID from session/<nanos>/<id>.
func idFromKey(key []byte) string {
	rest := key[len(sessionPrefix):]
	for i, c := range rest {
		if c == '/' {
			return string(rest[i+1:])
		}
	}
	return ""
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}
