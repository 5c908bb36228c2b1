package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"github.com/dgraph-io/badger/v4"
)

// Badger is a Store backed by an embedded BadgerDB. Counters are stored
// as decimal strings, hashes and sets as JSON objects. Every mutation
// runs in a single transaction, which gives DeleteIfExists its atomic
// check-then-remove semantics.
type Badger struct {
	db  *badger.DB
	log *slog.Logger
}

// OpenBadger opens (or creates) a database under dir. Badger's internal
// chatter is routed through logger at debug level.
func OpenBadger(dir string, logger *slog.Logger) (*Badger, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create store directory %s: %w", dir, err)
	}
	opts := badger.DefaultOptions(dir).WithLogger(&badgerLogger{logger})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &Badger{db: db, log: logger}, nil
}

// OpenBadgerInMemory opens a non-persistent database, used in tests.
func OpenBadgerInMemory(logger *slog.Logger) (*Badger, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(&badgerLogger{logger})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger store: %w", err)
	}
	return &Badger{db: db, log: logger}, nil
}

// update retries on transaction conflicts; the sweeper and the message
// handler can legitimately touch the same session key at once.
func (b *Badger) update(fn func(txn *badger.Txn) error) error {
	for {
		err := b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		b.log.Debug("store transaction conflict, retrying")
	}
}

func (b *Badger) Incr(_ context.Context, key string) (int64, error) {
	var next int64
	err := b.update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			next = 1
		case err != nil:
			return err
		default:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			cur, err := strconv.ParseInt(string(raw), 10, 64)
			if err != nil {
				return fmt.Errorf("counter %s holds %q: %w", key, raw, err)
			}
			next = cur + 1
		}
		return txn.Set([]byte(key), []byte(strconv.FormatInt(next, 10)))
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (b *Badger) HSet(ctx context.Context, key, field, value string) error {
	return b.HSetAll(ctx, key, map[string]string{field: value})
}

func (b *Badger) HSetAll(_ context.Context, key string, fields map[string]string) error {
	return b.update(func(txn *badger.Txn) error {
		h, err := readJSON[map[string]string](txn, key)
		if err != nil {
			return err
		}
		if h == nil {
			h = map[string]string{}
		}
		for f, v := range fields {
			h[f] = v
		}
		return writeJSON(txn, key, h)
	})
}

func (b *Badger) HGetAll(_ context.Context, key string) (map[string]string, error) {
	var h map[string]string
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		h, err = readJSON[map[string]string](txn, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (b *Badger) SAdd(_ context.Context, key string, members ...string) error {
	return b.update(func(txn *badger.Txn) error {
		s, err := readJSON[map[string]bool](txn, key)
		if err != nil {
			return err
		}
		if s == nil {
			s = map[string]bool{}
		}
		for _, m := range members {
			s[m] = true
		}
		return writeJSON(txn, key, s)
	})
}

func (b *Badger) SRem(_ context.Context, key string, members ...string) error {
	return b.update(func(txn *badger.Txn) error {
		s, err := readJSON[map[string]bool](txn, key)
		if err != nil || s == nil {
			return err
		}
		for _, m := range members {
			delete(s, m)
		}
		if len(s) == 0 {
			return txn.Delete([]byte(key))
		}
		return writeJSON(txn, key, s)
	})
}

func (b *Badger) SMembers(_ context.Context, key string) ([]string, error) {
	var out []string
	err := b.db.View(func(txn *badger.Txn) error {
		s, err := readJSON[map[string]bool](txn, key)
		if err != nil {
			return err
		}
		out = make([]string, 0, len(s))
		for m := range s {
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Badger) DeleteIfExists(_ context.Context, key string) (bool, error) {
	existed := false
	err := b.update(func(txn *badger.Txn) error {
		existed = false
		_, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := txn.Delete([]byte(key)); err != nil {
			return err
		}
		existed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

func (b *Badger) Keys(_ context.Context, prefix string) ([]string, error) {
	var out []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			out = append(out, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (b *Badger) Close() error { return b.db.Close() }

func readJSON[T any](txn *badger.Txn, key string) (T, error) {
	var zero T
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return zero, nil
	}
	if err != nil {
		return zero, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return zero, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, nil
}

func writeJSON(txn *badger.Txn, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), raw)
}

// badgerLogger adapts slog to Badger's Logger interface. Everything goes
// to debug except real errors; Badger is noisy at info level.
type badgerLogger struct {
	log *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}
