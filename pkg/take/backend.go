package take

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
)

// errNotFound is returned by a backend for a missing key.
var errNotFound = errors.New("take: key not found")

// keySep joins key segments. Take, armature and target names may contain
// any printable character, so the separator is the ASCII unit separator.
const keySep byte = 0x1f

// key is a hierarchical path such as {"kf", takeID, "bone", "Armature", "Head", ...}.
type key []string

func (k key) encode() []byte {
	return []byte(strings.Join(k, string(keySep)))
}

// prefix returns the encoded key followed by a separator, so that {"a","b"}
// does not match "a\x1fbc".
func (k key) prefix() []byte {
	if len(k) == 0 {
		return nil
	}
	return append(k.encode(), keySep)
}

func decodeKey(b []byte) key {
	return strings.Split(string(b), string(keySep))
}

type entry struct {
	key   key
	value []byte
}

// backend is the ordered byte store under a Store.
type backend interface {
	get(ctx context.Context, k key) ([]byte, error)
	set(ctx context.Context, k key, value []byte) error
	scan(ctx context.Context, prefix key) iter.Seq2[entry, error]
	batchSet(ctx context.Context, entries []entry) error
	batchDelete(ctx context.Context, keys []key) error
	close() error
}

// badgerBackend keeps takes on disk in BadgerDB.
type badgerBackend struct {
	db *badger.DB
}

func openBadger(dir string, inMemory bool) (*badgerBackend, error) {
	opts := badger.DefaultOptions(dir)
	if inMemory {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts.WithLogger(badgerLogger{}))
	if err != nil {
		return nil, err
	}
	return &badgerBackend{db: db}, nil
}

func (b *badgerBackend) get(_ context.Context, k key) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k.encode())
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errNotFound
	}
	return val, err
}

func (b *badgerBackend) set(_ context.Context, k key, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k.encode(), value)
	})
}

func (b *badgerBackend) scan(_ context.Context, prefix key) iter.Seq2[entry, error] {
	p := prefix.prefix()
	return func(yield func(entry, error) bool) {
		err := b.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = p
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(p); it.ValidForPrefix(p); it.Next() {
				item := it.Item()
				val, err := item.ValueCopy(nil)
				if err != nil {
					if !yield(entry{}, err) {
						return nil
					}
					continue
				}
				if !yield(entry{key: decodeKey(item.KeyCopy(nil)), value: val}, nil) {
					return nil
				}
			}
			return nil
		})
		if err != nil {
			yield(entry{}, err)
		}
	}
}

func (b *badgerBackend) batchSet(_ context.Context, entries []entry) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, e := range entries {
		if err := wb.Set(e.key.encode(), e.value); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (b *badgerBackend) batchDelete(_ context.Context, keys []key) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k.encode()); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (b *badgerBackend) close() error {
	return b.db.Close()
}

// badgerLogger routes badger warnings and errors to slog and drops the rest.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...any) {
	slog.Error("take: badger: " + strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (badgerLogger) Warningf(f string, v ...any) {
	slog.Warn("take: badger: " + strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}

// memoryBackend is a sorted in-memory backend for tests and dry runs.
type memoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{data: make(map[string][]byte)}
}

func (m *memoryBackend) get(_ context.Context, k key) ([]byte, error) {
	m.mu.RLock()
	v, ok := m.data[string(k.encode())]
	m.mu.RUnlock()
	if !ok {
		return nil, errNotFound
	}
	return bytes.Clone(v), nil
}

func (m *memoryBackend) set(_ context.Context, k key, value []byte) error {
	m.mu.Lock()
	m.data[string(k.encode())] = bytes.Clone(value)
	m.mu.Unlock()
	return nil
}

func (m *memoryBackend) scan(_ context.Context, prefix key) iter.Seq2[entry, error] {
	p := string(prefix.prefix())

	m.mu.RLock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, p) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	matches := make([]entry, len(keys))
	for i, k := range keys {
		matches[i] = entry{key: decodeKey([]byte(k)), value: bytes.Clone(m.data[k])}
	}
	m.mu.RUnlock()

	return func(yield func(entry, error) bool) {
		for _, e := range matches {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (m *memoryBackend) batchSet(_ context.Context, entries []entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.data[string(e.key.encode())] = bytes.Clone(e.value)
	}
	return nil
}

func (m *memoryBackend) batchDelete(_ context.Context, keys []key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, string(k.encode()))
	}
	return nil
}

func (m *memoryBackend) close() error {
	return nil
}
