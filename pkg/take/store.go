package take

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Store persists takes and their keyframes.
type Store struct {
	b backend
}

// OpenBadger opens a BadgerDB-backed store in dir, creating it if needed.
func OpenBadger(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("take: store directory is required")
	}
	b, err := openBadger(dir, false)
	if err != nil {
		return nil, fmt.Errorf("take: open store %s: %w", dir, err)
	}
	return &Store{b: b}, nil
}

// OpenBadgerInMemory opens a BadgerDB store without disk persistence.
func OpenBadgerInMemory() (*Store, error) {
	b, err := openBadger("", true)
	if err != nil {
		return nil, fmt.Errorf("take: open in-memory store: %w", err)
	}
	return &Store{b: b}, nil
}

// NewMemory returns a store held in a Go map.
func NewMemory() *Store {
	return &Store{b: newMemoryBackend()}
}

// Close releases the store.
func (s *Store) Close() error {
	return s.b.close()
}

// Create stores a new take. An empty ID is filled with a random UUID.
func (s *Store) Create(ctx context.Context, t *Take) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if strings.ContainsRune(t.ID, rune(keySep)) {
		return fmt.Errorf("take: invalid id %q", t.ID)
	}
	if _, err := s.b.get(ctx, takeKey(t.ID)); err == nil {
		return fmt.Errorf("take: %s already exists", t.ID)
	} else if !errors.Is(err, errNotFound) {
		return fmt.Errorf("take: get %s: %w", t.ID, err)
	}
	return s.put(ctx, t)
}

// Update overwrites the metadata of an existing take.
func (s *Store) Update(ctx context.Context, t *Take) error {
	if _, err := s.Get(ctx, t.ID); err != nil {
		return err
	}
	return s.put(ctx, t)
}

func (s *Store) put(ctx context.Context, t *Take) error {
	data, err := msgpack.Marshal(t)
	if err != nil {
		return fmt.Errorf("take: marshal %s: %w", t.ID, err)
	}
	if err := s.b.set(ctx, takeKey(t.ID), data); err != nil {
		return fmt.Errorf("take: put %s: %w", t.ID, err)
	}
	return nil
}

// Get returns the take with the given ID. A unique ID prefix of at least
// four characters also matches.
func (s *Store) Get(ctx context.Context, id string) (*Take, error) {
	data, err := s.b.get(ctx, takeKey(id))
	if errors.Is(err, errNotFound) {
		return s.getByPrefix(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("take: get %s: %w", id, err)
	}
	var t Take
	if err := msgpack.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("take: unmarshal %s: %w", id, err)
	}
	return &t, nil
}

func (s *Store) getByPrefix(ctx context.Context, prefix string) (*Take, error) {
	if len(prefix) < 4 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, prefix)
	}
	takes, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var match *Take
	for _, t := range takes {
		if !strings.HasPrefix(t.ID, prefix) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("take: id prefix %q is ambiguous", prefix)
		}
		match = t
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, prefix)
	}
	return match, nil
}

// List returns all takes, newest first.
func (s *Store) List(ctx context.Context) ([]*Take, error) {
	var takes []*Take
	for e, err := range s.b.scan(ctx, takesPrefix()) {
		if err != nil {
			return nil, fmt.Errorf("take: list: %w", err)
		}
		var t Take
		if err := msgpack.Unmarshal(e.value, &t); err != nil {
			return nil, fmt.Errorf("take: unmarshal %s: %w", e.key.encode(), err)
		}
		takes = append(takes, &t)
	}
	sort.SliceStable(takes, func(i, j int) bool {
		return takes[i].StartedAt.After(takes[j].StartedAt)
	})
	return takes, nil
}

// storedValues is the msgpack value of a keyframe key.
type storedValues struct {
	Values []float64 `msgpack:"v"`
}

// PutKeyframes writes a batch of keyframes of take id. A keyframe replaces
// an existing one on the same target, channel and frame.
func (s *Store) PutKeyframes(ctx context.Context, id string, kfs []Keyframe) error {
	if len(kfs) == 0 {
		return nil
	}
	entries := make([]entry, 0, len(kfs))
	for i := range kfs {
		kf := &kfs[i]
		for _, seg := range []string{kf.Armature, kf.Target, string(kf.Channel)} {
			if strings.ContainsRune(seg, rune(keySep)) {
				return fmt.Errorf("take: invalid name %q", seg)
			}
		}
		data, err := msgpack.Marshal(storedValues{Values: kf.Values})
		if err != nil {
			return fmt.Errorf("take: marshal keyframe: %w", err)
		}
		entries = append(entries, entry{key: kf.key(id), value: data})
	}
	if err := s.b.batchSet(ctx, entries); err != nil {
		return fmt.Errorf("take: put keyframes of %s: %w", id, err)
	}
	return nil
}

// Keyframes iterates the keyframes of take id grouped by target and channel,
// each track ordered by frame.
func (s *Store) Keyframes(ctx context.Context, id string) iter.Seq2[Keyframe, error] {
	return func(yield func(Keyframe, error) bool) {
		for e, err := range s.b.scan(ctx, keyframesPrefix(id)) {
			if err != nil {
				yield(Keyframe{}, fmt.Errorf("take: scan keyframes of %s: %w", id, err))
				return
			}
			kf, err := keyframeFromKey(e.key)
			if err != nil {
				if !yield(Keyframe{}, err) {
					return
				}
				continue
			}
			var v storedValues
			if err := msgpack.Unmarshal(e.value, &v); err != nil {
				if !yield(Keyframe{}, fmt.Errorf("take: unmarshal keyframe: %w", err)) {
					return
				}
				continue
			}
			kf.Values = v.Values
			if !yield(kf, nil) {
				return
			}
		}
	}
}

// Delete removes a take and all of its keyframes.
func (s *Store) Delete(ctx context.Context, id string) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	keys := []key{takeKey(t.ID)}
	for e, err := range s.b.scan(ctx, keyframesPrefix(t.ID)) {
		if err != nil {
			return fmt.Errorf("take: delete %s: %w", t.ID, err)
		}
		keys = append(keys, e.key)
	}
	if err := s.b.batchDelete(ctx, keys); err != nil {
		return fmt.Errorf("take: delete %s: %w", t.ID, err)
	}
	return nil
}
