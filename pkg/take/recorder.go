package take

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/haivivi/kinectmotion/pkg/scene"
)

// Recorder collects the keyframes of an open take and writes them to the
// store one batch per tick.
type Recorder struct {
	store *Store

	mu      sync.Mutex
	take    *Take
	pending []Keyframe
	closed  bool
}

// NewRecorder creates the take in the store and returns a recorder for it.
func NewRecorder(ctx context.Context, store *Store, t *Take) (*Recorder, error) {
	if t.StartedAt.IsZero() {
		t.StartedAt = time.Now()
	}
	if err := store.Create(ctx, t); err != nil {
		return nil, err
	}
	return &Recorder{store: store, take: t}, nil
}

// Take returns a snapshot of the take metadata.
func (r *Recorder) Take() Take {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.take
}

// OnKeyframe queues a keyframe inserted in the scene. It matches the
// signature of scene.WithKeyframeHook.
func (r *Recorder) OnKeyframe(ev scene.KeyframeEvent) {
	r.Add(Keyframe{
		Kind:     ev.Kind,
		Armature: ev.Armature,
		Target:   ev.Target,
		Channel:  ev.Channel,
		Frame:    ev.Frame,
		Values:   ev.Values,
	})
}

// Add queues a keyframe. Keyframes added after Close are dropped.
func (r *Recorder) Add(kf Keyframe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if r.take.Keyframes == 0 || kf.Frame < r.take.FirstFrame {
		r.take.FirstFrame = kf.Frame
	}
	if r.take.Keyframes == 0 || kf.Frame > r.take.LastFrame {
		r.take.LastFrame = kf.Frame
	}
	r.take.Keyframes++
	r.pending = append(r.pending, kf)
}

// Flush writes the queued keyframes.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	id := r.take.ID
	r.mu.Unlock()

	if err := r.store.PutKeyframes(ctx, id, batch); err != nil {
		// Keep the batch queued for the next flush.
		r.mu.Lock()
		r.pending = append(batch, r.pending...)
		r.mu.Unlock()
		return err
	}
	return nil
}

// Close flushes the remaining keyframes and finishes the take. Closing a
// closed recorder is a no-op.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	flushErr := r.Flush(ctx)

	r.mu.Lock()
	r.take.EndedAt = time.Now()
	t := *r.take
	r.mu.Unlock()

	return errors.Join(flushErr, r.store.Update(ctx, &t))
}
