// Package take records capture sessions as takes.
//
// A take is one recording: its metadata plus every keyframe inserted while
// it was open. Takes live in a Store (BadgerDB on disk, or memory), with
// msgpack-encoded values under hierarchical keys:
//
//	take/{id}                                           → Take
//	kf/{id}/{kind}/{armature}/{target}/{channel}/{frame} → keyframe values
//
// Frames are encoded so that lexicographic key order is numeric order,
// which makes a prefix scan return each track sorted by frame.
//
// A take can be exported as a JSON or YAML document to a FileStore (local
// directory or S3 bucket) and imported back.
package take

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/haivivi/kinectmotion/pkg/mocap"
)

// ErrNotFound is returned when a take does not exist.
var ErrNotFound = errors.New("take: not found")

// Take is the metadata of one recording.
type Take struct {
	ID       string           `json:"id" yaml:"id" msgpack:"id"`
	Name     string           `json:"name,omitempty" yaml:"name,omitempty" msgpack:"name"`
	Endpoint string           `json:"endpoint,omitempty" yaml:"endpoint,omitempty" msgpack:"endpoint"`
	Kind     mocap.TargetKind `json:"kind" yaml:"kind" msgpack:"kind"`
	Armature string           `json:"armature,omitempty" yaml:"armature,omitempty" msgpack:"armature"`

	StartedAt time.Time `json:"started_at" yaml:"started_at" msgpack:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero" yaml:"ended_at,omitempty" msgpack:"ended_at"`

	FirstFrame int `json:"first_frame" yaml:"first_frame" msgpack:"first_frame"`
	LastFrame  int `json:"last_frame" yaml:"last_frame" msgpack:"last_frame"`
	Keyframes  int `json:"keyframes" yaml:"keyframes" msgpack:"keyframes"`
}

// Duration returns the wall-clock length of a finished take.
func (t *Take) Duration() time.Duration {
	if t.EndedAt.IsZero() {
		return 0
	}
	return t.EndedAt.Sub(t.StartedAt)
}

// Keyframe is one recorded channel value of one target.
type Keyframe struct {
	Kind     mocap.TargetKind
	Armature string
	Target   string
	Channel  mocap.Channel
	Frame    int
	Values   []float64
}

// frameOffset maps int32 frames onto uint32 so negative frames sort first.
const frameOffset = 1 << 31

func encodeFrame(frame int) string {
	return fmt.Sprintf("%08x", uint32(int64(frame)+frameOffset))
}

func decodeFrame(s string) (int, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("take: bad frame %q: %w", s, err)
	}
	return int(int64(v) - frameOffset), nil
}

func takeKey(id string) key {
	return key{"take", id}
}

func takesPrefix() key {
	return key{"take"}
}

func keyframesPrefix(id string) key {
	return key{"kf", id}
}

func (k *Keyframe) key(id string) key {
	return key{"kf", id, k.Kind.String(), k.Armature, k.Target, string(k.Channel), encodeFrame(k.Frame)}
}

// keyframeFromKey fills the addressing fields of a keyframe from its key.
func keyframeFromKey(k key) (Keyframe, error) {
	if len(k) != 7 || k[0] != "kf" {
		return Keyframe{}, fmt.Errorf("take: malformed keyframe key %q", k.encode())
	}
	kind, err := mocap.ParseTargetKind(k[2])
	if err != nil {
		return Keyframe{}, err
	}
	frame, err := decodeFrame(k[6])
	if err != nil {
		return Keyframe{}, err
	}
	return Keyframe{
		Kind:     kind,
		Armature: k[3],
		Target:   k[4],
		Channel:  mocap.Channel(k[5]),
		Frame:    frame,
	}, nil
}
