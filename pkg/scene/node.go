package scene

import (
	"fmt"
	"sort"
	"sync"

	"github.com/haivivi/kinectmotion/pkg/kinectmotion"
	"github.com/haivivi/kinectmotion/pkg/mocap"
)

// Keyframe is a recorded channel value.
type Keyframe struct {
	Frame  int
	Values []float64
}

// Node is an object or a bone. It implements mocap.Target.
type Node struct {
	scene    *Scene
	kind     mocap.TargetKind
	armature string
	name     string

	mu       sync.Mutex
	location kinectmotion.Position
	rotation kinectmotion.Orientation
	tracks   map[mocap.Channel][]Keyframe
}

func newNode(s *Scene, kind mocap.TargetKind, armature, name string) *Node {
	return &Node{
		scene:    s,
		kind:     kind,
		armature: armature,
		name:     name,
		rotation: identity,
		tracks:   make(map[mocap.Channel][]Keyframe),
	}
}

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Kind returns whether the node is an object or a bone.
func (n *Node) Kind() mocap.TargetKind { return n.kind }

// Location returns the current location.
func (n *Node) Location() kinectmotion.Position {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

// Rotation returns the current rotation quaternion.
func (n *Node) Rotation() kinectmotion.Orientation {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rotation
}

// SetLocation implements mocap.Target.
func (n *Node) SetLocation(p kinectmotion.Position) {
	n.mu.Lock()
	n.location = p
	n.mu.Unlock()
}

// SetRotation implements mocap.Target.
func (n *Node) SetRotation(q kinectmotion.Orientation) {
	n.mu.Lock()
	n.rotation = q
	n.mu.Unlock()
}

// InsertKeyframe implements mocap.Target. It records the current value of
// ch at frame, replacing an existing key on the same frame.
func (n *Node) InsertKeyframe(ch mocap.Channel, frame int) error {
	n.mu.Lock()
	var values []float64
	switch ch {
	case mocap.ChannelLocation:
		values = []float64{n.location.X, n.location.Y, n.location.Z}
	case mocap.ChannelRotation:
		values = []float64{n.rotation.W, n.rotation.X, n.rotation.Y, n.rotation.Z}
	default:
		n.mu.Unlock()
		return fmt.Errorf("scene: %s has no channel %q", n.name, ch)
	}

	track := n.tracks[ch]
	i := sort.Search(len(track), func(i int) bool { return track[i].Frame >= frame })
	key := Keyframe{Frame: frame, Values: values}
	if i < len(track) && track[i].Frame == frame {
		track[i] = key
	} else {
		track = append(track, Keyframe{})
		copy(track[i+1:], track[i:])
		track[i] = key
	}
	n.tracks[ch] = track
	n.mu.Unlock()

	n.scene.emit(KeyframeEvent{
		Kind:     n.kind,
		Armature: n.armature,
		Target:   n.name,
		Channel:  ch,
		Frame:    frame,
		Values:   append([]float64(nil), values...),
	})
	return nil
}

// Keyframes returns the keys of ch ordered by frame.
func (n *Node) Keyframes(ch mocap.Channel) []Keyframe {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Keyframe(nil), n.tracks[ch]...)
}
