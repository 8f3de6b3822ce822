package mocap

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/haivivi/kinectmotion/pkg/kinectmotion"
)

// ErrTargetNotFound is returned by a Resolver when no target has the
// requested name. The mapper reports it and skips the joint.
var ErrTargetNotFound = errors.New("mocap: target not found")

// TargetKind selects what the mapped names refer to.
type TargetKind int

const (
	// TargetObject maps joints onto scene objects. Objects receive the joint
	// position only.
	TargetObject TargetKind = iota

	// TargetBone maps joints onto the bones of one armature. Bones receive
	// position and orientation.
	TargetBone
)

// String returns the string representation of the kind.
func (k TargetKind) String() string {
	switch k {
	case TargetObject:
		return "object"
	case TargetBone:
		return "bone"
	default:
		return fmt.Sprintf("TargetKind(%d)", int(k))
	}
}

// ParseTargetKind parses "object" or "bone".
func ParseTargetKind(s string) (TargetKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "object":
		return TargetObject, nil
	case "bone":
		return TargetBone, nil
	default:
		return 0, fmt.Errorf("mocap: unknown target kind %q (want object or bone)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k TargetKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *TargetKind) UnmarshalText(b []byte) error {
	v, err := ParseTargetKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Channel is an animated property of a target.
type Channel string

const (
	ChannelLocation Channel = "location"
	ChannelRotation Channel = "rotation_quaternion"
)

// Mode is the host editing mode.
type Mode string

const (
	ModeObject Mode = "OBJECT"
	ModePose   Mode = "POSE"
)

// Target is a host-owned transform the mapper writes to.
type Target interface {
	// Name returns the target name.
	Name() string
	SetLocation(p kinectmotion.Position)
	SetRotation(q kinectmotion.Orientation)
	// InsertKeyframe records the current value of ch at frame.
	InsertKeyframe(ch Channel, frame int) error
}

// Resolver finds targets by name. For TargetBone the name is looked up among
// the bones of the named armature. A missing target yields an error wrapping
// ErrTargetNotFound.
type Resolver interface {
	Resolve(kind TargetKind, armature, name string) (Target, error)
}

// Host is the scene a capture session drives.
type Host interface {
	Resolver
	Mode() Mode
	SetMode(m Mode) error
}

// Mapping maps joints onto target names. Joints with no entry or an empty
// name are skipped.
type Mapping map[kinectmotion.JointName]string

// Validate reports entries keyed by unknown joint names.
func (m Mapping) Validate() error {
	var unknown []string
	for j := range m {
		if !j.Valid() {
			unknown = append(unknown, string(j))
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("mocap: unknown joints in mapping: %s", strings.Join(unknown, ", "))
}

// Len returns the number of joints mapped to a non-empty target.
func (m Mapping) Len() int {
	n := 0
	for _, j := range kinectmotion.JointNames {
		if m[j] != "" {
			n++
		}
	}
	return n
}

// IdentityMapping maps every joint to a target with the joint's own name.
func IdentityMapping() Mapping {
	m := make(Mapping, len(kinectmotion.JointNames))
	for _, j := range kinectmotion.JointNames {
		m[j] = string(j)
	}
	return m
}
