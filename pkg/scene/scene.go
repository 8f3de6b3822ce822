// Package scene is a headless mocap host: named objects and armatures whose
// transforms and keyframe tracks live in memory.
//
// It implements mocap.Host so a capture session can run without a 3D editor,
// and forwards every inserted keyframe to an optional hook, which is how
// takes get recorded.
package scene

import (
	"fmt"
	"sort"
	"sync"

	"github.com/haivivi/kinectmotion/pkg/kinectmotion"
	"github.com/haivivi/kinectmotion/pkg/mocap"
)

// KeyframeEvent describes a keyframe inserted on a node.
type KeyframeEvent struct {
	Kind     mocap.TargetKind
	Armature string
	Target   string
	Channel  mocap.Channel
	Frame    int
	Values   []float64
}

// Option configures a Scene.
type Option func(*Scene)

// WithAutoCreate makes Resolve create missing objects, armatures and bones
// instead of failing with mocap.ErrTargetNotFound.
func WithAutoCreate() Option {
	return func(s *Scene) {
		s.autoCreate = true
	}
}

// WithKeyframeHook registers fn to be called for every inserted keyframe.
func WithKeyframeHook(fn func(KeyframeEvent)) Option {
	return func(s *Scene) {
		s.onKeyframe = fn
	}
}

// Scene holds objects and armatures. It is safe for concurrent use.
type Scene struct {
	mu         sync.RWMutex
	objects    map[string]*Node
	armatures  map[string]*Armature
	mode       mocap.Mode
	autoCreate bool
	onKeyframe func(KeyframeEvent)
}

// New creates an empty scene in object mode.
func New(opts ...Option) *Scene {
	s := &Scene{
		objects:   make(map[string]*Node),
		armatures: make(map[string]*Armature),
		mode:      mocap.ModeObject,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Armature is a named set of bones.
type Armature struct {
	Name  string
	bones map[string]*Node
}

// Bone returns the named bone, or nil.
func (a *Armature) Bone(name string) *Node {
	return a.bones[name]
}

// Bones returns the bone names in lexical order.
func (a *Armature) Bones() []string {
	return sortedKeys(a.bones)
}

// AddObject adds an object, or returns the existing one with that name.
func (s *Scene) AddObject(name string) *Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addObjectLocked(name)
}

func (s *Scene) addObjectLocked(name string) *Node {
	if n, ok := s.objects[name]; ok {
		return n
	}
	n := newNode(s, mocap.TargetObject, "", name)
	s.objects[name] = n
	return n
}

// AddArmature adds an armature with the given bones. Bones are merged into
// an existing armature of the same name.
func (s *Scene) AddArmature(name string, bones ...string) *Armature {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.addArmatureLocked(name)
	for _, b := range bones {
		s.addBoneLocked(a, b)
	}
	return a
}

func (s *Scene) addArmatureLocked(name string) *Armature {
	if a, ok := s.armatures[name]; ok {
		return a
	}
	a := &Armature{Name: name, bones: make(map[string]*Node)}
	s.armatures[name] = a
	return a
}

func (s *Scene) addBoneLocked(a *Armature, name string) *Node {
	if n, ok := a.bones[name]; ok {
		return n
	}
	n := newNode(s, mocap.TargetBone, a.Name, name)
	a.bones[name] = n
	return n
}

// Object returns the named object, or nil.
func (s *Scene) Object(name string) *Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objects[name]
}

// Armature returns the named armature, or nil.
func (s *Scene) Armature(name string) *Armature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.armatures[name]
}

// Objects returns the object names in lexical order.
func (s *Scene) Objects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.objects)
}

// Armatures returns the armature names in lexical order.
func (s *Scene) Armatures() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.armatures)
}

// Resolve implements mocap.Resolver.
func (s *Scene) Resolve(kind mocap.TargetKind, armature, name string) (mocap.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case mocap.TargetObject:
		if n, ok := s.objects[name]; ok {
			return n, nil
		}
		if s.autoCreate {
			return s.addObjectLocked(name), nil
		}
		return nil, fmt.Errorf("%w: object %q", mocap.ErrTargetNotFound, name)

	case mocap.TargetBone:
		a, ok := s.armatures[armature]
		if !ok {
			if !s.autoCreate {
				return nil, fmt.Errorf("%w: armature %q", mocap.ErrTargetNotFound, armature)
			}
			a = s.addArmatureLocked(armature)
		}
		if n, ok := a.bones[name]; ok {
			return n, nil
		}
		if s.autoCreate {
			return s.addBoneLocked(a, name), nil
		}
		return nil, fmt.Errorf("%w: bone %q in armature %q", mocap.ErrTargetNotFound, name, armature)

	default:
		return nil, fmt.Errorf("scene: unknown target kind %v", kind)
	}
}

// Mode implements mocap.Host.
func (s *Scene) Mode() mocap.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// SetMode implements mocap.Host.
func (s *Scene) SetMode(m mocap.Mode) error {
	if m != mocap.ModeObject && m != mocap.ModePose {
		return fmt.Errorf("scene: unsupported mode %q", m)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
	return nil
}

func (s *Scene) emit(ev KeyframeEvent) {
	s.mu.RLock()
	fn := s.onKeyframe
	s.mu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Ensure interface compliance.
var _ mocap.Host = (*Scene)(nil)

// identity is the rest rotation of new nodes.
var identity = kinectmotion.IdentityOrientation
