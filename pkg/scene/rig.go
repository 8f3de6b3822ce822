package scene

import (
	"errors"
	"fmt"

	"github.com/haivivi/kinectmotion/pkg/kinectmotion"
	"github.com/haivivi/kinectmotion/pkg/mocap"
)

// Rig describes the targets of a capture and how joints map onto them. It
// is read from YAML or JSON files:
//
//	kind: bone
//	armature: Armature
//	armatures:
//	  - name: Armature
//	    bones: [Hips, Spine, Head]
//	mapping:
//	  spineBase: Hips
//	  spineMid: Spine
//	  head: Head
type Rig struct {
	Kind      string            `yaml:"kind,omitempty" json:"kind,omitempty"`
	Armature  string            `yaml:"armature,omitempty" json:"armature,omitempty"`
	Objects   []string          `yaml:"objects,omitempty" json:"objects,omitempty"`
	Armatures []RigArmature     `yaml:"armatures,omitempty" json:"armatures,omitempty"`
	Mapping   map[string]string `yaml:"mapping,omitempty" json:"mapping,omitempty"`
}

// RigArmature is an armature entry of a Rig.
type RigArmature struct {
	Name  string   `yaml:"name" json:"name"`
	Bones []string `yaml:"bones" json:"bones"`
}

// TargetKind parses the rig kind.
func (r *Rig) TargetKind() (mocap.TargetKind, error) {
	return mocap.ParseTargetKind(r.Kind)
}

// JointMapping returns the rig mapping keyed by joint name.
func (r *Rig) JointMapping() (mocap.Mapping, error) {
	m := make(mocap.Mapping, len(r.Mapping))
	for joint, target := range r.Mapping {
		m[kinectmotion.JointName(joint)] = target
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the rig for unknown joints, a bad kind, and armatures
// without a name.
func (r *Rig) Validate() error {
	kind, err := r.TargetKind()
	if err != nil {
		return err
	}
	if kind == mocap.TargetBone && r.Armature == "" {
		return errors.New("scene: bone rig requires an armature")
	}
	for i, a := range r.Armatures {
		if a.Name == "" {
			return fmt.Errorf("scene: armature #%d has no name", i)
		}
	}
	_, err = r.JointMapping()
	return err
}

// LoadRig adds the rig's objects and armatures to the scene.
func (s *Scene) LoadRig(r *Rig) error {
	if err := r.Validate(); err != nil {
		return err
	}
	for _, name := range r.Objects {
		s.AddObject(name)
	}
	for _, a := range r.Armatures {
		s.AddArmature(a.Name, a.Bones...)
	}
	return nil
}

// DefaultRig maps every joint onto a bone of the same name in an armature
// called "Kinect".
func DefaultRig() *Rig {
	bones := make([]string, 0, len(kinectmotion.JointNames))
	mapping := make(map[string]string, len(kinectmotion.JointNames))
	for _, j := range kinectmotion.JointNames {
		bones = append(bones, string(j))
		mapping[string(j)] = string(j)
	}
	return &Rig{
		Kind:      "bone",
		Armature:  "Kinect",
		Armatures: []RigArmature{{Name: "Kinect", Bones: bones}},
		Mapping:   mapping,
	}
}
