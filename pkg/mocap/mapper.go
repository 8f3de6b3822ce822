package mocap

import (
	"errors"

	"github.com/haivivi/kinectmotion/pkg/kinectmotion"
)

// Mapper applies a tracked body onto host targets. It holds configuration
// only; every Apply call is independent.
type Mapper struct {
	Kind     TargetKind
	Armature string
	Resolver Resolver
	Reporter Reporter
}

// Result summarizes one Apply call.
type Result struct {
	// Applied lists joints written to their target, in table order.
	Applied []kinectmotion.JointName
	// Missing lists joints whose target could not be resolved.
	Missing []kinectmotion.JointName
	// Keyframes counts inserted keyframes.
	Keyframes int
}

// Apply writes the body's joints onto the mapped targets, walking the joint
// table in order. Positions are always applied; orientations only for bone
// targets. When insertKeyframe is set, a keyframe is inserted at frame for
// every channel written. Unresolvable targets and failed keyframe inserts are
// reported and skipped.
func (m *Mapper) Apply(body *kinectmotion.Body, mapping Mapping, frame int, insertKeyframe bool) Result {
	var res Result
	if body == nil {
		return res
	}
	rep := m.Reporter
	if rep == nil {
		rep = DefaultReporter()
	}

	for _, joint := range kinectmotion.JointNames {
		name := mapping[joint]
		if name == "" {
			continue
		}

		target, err := m.Resolver.Resolve(m.Kind, m.Armature, name)
		if err != nil {
			if errors.Is(err, ErrTargetNotFound) {
				rep.WarnPrintf("joint %s: %v", joint, err)
			} else {
				rep.ErrorPrintf("joint %s: resolve %q: %v", joint, name, err)
			}
			res.Missing = append(res.Missing, joint)
			continue
		}

		var channels []Channel
		if pos, ok := body.Position(joint); ok {
			target.SetLocation(pos)
			channels = append(channels, ChannelLocation)
		}
		if m.Kind == TargetBone {
			if rot, ok := body.Orientation(joint); ok {
				target.SetRotation(rot)
				channels = append(channels, ChannelRotation)
			}
		}
		if len(channels) == 0 {
			rep.DebugPrintf("joint %s: not present in frame", joint)
			continue
		}
		res.Applied = append(res.Applied, joint)

		if !insertKeyframe {
			continue
		}
		for _, ch := range channels {
			if err := target.InsertKeyframe(ch, frame); err != nil {
				rep.WarnPrintf("joint %s: insert %s keyframe at %d: %v", joint, ch, frame, err)
				continue
			}
			res.Keyframes++
		}
	}
	return res
}
