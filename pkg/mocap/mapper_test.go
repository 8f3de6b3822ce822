package mocap

import (
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/haivivi/kinectmotion/pkg/kinectmotion"
)

func TestMapper_Apply_BonePose(t *testing.T) {
	host := newFakeHost("Head")
	m := &Mapper{Kind: TargetBone, Armature: "Armature", Resolver: host, Reporter: &recordReporter{}}

	res := m.Apply(headBody(), Mapping{kinectmotion.JointHead: "Head"}, 0, false)

	head := host.targets["Head"]
	if head.loc != (kinectmotion.Position{X: 1, Y: 2, Z: 3}) {
		t.Errorf("Head location = %v, want (1,2,3)", head.loc)
	}
	if !head.rotSet || head.rot != kinectmotion.IdentityOrientation {
		t.Errorf("Head rotation = %v (set=%v), want identity", head.rot, head.rotSet)
	}
	if len(head.keys) != 0 {
		t.Errorf("keyframes = %v, want none", head.keys)
	}
	if res.Keyframes != 0 {
		t.Errorf("Result.Keyframes = %d, want 0", res.Keyframes)
	}
	if diff := cmp.Diff([]kinectmotion.JointName{kinectmotion.JointHead}, res.Applied); diff != "" {
		t.Errorf("Result.Applied mismatch (-want +got):\n%s", diff)
	}
}

func TestMapper_Apply_BoneKeyframes(t *testing.T) {
	host := newFakeHost("Head")
	m := &Mapper{Kind: TargetBone, Armature: "Armature", Resolver: host, Reporter: &recordReporter{}}

	res := m.Apply(headBody(), Mapping{kinectmotion.JointHead: "Head"}, 5, true)

	want := []keyframe{{ChannelLocation, 5}, {ChannelRotation, 5}}
	if diff := cmp.Diff(want, host.targets["Head"].keys, cmp.AllowUnexported(keyframe{})); diff != "" {
		t.Errorf("keyframes mismatch (-want +got):\n%s", diff)
	}
	if res.Keyframes != 2 {
		t.Errorf("Result.Keyframes = %d, want 2", res.Keyframes)
	}
}

func TestMapper_Apply_MissingTargetSkipsJoint(t *testing.T) {
	host := newFakeHost("Head")
	rep := &recordReporter{}
	m := &Mapper{Kind: TargetBone, Armature: "Armature", Resolver: host, Reporter: rep}

	mapping := Mapping{
		kinectmotion.JointNeck: "Neck",
		kinectmotion.JointHead: "Head",
	}
	res := m.Apply(headBody(), mapping, 1, true)

	if diff := cmp.Diff([]kinectmotion.JointName{kinectmotion.JointNeck}, res.Missing); diff != "" {
		t.Errorf("Result.Missing mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]kinectmotion.JointName{kinectmotion.JointHead}, res.Applied); diff != "" {
		t.Errorf("Result.Applied mismatch (-want +got):\n%s", diff)
	}
	if host.targets["Head"].loc != (kinectmotion.Position{X: 1, Y: 2, Z: 3}) {
		t.Errorf("Head location = %v", host.targets["Head"].loc)
	}
	if !rep.contains("WARN", "neck") {
		t.Errorf("missing target was not reported: %v", rep.lines)
	}
}

func TestMapper_Apply_ObjectPositionOnly(t *testing.T) {
	host := newFakeHost("HeadEmpty")
	m := &Mapper{Kind: TargetObject, Resolver: host, Reporter: &recordReporter{}}

	res := m.Apply(headBody(), Mapping{kinectmotion.JointHead: "HeadEmpty"}, 3, true)

	target := host.targets["HeadEmpty"]
	if !target.locSet {
		t.Error("object location was not set")
	}
	if target.rotSet {
		t.Error("object rotation must not be set")
	}
	want := []keyframe{{ChannelLocation, 3}}
	if diff := cmp.Diff(want, target.keys, cmp.AllowUnexported(keyframe{})); diff != "" {
		t.Errorf("keyframes mismatch (-want +got):\n%s", diff)
	}
	if res.Keyframes != 1 {
		t.Errorf("Result.Keyframes = %d, want 1", res.Keyframes)
	}
}

func TestMapper_Apply_JointOrder(t *testing.T) {
	host := newFakeHost()
	body := &kinectmotion.Body{IsTracked: true, Joints: map[kinectmotion.JointName]kinectmotion.Joint{}}
	mapping := Mapping{}
	for _, j := range kinectmotion.JointNames {
		host.targets[string(j)] = &fakeTarget{name: string(j)}
		body.Joints[j] = kinectmotion.Joint{}
		mapping[j] = string(j)
	}
	m := &Mapper{Kind: TargetObject, Resolver: host, Reporter: &recordReporter{}}

	res := m.Apply(body, mapping, 0, false)
	if diff := cmp.Diff(kinectmotion.JointNames[:], res.Applied); diff != "" {
		t.Errorf("Result.Applied order mismatch (-want +got):\n%s", diff)
	}
}

func TestMapper_Apply_SkipsUnmappedAndAbsentJoints(t *testing.T) {
	host := newFakeHost("Foot", "Head")
	m := &Mapper{Kind: TargetBone, Armature: "Armature", Resolver: host, Reporter: &recordReporter{}}

	mapping := Mapping{
		kinectmotion.JointHead:      "Head",
		kinectmotion.JointSpineBase: "",
		kinectmotion.JointFootLeft:  "Foot", // not in the frame
	}
	res := m.Apply(headBody(), mapping, 0, true)

	if host.targets["Foot"].locSet || len(host.targets["Foot"].keys) != 0 {
		t.Error("absent joint must not touch its target")
	}
	if host.resolves != 2 {
		t.Errorf("resolves = %d, want 2", host.resolves)
	}
	if len(res.Applied) != 1 {
		t.Errorf("Result.Applied = %v", res.Applied)
	}
}

func TestMapper_Apply_KeyframeFailureIsReported(t *testing.T) {
	host := newFakeHost("Head", "Neck")
	host.targets["Neck"].failKey = errKeyframe
	rep := &recordReporter{}
	m := &Mapper{Kind: TargetBone, Armature: "Armature", Resolver: host, Reporter: rep}

	res := m.Apply(headBody(), Mapping{kinectmotion.JointHead: "Head", kinectmotion.JointNeck: "Neck"}, 2, true)

	if res.Keyframes != 2 {
		t.Errorf("Result.Keyframes = %d, want 2", res.Keyframes)
	}
	if !host.targets["Neck"].locSet {
		t.Error("Neck pose should be applied even when keyframing fails")
	}
	if !rep.contains("WARN", "keyframe rejected") {
		t.Errorf("keyframe failure not reported: %v", rep.lines)
	}
}

func TestMapper_Apply_NilBody(t *testing.T) {
	host := newFakeHost("Head")
	m := &Mapper{Kind: TargetBone, Resolver: host}
	res := m.Apply(nil, Mapping{kinectmotion.JointHead: "Head"}, 0, true)
	if len(res.Applied) != 0 || host.resolves != 0 {
		t.Errorf("nil body applied %v", res.Applied)
	}
}

func TestMapping_Validate(t *testing.T) {
	if err := IdentityMapping().Validate(); err != nil {
		t.Errorf("IdentityMapping().Validate() = %v", err)
	}
	if n := IdentityMapping().Len(); n != 25 {
		t.Errorf("IdentityMapping().Len() = %d, want 25", n)
	}
	err := Mapping{"tail": "Tail", "wing": "Wing"}.Validate()
	if err == nil || err.Error() != "mocap: unknown joints in mapping: tail, wing" {
		t.Errorf("Validate() = %v", err)
	}
}

func TestParseTargetKind(t *testing.T) {
	tests := []struct {
		in      string
		want    TargetKind
		wantErr bool
	}{
		{"", TargetObject, false},
		{"object", TargetObject, false},
		{"BONE", TargetBone, false},
		{" bone ", TargetBone, false},
		{"mesh", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTargetKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTargetKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseTargetKind(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestReporters(t *testing.T) {
	for _, rep := range []Reporter{DefaultReporter(), SlogReporter(slog.Default())} {
		// These should not panic
		rep.ErrorPrintf("test error %d", 1)
		rep.WarnPrintf("test warn %s", "msg")
		rep.InfoPrintf("test info")
		rep.DebugPrintf("test debug")
	}
}
