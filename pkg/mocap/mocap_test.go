package mocap

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/haivivi/kinectmotion/pkg/kinectmotion"
)

type keyframe struct {
	ch    Channel
	frame int
}

type fakeTarget struct {
	name    string
	loc     kinectmotion.Position
	rot     kinectmotion.Orientation
	locSet  bool
	rotSet  bool
	keys    []keyframe
	failKey error
}

func (t *fakeTarget) Name() string { return t.name }

func (t *fakeTarget) SetLocation(p kinectmotion.Position) {
	t.loc = p
	t.locSet = true
}

func (t *fakeTarget) SetRotation(q kinectmotion.Orientation) {
	t.rot = q
	t.rotSet = true
}

func (t *fakeTarget) InsertKeyframe(ch Channel, frame int) error {
	if t.failKey != nil {
		return t.failKey
	}
	t.keys = append(t.keys, keyframe{ch, frame})
	return nil
}

type fakeHost struct {
	targets  map[string]*fakeTarget
	mode     Mode
	modeErr  error
	modeLog  []Mode
	resolves int
}

func newFakeHost(names ...string) *fakeHost {
	h := &fakeHost{targets: map[string]*fakeTarget{}, mode: ModeObject}
	for _, n := range names {
		h.targets[n] = &fakeTarget{name: n}
	}
	return h
}

func (h *fakeHost) Resolve(kind TargetKind, armature, name string) (Target, error) {
	h.resolves++
	t, ok := h.targets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrTargetNotFound, kind, name)
	}
	return t, nil
}

func (h *fakeHost) Mode() Mode { return h.mode }

func (h *fakeHost) SetMode(m Mode) error {
	h.modeLog = append(h.modeLog, m)
	if h.modeErr != nil {
		return h.modeErr
	}
	h.mode = m
	return nil
}

// recordReporter keeps every reported line prefixed by its level.
type recordReporter struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordReporter) add(level, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, level+" "+fmt.Sprintf(format, args...))
}

func (r *recordReporter) ErrorPrintf(format string, args ...any) { r.add("ERROR", format, args...) }
func (r *recordReporter) WarnPrintf(format string, args ...any)  { r.add("WARN", format, args...) }
func (r *recordReporter) InfoPrintf(format string, args ...any)  { r.add("INFO", format, args...) }
func (r *recordReporter) DebugPrintf(format string, args ...any) { r.add("DEBUG", format, args...) }

func (r *recordReporter) contains(level, substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if strings.HasPrefix(l, level+" ") && strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

var errKeyframe = errors.New("keyframe rejected")

// headBody is the tracked body of the reference scenarios.
func headBody() *kinectmotion.Body {
	return &kinectmotion.Body{
		IsTracked: true,
		Joints: map[kinectmotion.JointName]kinectmotion.Joint{
			kinectmotion.JointHead: {Position: kinectmotion.Position{X: 1, Y: 2, Z: 3}},
			kinectmotion.JointNeck: {Position: kinectmotion.Position{X: 1, Y: 1.5, Z: 3}},
		},
		JointOrientations: map[kinectmotion.JointName]kinectmotion.JointOrientation{
			kinectmotion.JointHead: {Orientation: kinectmotion.IdentityOrientation},
			kinectmotion.JointNeck: {Orientation: kinectmotion.Orientation{W: 0.7071, X: 0.7071}},
		},
	}
}
