package motionserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/haivivi/kinectmotion/pkg/kinectmotion"
)

// Source produces the messages a Server broadcasts.
type Source interface {
	// Stream calls emit for each message until the source is exhausted,
	// emit fails, or ctx is done.
	Stream(ctx context.Context, emit func(kinectmotion.Message) error) error
}

// Run broadcasts every message of src. It returns when src is exhausted or
// fails, or ctx is done; a canceled ctx is not an error.
func (s *Server) Run(ctx context.Context, src Source) error {
	err := src.Stream(ctx, s.Broadcast)
	if err != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// pace waits for the next tick. A zero interval does not wait.
func pace(ctx context.Context, t *time.Ticker) error {
	if t == nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func newTicker(interval time.Duration) *time.Ticker {
	if interval <= 0 {
		return nil
	}
	return time.NewTicker(interval)
}

// Recording is a sequence of messages captured from a stream.
type Recording []kinectmotion.Message

// maxLine bounds one recorded message. Body frames are a few kilobytes but
// body-index frames carry a full depth image.
const maxLine = 16 << 20

// ReadRecording reads JSON lines of {"type","content"} objects. Blank lines
// are skipped.
func ReadRecording(r io.Reader) (Recording, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)

	var rec Recording
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var msg kinectmotion.Message
		if err := json.Unmarshal(b, &msg); err != nil {
			return nil, fmt.Errorf("motionserver: recording line %d: %w", line, err)
		}
		if msg.Type == "" {
			return nil, fmt.Errorf("motionserver: recording line %d: missing type", line)
		}
		rec = append(rec, msg)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("motionserver: read recording: %w", err)
	}
	return rec, nil
}

// RecordingWriter appends messages to a JSON-lines recording.
type RecordingWriter struct {
	w   *bufio.Writer
	enc *json.Encoder
}

// NewRecordingWriter creates a RecordingWriter. Call Flush when done.
func NewRecordingWriter(w io.Writer) *RecordingWriter {
	bw := bufio.NewWriter(w)
	return &RecordingWriter{w: bw, enc: json.NewEncoder(bw)}
}

// Write appends one message.
func (rw *RecordingWriter) Write(msg kinectmotion.Message) error {
	return rw.enc.Encode(msg)
}

// Flush writes buffered messages to the underlying writer.
func (rw *RecordingWriter) Flush() error {
	return rw.w.Flush()
}

// Replay plays a Recording back.
type Replay struct {
	Recording Recording

	// Interval is the delay between messages. Zero sends as fast as
	// clients accept them.
	Interval time.Duration

	// Loop restarts the recording when it ends.
	Loop bool
}

// Stream implements Source.
func (r *Replay) Stream(ctx context.Context, emit func(kinectmotion.Message) error) error {
	if len(r.Recording) == 0 {
		return errors.New("motionserver: empty recording")
	}
	t := newTicker(r.Interval)
	if t != nil {
		defer t.Stop()
	}
	for {
		for _, msg := range r.Recording {
			if err := pace(ctx, t); err != nil {
				return err
			}
			if err := emit(msg); err != nil {
				return err
			}
		}
		if !r.Loop {
			return nil
		}
	}
}

// Synthetic generates a standing skeleton that sways and turns in place.
type Synthetic struct {
	// Interval is the delay between frames. Default is 1/30s; a negative
	// interval sends as fast as clients accept them.
	Interval time.Duration

	// Frames stops the stream after this many frames. Zero runs forever.
	Frames int

	// Tracked is the number of tracked bodies per frame. Default is 1.
	// Use 0 with Untracked to simulate an empty room.
	Tracked *int

	// Untracked adds bodies that are detected but not tracked.
	Untracked int

	// BodyIndex interleaves a BodyIndexFrameData message after each body
	// frame, which clients must skip.
	BodyIndex bool
}

// restPose is a standing skeleton in camera space, 2m from the sensor.
var restPose = map[kinectmotion.JointName]kinectmotion.Position{
	kinectmotion.JointSpineBase:     {X: 0, Y: -0.30, Z: 2},
	kinectmotion.JointSpineMid:      {X: 0, Y: 0.00, Z: 2},
	kinectmotion.JointSpineShoulder: {X: 0, Y: 0.25, Z: 2},
	kinectmotion.JointNeck:          {X: 0, Y: 0.32, Z: 2},
	kinectmotion.JointHead:          {X: 0, Y: 0.50, Z: 2},
	kinectmotion.JointShoulderLeft:  {X: -0.18, Y: 0.22, Z: 2},
	kinectmotion.JointElbowLeft:     {X: -0.25, Y: -0.02, Z: 2},
	kinectmotion.JointWristLeft:     {X: -0.28, Y: -0.24, Z: 2},
	kinectmotion.JointHandLeft:      {X: -0.29, Y: -0.30, Z: 2},
	kinectmotion.JointHandTipLeft:   {X: -0.30, Y: -0.38, Z: 2},
	kinectmotion.JointThumbLeft:     {X: -0.26, Y: -0.32, Z: 1.96},
	kinectmotion.JointShoulderRight: {X: 0.18, Y: 0.22, Z: 2},
	kinectmotion.JointElbowRight:    {X: 0.25, Y: -0.02, Z: 2},
	kinectmotion.JointWristRight:    {X: 0.28, Y: -0.24, Z: 2},
	kinectmotion.JointHandRight:     {X: 0.29, Y: -0.30, Z: 2},
	kinectmotion.JointHandTipRight:  {X: 0.30, Y: -0.38, Z: 2},
	kinectmotion.JointThumbRight:    {X: 0.26, Y: -0.32, Z: 1.96},
	kinectmotion.JointHipLeft:       {X: -0.09, Y: -0.32, Z: 2},
	kinectmotion.JointKneeLeft:      {X: -0.10, Y: -0.72, Z: 2},
	kinectmotion.JointAnkleLeft:     {X: -0.10, Y: -1.10, Z: 2},
	kinectmotion.JointFootLeft:      {X: -0.10, Y: -1.16, Z: 1.9},
	kinectmotion.JointHipRight:      {X: 0.09, Y: -0.32, Z: 2},
	kinectmotion.JointKneeRight:     {X: 0.10, Y: -0.72, Z: 2},
	kinectmotion.JointAnkleRight:    {X: 0.10, Y: -1.10, Z: 2},
	kinectmotion.JointFootRight:     {X: 0.10, Y: -1.16, Z: 1.9},
}

// Frame returns the body frame at index i.
func (g *Synthetic) Frame(i int) kinectmotion.BodyFrame {
	tracked := 1
	if g.Tracked != nil {
		tracked = *g.Tracked
	}
	frame := kinectmotion.BodyFrame{Bodies: []kinectmotion.Body{}}
	for b := range tracked {
		frame.Bodies = append(frame.Bodies, g.body(i, b))
	}
	for range g.Untracked {
		frame.Bodies = append(frame.Bodies, kinectmotion.Body{IsTracked: false})
	}
	return frame
}

func (g *Synthetic) body(i, n int) kinectmotion.Body {
	phase := float64(i) / 30
	sway := 0.05 * math.Sin(2*math.Pi*phase/2)
	yaw := 0.3 * math.Sin(2*math.Pi*phase/4)
	rot := kinectmotion.Orientation{W: math.Cos(yaw / 2), Y: math.Sin(yaw / 2)}

	body := kinectmotion.Body{
		IsTracked:         true,
		TrackingID:        uint64(72057594037928000 + n),
		Joints:            make(map[kinectmotion.JointName]kinectmotion.Joint, len(restPose)),
		JointOrientations: make(map[kinectmotion.JointName]kinectmotion.JointOrientation, len(restPose)),
	}
	offset := float64(n) * 0.8
	for _, name := range kinectmotion.JointNames {
		p := restPose[name]
		p.X += sway + offset
		body.Joints[name] = kinectmotion.Joint{Position: p, TrackingState: "Tracked"}
		body.JointOrientations[name] = kinectmotion.JointOrientation{Orientation: rot}
	}
	return body
}

// Stream implements Source.
func (g *Synthetic) Stream(ctx context.Context, emit func(kinectmotion.Message) error) error {
	interval := g.Interval
	if interval == 0 {
		interval = time.Second / 30
	}
	t := newTicker(interval)
	if t != nil {
		defer t.Stop()
	}
	for i := 0; g.Frames == 0 || i < g.Frames; i++ {
		if err := pace(ctx, t); err != nil {
			return err
		}
		content, err := json.Marshal(g.Frame(i))
		if err != nil {
			return err
		}
		if err := emit(kinectmotion.Message{Type: kinectmotion.MessageBodyFrame, Content: content}); err != nil {
			return err
		}
		if g.BodyIndex {
			idx := kinectmotion.Message{Type: kinectmotion.MessageBodyIndexFrame, Content: json.RawMessage(`{"width":0,"height":0}`)}
			if err := emit(idx); err != nil {
				return err
			}
		}
	}
	return nil
}
