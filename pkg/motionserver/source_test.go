package motionserver

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/haivivi/kinectmotion/pkg/kinectmotion"
)

func TestRecording_WriteRead(t *testing.T) {
	want := Recording{
		rawMessage(kinectmotion.MessageBodyFrame, `{"bodies":[{"isTracked":true}]}`),
		rawMessage(kinectmotion.MessageBodyIndexFrame, `{"width":512}`),
		rawMessage("Custom", `null`),
	}

	var buf bytes.Buffer
	rw := NewRecordingWriter(&buf)
	for _, msg := range want {
		if err := rw.Write(msg); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := rw.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n := strings.Count(buf.String(), "\n"); n != len(want) {
		t.Fatalf("recording has %d lines, want %d", n, len(want))
	}

	got, err := ReadRecording(&buf)
	if err != nil {
		t.Fatalf("ReadRecording: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("recording (-want +got):\n%s", diff)
	}
}

func TestReadRecording_Errors(t *testing.T) {
	for _, tt := range []struct {
		name string
		in   string
		want string
	}{
		{"not json", "{\"type\":\"A\",\"content\":1}\nnope\n", "line 2"},
		{"missing type", "\n{\"content\":{}}\n", "line 2: missing type"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadRecording(strings.NewReader(tt.in))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ReadRecording = %v, want error containing %q", err, tt.want)
			}
		})
	}

	rec, err := ReadRecording(strings.NewReader("\n\n"))
	if err != nil || len(rec) != 0 {
		t.Errorf("ReadRecording(blank) = %v, %v", rec, err)
	}
}

// collect runs src and returns the emitted types. It stops after limit
// messages.
func collect(t *testing.T, src Source, limit int) ([]string, error) {
	t.Helper()
	var types []string
	stop := errors.New("stop")
	err := src.Stream(context.Background(), func(msg kinectmotion.Message) error {
		types = append(types, msg.Type)
		if len(types) == limit {
			return stop
		}
		return nil
	})
	if errors.Is(err, stop) {
		err = nil
	}
	return types, err
}

func TestReplay(t *testing.T) {
	rec := Recording{rawMessage("A", `1`), rawMessage("B", `2`)}

	got, err := collect(t, &Replay{Recording: rec}, 100)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if diff := cmp.Diff([]string{"A", "B"}, got); diff != "" {
		t.Errorf("once (-want +got):\n%s", diff)
	}

	got, err = collect(t, &Replay{Recording: rec, Loop: true}, 5)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if diff := cmp.Diff([]string{"A", "B", "A", "B", "A"}, got); diff != "" {
		t.Errorf("loop (-want +got):\n%s", diff)
	}

	if _, err := collect(t, &Replay{}, 1); err == nil {
		t.Error("empty replay = nil error")
	}
}

func TestReplay_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &Replay{Recording: Recording{rawMessage("A", `1`)}, Interval: time.Hour, Loop: true}
	err := src.Stream(ctx, func(kinectmotion.Message) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Stream = %v, want context.Canceled", err)
	}

	srv := &Server{}
	if err := srv.Run(ctx, src); err != nil {
		t.Errorf("Run with canceled ctx = %v, want nil", err)
	}
}

func TestSynthetic_Frame(t *testing.T) {
	intp := func(n int) *int { return &n }
	for _, tt := range []struct {
		name    string
		gen     Synthetic
		bodies  int
		wantErr error
		tracked bool
	}{
		{"default", Synthetic{}, 1, nil, true},
		{"with untracked", Synthetic{Untracked: 2}, 3, nil, true},
		{"empty room", Synthetic{Tracked: intp(0), Untracked: 1}, 1, nil, false},
		{"two people", Synthetic{Tracked: intp(2)}, 2, kinectmotion.ErrMultipleTrackedBodies, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			frame := tt.gen.Frame(7)
			if len(frame.Bodies) != tt.bodies {
				t.Fatalf("bodies = %d, want %d", len(frame.Bodies), tt.bodies)
			}
			body, err := kinectmotion.SelectTracked(frame.Bodies)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SelectTracked error = %v, want %v", err, tt.wantErr)
			}
			if (body != nil) != tt.tracked {
				t.Fatalf("tracked body = %v, want %v", body != nil, tt.tracked)
			}
			if body == nil {
				return
			}
			for _, j := range kinectmotion.JointNames {
				if _, ok := body.Position(j); !ok {
					t.Errorf("joint %s has no position", j)
				}
				o, ok := body.Orientation(j)
				if !ok {
					t.Errorf("joint %s has no orientation", j)
				}
				if n := o.W*o.W + o.X*o.X + o.Y*o.Y + o.Z*o.Z; n < 0.999 || n > 1.001 {
					t.Errorf("joint %s orientation norm = %v", j, n)
				}
			}
		})
	}
}

func TestSynthetic_Stream(t *testing.T) {
	got, err := collect(t, &Synthetic{Interval: -1, Frames: 2, BodyIndex: true}, 100)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	want := []string{
		kinectmotion.MessageBodyFrame, kinectmotion.MessageBodyIndexFrame,
		kinectmotion.MessageBodyFrame, kinectmotion.MessageBodyIndexFrame,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("types (-want +got):\n%s", diff)
	}
}
