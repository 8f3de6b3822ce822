package kinectmotion

import (
	"errors"
	"testing"
)

func TestSelectTracked(t *testing.T) {
	tracked := Body{IsTracked: true, TrackingID: 7}
	idle := Body{}

	tests := []struct {
		name    string
		bodies  []Body
		wantID  uint64
		wantNil bool
		wantErr bool
	}{
		{name: "nil", bodies: nil, wantNil: true},
		{name: "none tracked", bodies: []Body{idle, idle, idle}, wantNil: true},
		{name: "first", bodies: []Body{tracked, idle, idle}, wantID: 7},
		{name: "middle", bodies: []Body{idle, tracked, idle}, wantID: 7},
		{name: "last", bodies: []Body{idle, idle, idle, idle, idle, tracked}, wantID: 7},
		{name: "two", bodies: []Body{tracked, idle, tracked}, wantNil: true, wantErr: true},
		{name: "all six", bodies: []Body{tracked, tracked, tracked, tracked, tracked, tracked}, wantNil: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectTracked(tt.bodies)
			if tt.wantErr {
				if !errors.Is(err, ErrMultipleTrackedBodies) {
					t.Errorf("SelectTracked() error = %v, want ErrMultipleTrackedBodies", err)
				}
			} else if err != nil {
				t.Fatalf("SelectTracked() error: %v", err)
			}
			if tt.wantNil {
				if got != nil {
					t.Errorf("SelectTracked() = %+v, want nil", got)
				}
				return
			}
			if got == nil || got.TrackingID != tt.wantID {
				t.Errorf("SelectTracked() = %+v, want tracking id %d", got, tt.wantID)
			}
		})
	}
}

func TestSelectTracked_PointsIntoSlice(t *testing.T) {
	bodies := []Body{{}, {IsTracked: true}}
	got, err := SelectTracked(bodies)
	if err != nil {
		t.Fatal(err)
	}
	if got != &bodies[1] {
		t.Error("SelectTracked() should return a pointer into the input slice")
	}
}

func TestBody_NilSafe(t *testing.T) {
	var b *Body
	if _, ok := b.Position(JointHead); ok {
		t.Error("nil body reported a position")
	}
	if _, ok := b.Orientation(JointHead); ok {
		t.Error("nil body reported an orientation")
	}
}

func TestJointName_Valid(t *testing.T) {
	for _, j := range JointNames {
		if !j.Valid() {
			t.Errorf("%q should be valid", j)
		}
	}
	if JointName("tail").Valid() {
		t.Error(`"tail" should not be valid`)
	}
}
