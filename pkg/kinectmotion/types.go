package kinectmotion

import (
	"encoding/json"
)

// Subprotocol is the WebSocket subprotocol requested during the opening handshake.
const Subprotocol = "KinectMotionV1"

// DefaultURL is the default stream endpoint.
const DefaultURL = "ws://localhost:8521"

// Message types pushed by the server.
const (
	// MessageBodyFrame carries a BodyFrame snapshot. It is the only type
	// the client consumes.
	MessageBodyFrame = "BodyFrameData"

	// MessageBodyIndexFrame carries raw body-index pixels. Clients discard it.
	MessageBodyIndexFrame = "BodyIndexFrameData"
)

// JointName identifies one of the 25 tracked anatomical landmarks.
type JointName string

const (
	JointSpineBase     JointName = "spineBase"
	JointSpineMid      JointName = "spineMid"
	JointNeck          JointName = "neck"
	JointHead          JointName = "head"
	JointShoulderLeft  JointName = "shoulderLeft"
	JointElbowLeft     JointName = "elbowLeft"
	JointWristLeft     JointName = "wristLeft"
	JointHandLeft      JointName = "handLeft"
	JointShoulderRight JointName = "shoulderRight"
	JointElbowRight    JointName = "elbowRight"
	JointWristRight    JointName = "wristRight"
	JointHandRight     JointName = "handRight"
	JointHipLeft       JointName = "hipLeft"
	JointKneeLeft      JointName = "kneeLeft"
	JointAnkleLeft     JointName = "ankleLeft"
	JointFootLeft      JointName = "footLeft"
	JointHipRight      JointName = "hipRight"
	JointKneeRight     JointName = "kneeRight"
	JointAnkleRight    JointName = "ankleRight"
	JointFootRight     JointName = "footRight"
	JointSpineShoulder JointName = "spineShoulder"
	JointHandTipLeft   JointName = "handTipLeft"
	JointThumbLeft     JointName = "thumbLeft"
	JointHandTipRight  JointName = "handTipRight"
	JointThumbRight    JointName = "thumbRight"
)

// JointNames lists every joint in sensor enumeration order. Callers that
// walk a skeleton should iterate this table rather than a Body's maps so
// that the visiting order is stable.
var JointNames = [25]JointName{
	JointSpineBase,
	JointSpineMid,
	JointNeck,
	JointHead,
	JointShoulderLeft,
	JointElbowLeft,
	JointWristLeft,
	JointHandLeft,
	JointShoulderRight,
	JointElbowRight,
	JointWristRight,
	JointHandRight,
	JointHipLeft,
	JointKneeLeft,
	JointAnkleLeft,
	JointFootLeft,
	JointHipRight,
	JointKneeRight,
	JointAnkleRight,
	JointFootRight,
	JointSpineShoulder,
	JointHandTipLeft,
	JointThumbLeft,
	JointHandTipRight,
	JointThumbRight,
}

// Valid reports whether j is one of the 25 known joints.
func (j JointName) Valid() bool {
	for _, n := range JointNames {
		if n == j {
			return true
		}
	}
	return false
}

// Position is a camera-space point in meters.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Orientation is a unit quaternion.
type Orientation struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// IdentityOrientation is the quaternion with no rotation.
var IdentityOrientation = Orientation{W: 1}

// Joint is a single joint position as reported by the sensor.
type Joint struct {
	Position      Position `json:"position"`
	TrackingState string   `json:"trackingState,omitempty"`
}

// JointOrientation is a single joint orientation as reported by the sensor.
type JointOrientation struct {
	Orientation Orientation `json:"orientation"`
}

// Lean is the body lean, both axes in [-1, 1].
type Lean struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Body is one detected skeleton in a BodyFrame.
type Body struct {
	IsTracked         bool                           `json:"isTracked"`
	TrackingID        uint64                         `json:"trackingId,omitempty"`
	IsRestricted      bool                           `json:"isRestricted,omitempty"`
	Lean              *Lean                          `json:"lean,omitempty"`
	HandLeftState     string                         `json:"handLeftState,omitempty"`
	HandRightState    string                         `json:"handRightState,omitempty"`
	Joints            map[JointName]Joint            `json:"joints,omitempty"`
	JointOrientations map[JointName]JointOrientation `json:"jointOrientations,omitempty"`
}

// Position returns the position of joint j and whether it was present.
func (b *Body) Position(j JointName) (Position, bool) {
	if b == nil {
		return Position{}, false
	}
	joint, ok := b.Joints[j]
	return joint.Position, ok
}

// Orientation returns the orientation of joint j and whether it was present.
func (b *Body) Orientation(j JointName) (Orientation, bool) {
	if b == nil {
		return Orientation{}, false
	}
	jo, ok := b.JointOrientations[j]
	return jo.Orientation, ok
}

// BodyFrame is one complete snapshot of all detected bodies.
type BodyFrame struct {
	Bodies []Body `json:"bodies"`
}

// Message is the envelope of every server push.
type Message struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// ClientReady is the control message a client sends right after connecting
// to declare which message types it wants.
type ClientReady struct {
	Types []string `json:"types"`
}
