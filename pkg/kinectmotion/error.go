package kinectmotion

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by this package wraps exactly one of
// them, so callers can classify failures with errors.Is.
var (
	// ErrConnection reports a socket or handshake failure. It also covers a
	// connection the server closed while a receive was pending.
	ErrConnection = errors.New("kinectmotion: connection error")

	// ErrTimeout reports that no message arrived within the receive timeout.
	ErrTimeout = errors.New("kinectmotion: receive timeout")

	// ErrProtocol reports a malformed or incomplete message, or a handshake
	// response that fails validation after header normalization.
	ErrProtocol = errors.New("kinectmotion: protocol error")

	// ErrMultipleTrackedBodies reports a frame with more than one tracked body.
	ErrMultipleTrackedBodies = errors.New("kinectmotion: multiple tracked bodies")

	// ErrNotConnected is returned by ReceiveOnce before EnsureConnected succeeded.
	// It is an ErrConnection.
	ErrNotConnected = fmt.Errorf("%w: not connected", ErrConnection)
)
