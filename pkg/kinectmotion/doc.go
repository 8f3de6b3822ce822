// Package kinectmotion is a client for the Kinect Motion skeletal-tracking
// stream.
//
// The server pushes JSON messages over a WebSocket that speaks the
// KinectMotionV1 subprotocol. Each message is an envelope
//
//	{"type": "BodyFrameData", "content": {"bodies": [...]}}
//
// and the client keeps only the latest body frame; every accepted frame
// replaces the previous one wholesale.
//
// # Driving the client
//
// The client does no background reading. A caller-owned loop receives one
// message per tick:
//
//	client := kinectmotion.NewClient(kinectmotion.Endpoint{URL: kinectmotion.DefaultURL})
//	defer client.Close()
//
//	for {
//	    if err := client.EnsureConnected(ctx); err != nil {
//	        return err
//	    }
//	    if err := client.ReceiveOnce(ctx); err != nil {
//	        return err
//	    }
//	    body, err := kinectmotion.SelectTracked(client.Bodies())
//	    if err != nil {
//	        return err
//	    }
//	    if body != nil {
//	        pos, _ := body.Position(kinectmotion.JointHead)
//	        fmt.Println(pos)
//	    }
//	}
//
// # Handshake
//
// The sensor server answers the opening handshake with subprotocol and
// extension headers the websocket library would reject. The client
// normalizes the response head (see NormalizeHandshakeHeaders), validates
// it, and strips those header families before the library parses it.
//
// # Errors
//
// All errors wrap one of ErrConnection, ErrTimeout, ErrProtocol or
// ErrMultipleTrackedBodies. None of them is retried.
package kinectmotion
