// Package mocap maps a tracked Kinect body onto host scene targets.
//
// A Mapper writes joint positions (and, for bone targets, orientations) onto
// the targets named by a Mapping, optionally inserting keyframes. A
// Controller owns a capture session and drives the receive, select and apply
// pipeline once per tick:
//
//	ctrl := mocap.NewController(mocap.Config{
//	    Endpoint:   kinectmotion.Endpoint{URL: kinectmotion.DefaultURL},
//	    Kind:       mocap.TargetBone,
//	    Armature:   "Armature",
//	    Mapping:    mocap.IdentityMapping(),
//	    AutoRecord: true,
//	}, host)
//	if err := ctrl.Run(ctx); err != nil {
//	    return err
//	}
//
// Any tick error ends the session. The ticker, the connection and the host
// mode are released once, and the error is returned after cleanup. There is
// no reconnect; a new session starts with Activate.
package mocap
