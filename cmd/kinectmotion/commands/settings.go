package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/kinectmotion/pkg/cli"
	"github.com/haivivi/kinectmotion/pkg/kinectmotion"
	"github.com/haivivi/kinectmotion/pkg/mocap"
	"github.com/haivivi/kinectmotion/pkg/scene"
	"github.com/haivivi/kinectmotion/pkg/take"
)

const defaultEndpoint = "ws://localhost:8521"

// streamFlags are the connection flags shared by capture and probe.
type streamFlags struct {
	endpoint string
	timeout  string
}

func (f *streamFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.endpoint, "endpoint", "", "stream URL (default "+defaultEndpoint+")")
	cmd.Flags().StringVar(&f.timeout, "timeout", "", "receive timeout, e.g. 2s (default: block)")
}

// apply overlays the flags that were set on the context.
func (f *streamFlags) apply(cmd *cobra.Command, ctx *cli.Context) {
	if cmd.Flags().Changed("endpoint") {
		ctx.Endpoint = f.endpoint
	}
	if cmd.Flags().Changed("timeout") {
		ctx.Timeout = f.timeout
	}
}

func endpointOf(ctx *cli.Context) (kinectmotion.Endpoint, error) {
	timeout, err := ctx.ReceiveTimeout()
	if err != nil {
		return kinectmotion.Endpoint{}, err
	}
	ep := kinectmotion.Endpoint{URL: ctx.Endpoint, Timeout: timeout}
	if ep.URL == "" {
		ep.URL = defaultEndpoint
	}
	return ep, ep.Validate()
}

// captureSetup is everything a capture session needs, resolved from the
// context, the rig file and the command-line flags, in increasing priority.
type captureSetup struct {
	Config    mocap.Config
	Rig       *scene.Rig
	RigFile   string
	TakeStore string
}

func resolveCapture(ctx *cli.Context) (*captureSetup, error) {
	endpoint, err := endpointOf(ctx)
	if err != nil {
		return nil, err
	}

	setup := &captureSetup{RigFile: ctx.Rig, TakeStore: ctx.TakeStore}
	if ctx.Rig != "" {
		var rig scene.Rig
		if err := cli.LoadFile(ctx.Rig, &rig); err != nil {
			return nil, fmt.Errorf("load rig %s: %w", ctx.Rig, err)
		}
		setup.Rig = &rig
	} else {
		setup.Rig = scene.DefaultRig()
	}

	kindName := setup.Rig.Kind
	if ctx.Kind != "" {
		kindName = ctx.Kind
	}
	kind, err := mocap.ParseTargetKind(kindName)
	if err != nil {
		return nil, err
	}

	armature := setup.Rig.Armature
	if ctx.Armature != "" {
		armature = ctx.Armature
	}

	var mapping mocap.Mapping
	if ctx.Rig != "" && len(ctx.Mapping) == 0 && len(setup.Rig.Mapping) > 0 {
		mapping, err = setup.Rig.JointMapping()
	} else {
		mapping, err = ctx.JointMapping()
	}
	if err != nil {
		return nil, err
	}

	if setup.TakeStore == "" {
		paths, err := getPaths()
		if err != nil {
			return nil, err
		}
		setup.TakeStore = paths.TakesDir()
	}

	setup.Config = mocap.Config{
		Endpoint:   endpoint,
		TickRate:   ctx.TickRate,
		AutoRecord: ctx.AutoRecord,
		Mapping:    mapping,
		Kind:       kind,
		Armature:   armature,
		StartFrame: ctx.StartFrame,
	}
	return setup, nil
}

// openTakeStore opens the Badger take store of the current context.
func openTakeStore() (*take.Store, error) {
	ctx, err := getContext()
	if err != nil {
		return nil, err
	}
	dir := ctx.TakeStore
	if dir == "" {
		paths, err := getPaths()
		if err != nil {
			return nil, err
		}
		dir = paths.TakesDir()
	}
	return take.OpenBadger(dir)
}
