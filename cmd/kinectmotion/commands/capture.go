package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/haivivi/kinectmotion/pkg/cli"
	"github.com/haivivi/kinectmotion/pkg/mocap"
	"github.com/haivivi/kinectmotion/pkg/scene"
	"github.com/haivivi/kinectmotion/pkg/take"
)

var captureFlags struct {
	stream     streamFlags
	tickRate   float64
	record     bool
	kind       string
	armature   string
	startFrame int
	rig        string
	takeStore  string
	name       string
	noSave     bool
	frames     int
	dashboard  bool
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Stream motion onto a scene and record takes",
	Long: `Connect to the motion stream and map the tracked body onto a scene.

Without --rig every joint drives a bone of the same name in an armature
called "Kinect" (or an object of the same name with --kind object).
With --record, keyframes are inserted from the first tracked frame until
the body is lost and saved as a take.

Examples:
  kinectmotion capture --record --name warmup
  kinectmotion capture --rig rig.yaml --kind bone --armature Armature --dashboard
  kinectmotion capture --endpoint ws://10.0.0.5:8521 --frames 300 --record`,
	RunE: runCapture,
}

func init() {
	f := captureCmd.Flags()
	captureFlags.stream.register(captureCmd)
	f.Float64Var(&captureFlags.tickRate, "tick-rate", 0, "ticks per second (default 30)")
	f.BoolVar(&captureFlags.record, "record", false, "insert keyframes while a body is tracked")
	f.StringVar(&captureFlags.kind, "kind", "", "target kind: object or bone")
	f.StringVar(&captureFlags.armature, "armature", "", "armature driven in bone mode")
	f.IntVar(&captureFlags.startFrame, "start-frame", 0, "frame of the first tracked tick")
	f.StringVar(&captureFlags.rig, "rig", "", "rig file (YAML or JSON)")
	f.StringVar(&captureFlags.takeStore, "take-store", "", "take database directory")
	f.StringVar(&captureFlags.name, "name", "", "take name")
	f.BoolVar(&captureFlags.noSave, "no-save", false, "do not save the recording as a take")
	f.IntVar(&captureFlags.frames, "frames", 0, "stop after this many ticks (0: until interrupted)")
	f.BoolVar(&captureFlags.dashboard, "dashboard", false, "full-screen dashboard instead of a status line")
}

func applyCaptureFlags(cmd *cobra.Command, ctx *cli.Context) {
	captureFlags.stream.apply(cmd, ctx)
	changed := cmd.Flags().Changed
	if changed("tick-rate") {
		ctx.TickRate = captureFlags.tickRate
	}
	if changed("record") {
		ctx.AutoRecord = captureFlags.record
	}
	if changed("kind") {
		ctx.Kind = captureFlags.kind
	}
	if changed("armature") {
		ctx.Armature = captureFlags.armature
	}
	if changed("start-frame") {
		ctx.StartFrame = captureFlags.startFrame
	}
	if changed("rig") {
		ctx.Rig = captureFlags.rig
	}
	if changed("take-store") {
		ctx.TakeStore = captureFlags.takeStore
	}
}

func runCapture(cmd *cobra.Command, args []string) error {
	cctx, err := getContext()
	if err != nil {
		return err
	}
	// Flags must not leak into the saved config.
	local := *cctx
	applyCaptureFlags(cmd, &local)

	setup, err := resolveCapture(&local)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var rec *take.Recorder
	opts := []scene.Option{scene.WithKeyframeHook(func(ev scene.KeyframeEvent) {
		if rec != nil {
			rec.OnKeyframe(ev)
		}
	})}
	if setup.RigFile == "" {
		opts = append(opts, scene.WithAutoCreate())
	}
	sc := scene.New(opts...)
	if err := sc.LoadRig(setup.Rig); err != nil {
		return err
	}

	if setup.Config.AutoRecord && !captureFlags.noSave {
		store, err := take.OpenBadger(setup.TakeStore)
		if err != nil {
			return err
		}
		defer store.Close()
		rec, err = take.NewRecorder(ctx, store, &take.Take{
			Name:     captureFlags.name,
			Endpoint: setup.Config.Endpoint.URL,
			Kind:     setup.Config.Kind,
			Armature: setup.Config.Armature,
		})
		if err != nil {
			return err
		}
		defer finishTake(store, rec)
	}

	view := newCaptureView(sc, setup, rec)
	if captureFlags.dashboard {
		setLogOutput(view.logs)
		defer setLogOutput(os.Stderr)
	}

	var ctrl *mocap.Controller
	ctrl = mocap.NewController(setup.Config, sc,
		mocap.WithReporter(mocap.SlogReporter(slog.Default())),
		mocap.WithTickHook(func(info mocap.TickInfo) {
			if rec != nil {
				if err := rec.Flush(ctx); err != nil {
					slog.Warn("flush keyframes failed", "error", err)
				}
			}
			view.update(info)
			if captureFlags.frames > 0 && view.ticks() >= captureFlags.frames {
				ctrl.Stop()
			}
		}),
	)

	slog.Info("capture started",
		"endpoint", setup.Config.Endpoint.URL,
		"kind", setup.Config.Kind,
		"armature", setup.Config.Armature,
		"record", setup.Config.AutoRecord)

	err = ctrl.Run(ctx)
	view.done()
	return err
}

// finishTake closes the recorder. A take with no keyframes is removed.
func finishTake(store *take.Store, rec *take.Recorder) {
	ctx := context.Background()
	if err := rec.Close(ctx); err != nil {
		cli.PrintError("save take: %v", err)
		return
	}
	t := rec.Take()
	if t.Keyframes == 0 {
		if err := store.Delete(ctx, t.ID); err != nil {
			slog.Warn("delete empty take failed", "take", t.ID, "error", err)
		}
		cli.PrintInfo("No body was recorded, take discarded")
		return
	}
	cli.PrintSuccess("Saved take %s (%d keyframes, frames %s)",
		t.ID, t.Keyframes, cli.FormatFrames(t.FirstFrame, t.LastFrame))
}

// captureView renders capture progress to stderr, either as a single
// status line or as a dashboard frame.
type captureView struct {
	sc     *scene.Scene
	setup  *captureSetup
	rec    *take.Recorder
	styles cli.Styles
	logs   *cli.LogWriter

	mu     sync.Mutex
	count  int
	last   mocap.TickInfo
	status cli.Status
}

func newCaptureView(sc *scene.Scene, setup *captureSetup, rec *take.Recorder) *captureView {
	return &captureView{
		sc:     sc,
		setup:  setup,
		rec:    rec,
		styles: cli.NewStyles(cli.DefaultTheme),
		logs:   cli.NewLogWriter(200),
	}
}

func (v *captureView) ticks() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.count
}

func (v *captureView) update(info mocap.TickInfo) {
	v.mu.Lock()
	v.count++
	v.last = info
	v.status = cli.Status{
		State:     mocap.StateStreaming.String(),
		Frame:     info.Frame,
		Tracked:   info.Tracked,
		Recording: info.Recording,
		Applied:   len(info.Result.Applied),
		Missing:   len(info.Result.Missing),
	}
	if v.rec != nil {
		t := v.rec.Take()
		v.status.Takes = fmt.Sprintf("take %s: %d keys", shortID(t.ID), t.Keyframes)
	}
	st := v.status
	v.mu.Unlock()

	if captureFlags.dashboard {
		v.renderDashboard(st)
		return
	}
	fmt.Fprintf(os.Stderr, "\r\x1b[K%s", st.Render(v.styles))
}

func (v *captureView) done() {
	if !captureFlags.dashboard {
		fmt.Fprintln(os.Stderr)
	}
}

func (v *captureView) renderDashboard(st cli.Status) {
	width, height, err := term.GetSize(os.Stderr.Fd())
	if err != nil || width <= 0 || height <= 0 {
		width, height = 100, 30
	}
	f := cli.Frame{
		Styles: v.styles,
		Title:  "kinectmotion capture",
		Status: st.Render(v.styles),
		Sections: []cli.Section{
			{Label: "Joints", Content: v.jointLines},
			{Label: "Log", Content: v.logs.Lines},
		},
		Help: "ctrl-c to stop",
	}
	fmt.Fprint(os.Stderr, "\x1b[H\x1b[2J"+f.Render(width, height))
}

// jointLines lists the current location of every applied joint's target.
func (v *captureView) jointLines() []string {
	v.mu.Lock()
	applied := v.last.Result.Applied
	v.mu.Unlock()

	cfg := v.setup.Config
	lines := make([]string, 0, len(applied))
	for _, j := range applied {
		var node *scene.Node
		if cfg.Kind == mocap.TargetBone {
			if a := v.sc.Armature(cfg.Armature); a != nil {
				node = a.Bone(cfg.Mapping[j])
			}
		} else {
			node = v.sc.Object(cfg.Mapping[j])
		}
		if node == nil {
			continue
		}
		loc := node.Location()
		lines = append(lines, fmt.Sprintf("%-14s %s", j, cli.FormatVector(loc.X, loc.Y, loc.Z)))
	}
	return lines
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
