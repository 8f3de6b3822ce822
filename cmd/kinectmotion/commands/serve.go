package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/kinectmotion/pkg/motionserver"
)

var serveFlags struct {
	addr      string
	path      string
	replay    string
	loop      bool
	rate      float64
	frames    int
	tracked   int
	untracked int
	bodyIndex bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a motion stream without a sensor",
	Long: `Serve the motion stream over WebSocket for development and tests.

By default a synthetic skeleton sways and turns in front of the sensor.
With --replay a recording made by 'kinectmotion probe --record' is played
back instead.

Examples:
  kinectmotion serve
  kinectmotion serve --tracked 2        # provoke the multiple-bodies error
  kinectmotion serve --replay session.jsonl --loop`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.addr, "addr", ":8521", "listen address")
	f.StringVar(&serveFlags.path, "path", "/", "HTTP path of the stream")
	f.StringVar(&serveFlags.replay, "replay", "", "JSON-lines recording to play back")
	f.BoolVar(&serveFlags.loop, "loop", false, "restart the recording when it ends")
	f.Float64Var(&serveFlags.rate, "rate", 30, "messages per second (0: as fast as possible)")
	f.IntVar(&serveFlags.frames, "frames", 0, "stop the synthetic stream after this many frames")
	f.IntVar(&serveFlags.tracked, "tracked", 1, "tracked bodies per synthetic frame")
	f.IntVar(&serveFlags.untracked, "untracked", 0, "untracked bodies per synthetic frame")
	f.BoolVar(&serveFlags.bodyIndex, "body-index", false, "interleave BodyIndexFrameData messages")
}

func serveSource() (motionserver.Source, error) {
	if serveFlags.rate < 0 {
		return nil, fmt.Errorf("rate must not be negative, got %v", serveFlags.rate)
	}
	var interval time.Duration
	if serveFlags.rate > 0 {
		interval = time.Duration(float64(time.Second) / serveFlags.rate)
	}

	if serveFlags.replay != "" {
		path, err := recordingPath(serveFlags.replay)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		rec, err := motionserver.ReadRecording(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		slog.Info("replaying recording", "path", path, "messages", len(rec))
		return &motionserver.Replay{Recording: rec, Interval: interval, Loop: serveFlags.loop}, nil
	}

	if interval == 0 {
		interval = -1
	}
	tracked := serveFlags.tracked
	return &motionserver.Synthetic{
		Interval:  interval,
		Frames:    serveFlags.frames,
		Tracked:   &tracked,
		Untracked: serveFlags.untracked,
		BodyIndex: serveFlags.bodyIndex,
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	src, err := serveSource()
	if err != nil {
		return err
	}

	ms := &motionserver.Server{
		OnConnect: func(id string, types []string) {
			slog.Info("client connected", "client", id, "types", types)
		},
		OnDisconnect: func(id string) {
			slog.Info("client disconnected", "client", id)
		},
	}
	mux := http.NewServeMux()
	mux.Handle(serveFlags.path, ms)
	srv := &http.Server{Addr: serveFlags.addr, Handler: mux}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("serving motion stream", "addr", serveFlags.addr, "path", serveFlags.path)

	runErr := make(chan error, 1)
	go func() {
		runErr <- ms.Run(ctx, src)
	}()

	select {
	case err = <-errCh:
	case err = <-runErr:
		if err == nil {
			slog.Info("source finished")
		}
	case <-ctx.Done():
	}

	ms.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	slog.Info("server stopped", "connections", ms.Connections())
	return err
}
