package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/haivivi/kinectmotion/pkg/cli"
	"github.com/haivivi/kinectmotion/pkg/kinectmotion"
	"github.com/haivivi/kinectmotion/pkg/motionserver"
)

var probeFlags struct {
	stream streamFlags
	count  int
	jq     string
	record string
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Inspect the motion stream",
	Long: `Connect to the motion stream and print a summary of each body frame.

With --jq the frame content is filtered through a jq expression and every
result is printed as one JSON line. With --record every received message
is saved as JSON lines that 'kinectmotion serve --replay' can play back.
A relative --record path goes to ~/.kinectmotion/kinectmotion/recordings.

Examples:
  kinectmotion probe -n 30
  kinectmotion probe -n 1 --jq '.bodies[] | select(.isTracked) | .joints.head'
  kinectmotion probe -n 900 --record session.jsonl`,
	RunE: runProbe,
}

func init() {
	probeFlags.stream.register(probeCmd)
	probeCmd.Flags().IntVarP(&probeFlags.count, "count", "n", 10, "number of body frames to receive (0: until interrupted)")
	probeCmd.Flags().StringVar(&probeFlags.jq, "jq", "", "jq expression applied to each frame's content")
	probeCmd.Flags().StringVar(&probeFlags.record, "record", "", "save received messages as JSON lines")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cctx, err := getContext()
	if err != nil {
		return err
	}
	local := *cctx
	probeFlags.stream.apply(cmd, &local)
	endpoint, err := endpointOf(&local)
	if err != nil {
		return err
	}

	filter, err := cli.ParseJQ(probeFlags.jq)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	var (
		last     kinectmotion.Message
		recorder *motionserver.RecordingWriter
		hookErr  error
	)
	if probeFlags.record != "" {
		path, err := recordingPath(probeFlags.record)
		if err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create recording: %w", err)
		}
		defer f.Close()
		recorder = motionserver.NewRecordingWriter(f)
		defer func() {
			if err := recorder.Flush(); err != nil {
				cli.PrintError("flush recording: %v", err)
			}
		}()
		slog.Info("recording messages", "path", path)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	client, err := kinectmotion.Dial(ctx, endpoint, kinectmotion.WithMessageHook(func(msg kinectmotion.Message) {
		last = msg
		if recorder != nil && hookErr == nil {
			hookErr = recorder.Write(msg)
		}
	}))
	if err != nil {
		return err
	}
	defer client.Close()

	for n := 0; probeFlags.count == 0 || n < probeFlags.count; {
		if err := client.ReceiveOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if hookErr != nil {
			return fmt.Errorf("write recording: %w", hookErr)
		}
		if last.Type != kinectmotion.MessageBodyFrame {
			continue
		}
		n++

		if filter != nil {
			results, err := filter.Apply(last.Content)
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Fprintln(out, string(r))
			}
			continue
		}
		fmt.Fprintln(out, summarizeFrame(n, client.Bodies()))
	}
	return nil
}

// recordingPath resolves a --record argument. Bare names go to the
// recordings directory.
func recordingPath(name string) (string, error) {
	if filepath.IsAbs(name) || filepath.Dir(name) != "." {
		return name, nil
	}
	paths, err := getPaths()
	if err != nil {
		return "", err
	}
	if _, err := cli.EnsureDir(paths.RecordingsDir()); err != nil {
		return "", err
	}
	return paths.RecordingPath(name), nil
}

// summarizeFrame describes one body frame on a line.
func summarizeFrame(n int, bodies []kinectmotion.Body) string {
	line := fmt.Sprintf("#%d: %d bodies", n, len(bodies))
	body, err := kinectmotion.SelectTracked(bodies)
	switch {
	case err != nil:
		return line + ", multiple tracked"
	case body == nil:
		return line + ", none tracked"
	}
	line += fmt.Sprintf(", tracking %d (%d joints)", body.TrackingID, len(body.Joints))
	if p, ok := body.Position(kinectmotion.JointHead); ok {
		line += " head " + cli.FormatVector(p.X, p.Y, p.Z)
	}
	return line
}
