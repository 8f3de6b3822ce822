package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/kinectmotion/pkg/cli"
)

const appName = "kinectmotion"

var (
	// Global flags
	cfgFile     string
	contextName string
	outputFile  string
	outputJSON  bool
	verbose     bool

	// Global configuration
	globalConfig *cli.Config
)

var rootCmd = &cobra.Command{
	Use:   "kinectmotion",
	Short: "Kinect motion capture client",
	Long: `kinectmotion - capture skeleton motion from a Kinect motion stream.

The stream is a WebSocket feed of body frames (protocol KinectMotionV1).
Each tick the tracked body is mapped onto the objects or bones of a scene
and, while recording, keyed into a take.

Configuration is stored in ~/.kinectmotion/kinectmotion/ and supports
multiple contexts, similar to kubectl's context management.

Examples:
  # Point a context at a sensor bridge
  kinectmotion config context set studio endpoint=ws://10.0.0.5:8521 timeout=2s

  # Capture with auto-record into a named take
  kinectmotion -c studio capture --record --name warmup

  # Develop without a sensor
  kinectmotion serve --addr :8521 &
  kinectmotion probe -n 5 --jq '.bodies | length'
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.kinectmotion/kinectmotion/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context name to use")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "output file (default: stdout); a .json file gets JSON")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output as JSON (for piping)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(takeCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(jointsCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	setLogOutput(os.Stderr)

	var err error
	globalConfig, err = cli.LoadConfigWithPath(appName, cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}
}

// setLogOutput installs the default slog handler writing to w.
func setLogOutput(w io.Writer) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})))
}

// getConfig returns the global configuration
func getConfig() *cli.Config {
	return globalConfig
}

// getContext returns the context configuration to use. Without -c and a
// current context, the built-in defaults apply.
func getContext() (*cli.Context, error) {
	cfg := getConfig()
	if cfg == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return cfg.ResolveContext(contextName)
}

// getPaths returns the directory layout next to the config file.
func getPaths() (*cli.Paths, error) {
	return cli.NewPaths(appName)
}

// outputResult writes a command result to stdout or the -o file. The
// file extension picks JSON or YAML unless --json forces JSON.
func outputResult(result any) error {
	return cli.Output(result, cli.OutputOptions{
		Format: cli.FormatFor(outputFile, outputJSON),
		File:   outputFile,
	})
}
