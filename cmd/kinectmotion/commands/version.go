package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/kinectmotion/cmd/kinectmotion/internal/build"
	"github.com/haivivi/kinectmotion/pkg/kinectmotion"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if outputJSON {
			return outputResult(build.Get())
		}
		fmt.Println(build.String())
		if verbose {
			info := build.Get()
			fmt.Printf("  go:       %s\n", info.Go)
			fmt.Printf("  protocol: %s\n", kinectmotion.Subprotocol)
			if cfg := getConfig(); cfg != nil {
				fmt.Printf("  config:   %s\n", cfg.Path())
			}
		}
		return nil
	},
}
