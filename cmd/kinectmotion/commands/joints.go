package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/kinectmotion/pkg/kinectmotion"
)

var jointsCmd = &cobra.Command{
	Use:   "joints",
	Short: "List the tracked joints and where they map",
	Long: `List the 25 tracked joints in table order with the target each one
drives under the current context and rig. Joints mapped to nothing are
shown as "-".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cctx, err := getContext()
		if err != nil {
			return err
		}
		setup, err := resolveCapture(cctx)
		if err != nil {
			return err
		}
		m := setup.Config.Mapping

		type row struct {
			Joint  kinectmotion.JointName `json:"joint" yaml:"joint"`
			Target string                 `json:"target,omitempty" yaml:"target,omitempty"`
		}
		rows := make([]row, 0, len(kinectmotion.JointNames))
		for _, j := range kinectmotion.JointNames {
			rows = append(rows, row{Joint: j, Target: m[j]})
		}
		if outputJSON || outputFile != "" {
			return outputResult(rows)
		}

		kind := setup.Config.Kind.String()
		if setup.Config.Armature != "" {
			kind += " " + setup.Config.Armature
		}
		fmt.Printf("Targets: %s (%d of %d joints mapped)\n\n", kind, m.Len(), len(rows))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tJOINT\tTARGET")
		for i, r := range rows {
			target := r.Target
			if target == "" {
				target = "-"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\n", i, r.Joint, target)
		}
		return w.Flush()
	},
}
