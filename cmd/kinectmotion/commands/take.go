package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/kinectmotion/pkg/cli"
	"github.com/haivivi/kinectmotion/pkg/take"
)

var takeCmd = &cobra.Command{
	Use:   "take",
	Short: "Manage recorded takes",
	Long: `List, inspect, export, import and delete recorded takes.

Takes are stored in the context's take_store directory
(default ~/.kinectmotion/kinectmotion/takes). A take can be referred to by
its full ID or a unique prefix of at least 4 characters.

Exports are JSON or YAML documents, written to a local directory or, with
--s3, to the bucket configured in the context (s3.bucket, s3.prefix, ...).`,
}

var takeListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List takes, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openTakeStore()
		if err != nil {
			return err
		}
		defer store.Close()

		takes, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if outputJSON || outputFile != "" {
			return outputResult(takes)
		}
		if len(takes) == 0 {
			fmt.Println("No takes recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tKIND\tFRAMES\tKEYFRAMES\tDURATION\tSTARTED")
		for _, t := range takes {
			kind := t.Kind.String()
			if t.Armature != "" {
				kind += ":" + t.Armature
			}
			frames := "-"
			if t.Keyframes > 0 {
				frames = cli.FormatFrames(t.FirstFrame, t.LastFrame)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				shortID(t.ID), t.Name, kind, frames, t.Keyframes,
				cli.FormatDuration(t.Duration()), t.StartedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var takeShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a take",
	Long: `Show the metadata of a take. With --tracks the keyframe tracks are
included, in the same document layout as an export.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openTakeStore()
		if err != nil {
			return err
		}
		defer store.Close()

		tracks, _ := cmd.Flags().GetBool("tracks")
		if tracks {
			doc, err := store.Document(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return outputResult(doc)
		}
		t, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return outputResult(t)
	},
}

var takeExportCmd = &cobra.Command{
	Use:   "export <id> [path]",
	Short: "Export a take as JSON or YAML",
	Long: `Export a take document. The format follows the path extension; without
a path the take is written as <id>.<format> into --dir
(default ~/.kinectmotion/kinectmotion/exports) or the S3 bucket.

Examples:
  kinectmotion take export 1a2b
  kinectmotion take export 1a2b warmup.json --dir ./out
  kinectmotion take export 1a2b --s3 --format json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openTakeStore()
		if err != nil {
			return err
		}
		defer store.Close()

		t, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		formatName, _ := cmd.Flags().GetString("format")
		format, err := take.ParseFormat(formatName)
		if err != nil {
			return err
		}
		path := t.ID + "." + string(format)
		if len(args) == 2 {
			path = args[1]
		}

		paths, err := getPaths()
		if err != nil {
			return err
		}
		fs, where, err := takeFileStore(cmd, path, paths.ExportsDir())
		if err != nil {
			return err
		}
		if err := store.Export(cmd.Context(), t.ID, fs, filepath.Base(path)); err != nil {
			return err
		}
		cli.PrintSuccess("Exported take %s to %s", shortID(t.ID), where)
		return nil
	},
}

var takeImportCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Import an exported take",
	Long: `Import a take document written by 'take export'. The take keeps its ID;
importing a take that already exists fails.

Examples:
  kinectmotion take import ./out/warmup.json
  kinectmotion take import 0b5e1f3c-....yaml --s3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openTakeStore()
		if err != nil {
			return err
		}
		defer store.Close()

		fs, where, err := takeFileStore(cmd, args[0], "")
		if err != nil {
			return err
		}
		ok, err := fs.Exists(cmd.Context(), filepath.Base(args[0]))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s: %w", where, os.ErrNotExist)
		}
		t, err := store.Import(cmd.Context(), fs, filepath.Base(args[0]))
		if err != nil {
			return err
		}
		cli.PrintSuccess("Imported take %s (%d keyframes)", t.ID, t.Keyframes)
		return nil
	},
}

var takeDeleteCmd = &cobra.Command{
	Use:     "delete <id>...",
	Aliases: []string{"rm"},
	Short:   "Delete takes",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openTakeStore()
		if err != nil {
			return err
		}
		defer store.Close()

		var errs []error
		for _, id := range args {
			t, err := store.Get(cmd.Context(), id)
			if err == nil {
				err = store.Delete(cmd.Context(), t.ID)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				continue
			}
			cli.PrintSuccess("Deleted take %s", t.ID)
		}
		return errors.Join(errs...)
	},
}

// takeFileStore returns the store holding path and a description of where
// path ends up. Local paths keep their directory unless --dir is given; a
// bare file name goes to defaultDir when it is set.
func takeFileStore(cmd *cobra.Command, path, defaultDir string) (take.FileStore, string, error) {
	useS3, _ := cmd.Flags().GetBool("s3")
	if useS3 {
		ctx, err := getContext()
		if err != nil {
			return nil, "", err
		}
		if ctx.S3 == nil || ctx.S3.Bucket == "" {
			return nil, "", errors.New("no S3 bucket configured; set s3.bucket on the context")
		}
		client := take.NewS3Client(*ctx.S3)
		where := "s3://" + ctx.S3.Bucket + "/"
		if ctx.S3.Prefix != "" {
			where += ctx.S3.Prefix + "/"
		}
		return take.NewS3Store(client, ctx.S3.Bucket, ctx.S3.Prefix), where + filepath.Base(path), nil
	}

	dir := filepath.Dir(path)
	if d, _ := cmd.Flags().GetString("dir"); d != "" {
		dir = d
	} else if dir == "." && defaultDir != "" {
		dir = defaultDir
	}
	fs, err := take.NewLocalStore(dir)
	if err != nil {
		return nil, "", err
	}
	return fs, filepath.Join(dir, filepath.Base(path)), nil
}

func init() {
	takeShowCmd.Flags().Bool("tracks", false, "include keyframe tracks")

	for _, c := range []*cobra.Command{takeExportCmd, takeImportCmd} {
		c.Flags().Bool("s3", false, "use the context's S3 bucket")
		c.Flags().String("dir", "", "local directory")
	}
	takeExportCmd.Flags().String("format", "yaml", "document format when no path is given: json or yaml")

	takeCmd.AddCommand(takeListCmd)
	takeCmd.AddCommand(takeShowCmd)
	takeCmd.AddCommand(takeExportCmd)
	takeCmd.AddCommand(takeImportCmd)
	takeCmd.AddCommand(takeDeleteCmd)
}
