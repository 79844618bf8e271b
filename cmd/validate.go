// Package cmd holds the auxiliary CLI commands mounted under the main
// daemon binary.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cueplex/cueplex/internal/manifest"
	"github.com/cueplex/cueplex/internal/presets"
)

// CreateValidateCmd creates the validate-manifest command. It inspects
// manifest artifacts on disk without a running daemon.
func CreateValidateCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "validate-manifest <file>...",
		Short: "Validate HLS playlists and DASH manifests",
		Long: `Checks manifest artifacts for structural defects: required tags, ` +
			`well-formed XML and referenced segment files that exist on disk. ` +
			`Exits non-zero when any file has defects.`,
		Args: cobra.MinimumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			failed := false
			for _, path := range args {
				defects, err := manifest.ValidateFile(path)
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
					failed = true
					continue
				}
				if len(defects) == 0 {
					if !quiet {
						fmt.Printf("%s: ok\n", path)
					}
					continue
				}
				failed = true
				for _, d := range defects {
					fmt.Fprintf(os.Stderr, "%s: %s\n", path, d)
				}
			}
			if failed {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print defects")
	return cmd
}

// CreateValidatePresetsCmd creates the validate-presets command. Every
// preset in the file is run through stream config validation.
func CreateValidatePresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-presets <file>",
		Short: "Validate a stream presets file",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			loaded, err := presets.ReadFile(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
				os.Exit(1)
			}

			failed := false
			for name, preset := range loaded {
				if preset.Stream.Name != name {
					failed = true
					fmt.Fprintf(os.Stderr, "%s: preset key %q does not match stream name %q\n",
						args[0], name, preset.Stream.Name)
				}
				if validateErr := preset.Stream.Validate(); validateErr != nil {
					failed = true
					fmt.Fprintf(os.Stderr, "%s: preset %q: %v\n", args[0], name, validateErr)
				}
			}
			if failed {
				os.Exit(1)
			}
			fmt.Printf("%s: %d presets ok\n", args[0], len(loaded))
		},
	}
}
