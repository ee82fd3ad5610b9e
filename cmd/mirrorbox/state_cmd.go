package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/mirrorbox/internal/daemon"
	"github.com/openmined/mirrorbox/internal/state"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStateCmd())
}

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the persisted sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			cmd.SilenceUsage = true

			store, err := daemon.OpenStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			list, _ := cmd.Flags().GetBool("list")
			match, _ := cmd.Flags().GetString("match")
			if match != "" {
				if !doublestar.ValidatePattern(match) {
					return fmt.Errorf("invalid pattern %q", match)
				}
				list = true
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s (%s)\n", cyan("state"), cfg.StatePath, cfg.StateBackend)
			printPathState(out, "from_source", store.FromSource, list, match)
			printPathState(out, "from_target", store.FromTarget, list, match)
			return nil
		},
	}
	cmd.Flags().BoolP("list", "l", false, "List every tracked path")
	cmd.Flags().StringP("match", "m", "", "Only list paths matching this glob (e.g. '/data/**/*.py')")
	return cmd
}

func printPathState(out io.Writer, name string, ps *state.PathState, list bool, match string) {
	fmt.Fprintf(out, "%s %d\n", green(name), ps.Len())
	if !list {
		return
	}
	for _, path := range ps.Paths() {
		if match != "" {
			if ok, _ := doublestar.Match(match, filepath.ToSlash(path)); !ok {
				continue
			}
		}
		fmt.Fprintf(out, "  %s\n", path)
	}
}
