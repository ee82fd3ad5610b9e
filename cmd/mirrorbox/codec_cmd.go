package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/openmined/mirrorbox/internal/daemon"
	"github.com/openmined/mirrorbox/internal/transform"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newCodecCmd("encode", transform.Forward))
	rootCmd.AddCommand(newCodecCmd("decode", transform.Backward))
}

// newCodecCmd runs the mirror transform on a single file, e.g. to recover a
// file from the mirror without running the daemon.
func newCodecCmd(use string, direction transform.Direction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " FROM TO",
		Short: fmt.Sprintf("Run the %s transform on a single file", direction),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			cmd.SilenceUsage = true

			codec, err := daemon.LoadTransformer(cfg)
			if err != nil {
				return err
			}

			from, to := args[0], args[1]
			n, err := transform.CopyFile(afero.NewOsFs(), from, to, codec.Func(direction))
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s (%s)\n", green(use+"d"), from, to, humanize.Bytes(uint64(n)))
			return err
		},
	}
}
