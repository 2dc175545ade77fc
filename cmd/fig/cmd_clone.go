package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/figtool/fig/pkg/transfer"
)

func newCloneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clone <source> [dest]",
		Short: "Copy a repository from another path",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]
			dest := filepath.Base(filepath.Clean(src))
			if len(args) == 2 {
				dest = args[1]
			}

			r, err := transfer.Clone(src, dest)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cloned into %s\n", r.RootDir)
			return nil
		},
	}
}
