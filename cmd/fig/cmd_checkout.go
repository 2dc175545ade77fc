package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/figtool/fig/pkg/repo"
)

func newCheckoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkout <branch-or-commit>",
		Short: "Switch branches or restore a commit's tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			if err := r.Checkout(args[0]); err != nil {
				return err
			}

			if branch, err := r.CurrentBranch(); err == nil && branch != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "switched to branch '%s'\n", branch)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "HEAD is now detached at %s\n", args[0])
			}
			return nil
		},
	}
}
