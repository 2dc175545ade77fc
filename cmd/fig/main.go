package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/figtool/fig/pkg/repo"
)

func main() {
	root := &cobra.Command{
		Use:           "fig",
		Short:         "Content-addressed local version control",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newCloneCmd())
	root.AddCommand(newAddCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newCommitCmd())
	root.AddCommand(newLogCmd())
	root.AddCommand(newDiffCmd())
	root.AddCommand(newBranchCmd())
	root.AddCommand(newCheckoutCmd())
	root.AddCommand(newMergeCmd())
	root.AddCommand(newRemoteCmd())
	root.AddCommand(newPushCmd())
	root.AddCommand(newPullCmd())
	root.AddCommand(newStashCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		// Unresolved conflicts are an expected stopping point, not a
		// structural failure.
		if errors.Is(err, repo.ErrMergeConflict) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "fig 0.1.0-dev")
		},
	}
}
