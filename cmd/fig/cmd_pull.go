package main

import (
	"github.com/spf13/cobra"

	"github.com/figtool/fig/pkg/repo"
	"github.com/figtool/fig/pkg/transfer"
)

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull [remote] [branch]",
		Short: "Fetch a remote branch and merge it",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local, err := repo.Open(".")
			if err != nil {
				return err
			}

			remoteName, branch, err := remoteAndBranch(local, args)
			if err != nil {
				return err
			}
			remote, err := openRemote(local, remoteName)
			if err != nil {
				return err
			}

			report, err := transfer.Pull(local, remote, remoteName, branch)
			if err != nil {
				return err
			}
			return printMergeReport(cmd, report, remoteName+"/"+branch)
		},
	}
}
