package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/figtool/fig/pkg/repo"
	"github.com/figtool/fig/pkg/transfer"
)

func newPushCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "push [remote] [branch]",
		Short: "Update a remote branch with local commits",
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

			tip, err := transfer.Push(local, remote, remoteName, branch, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pushed %s to %s (%s)\n", branch, remoteName, tip.Short())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "allow non-fast-forward updates")

	return cmd
}

// remoteAndBranch fills in the push/pull defaults: remote "origin", branch
// from the current HEAD.
func remoteAndBranch(r *repo.Repo, args []string) (string, string, error) {
	remoteName := "origin"
	if len(args) >= 1 {
		remoteName = args[0]
	}

	if len(args) == 2 {
		return remoteName, args[1], nil
	}
	branch, err := r.CurrentBranch()
	if err != nil {
		return "", "", err
	}
	if branch == "" {
		return "", "", fmt.Errorf("HEAD is detached; specify a branch")
	}
	return remoteName, branch, nil
}

func openRemote(r *repo.Repo, name string) (*repo.Repo, error) {
	path, err := r.RemotePath(name)
	if err != nil {
		return nil, err
	}
	remote, err := repo.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open remote %q at %s: %w", name, path, err)
	}
	return remote, nil
}
