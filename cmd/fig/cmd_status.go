package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/figtool/fig/pkg/repo"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the working tree status",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			entries, err := r.Status()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if branch, err := r.CurrentBranch(); err == nil && branch != "" {
				fmt.Fprintf(out, "on branch %s\n", branch)
			} else {
				fmt.Fprintln(out, "HEAD detached")
			}

			var staged, unstaged, untracked, conflicted []repo.StatusEntry
			for _, e := range entries {
				switch {
				case e.IndexStatus == repo.StatusConflict || e.WorkStatus == repo.StatusConflict:
					conflicted = append(conflicted, e)
				case e.IndexStatus == repo.StatusUntracked:
					untracked = append(untracked, e)
				default:
					if e.IndexStatus != repo.StatusUnmodified {
						staged = append(staged, e)
					}
					if e.WorkStatus != repo.StatusUnmodified {
						unstaged = append(unstaged, e)
					}
				}
			}

			if len(conflicted) > 0 {
				fmt.Fprintln(out, "\nunmerged paths:")
				for _, e := range conflicted {
					fmt.Fprintf(out, "  both modified: %s\n", e.Path)
				}
			}
			if len(staged) > 0 {
				fmt.Fprintln(out, "\nchanges to be committed:")
				for _, e := range staged {
					fmt.Fprintf(out, "  %s: %s\n", e.IndexStatus, e.Path)
				}
			}
			if len(unstaged) > 0 {
				fmt.Fprintln(out, "\nchanges not staged for commit:")
				for _, e := range unstaged {
					fmt.Fprintf(out, "  %s: %s\n", e.WorkStatus, e.Path)
				}
			}
			if len(untracked) > 0 {
				fmt.Fprintln(out, "\nuntracked files:")
				for _, e := range untracked {
					fmt.Fprintf(out, "  %s\n", e.Path)
				}
			}
			if len(conflicted)+len(staged)+len(unstaged)+len(untracked) == 0 {
				fmt.Fprintln(out, "nothing to commit, working tree clean")
			}
			return nil
		},
	}
}
