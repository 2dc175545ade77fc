package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/figtool/fig/pkg/repo"
)

func newMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <branch>",
		Short: "Merge another branch into the current one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			report, err := r.Merge(args[0])
			if err != nil {
				return err
			}
			return printMergeReport(cmd, report, args[0])
		},
	}
}

func printMergeReport(cmd *cobra.Command, report *repo.MergeReport, target string) error {
	out := cmd.OutOrStdout()
	switch {
	case report.HasConflicts():
		for _, c := range report.Conflicts {
			fmt.Fprintf(out, "CONFLICT: %s\n", c.Path)
		}
		fmt.Fprintln(out, "automatic merge failed; fix conflicts and commit the result")
		return fmt.Errorf("merge of '%s': %w", target, repo.ErrMergeConflict)
	case report.FastForward:
		fmt.Fprintln(out, "fast-forward")
	case report.MergeCommit != "":
		fmt.Fprintf(out, "merged '%s' (%s)\n", target, report.MergeCommit.Short())
	default:
		fmt.Fprintln(out, "already up to date")
	}
	return nil
}
