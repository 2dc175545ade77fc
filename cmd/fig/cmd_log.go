package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/figtool/fig/pkg/repo"
)

func newLogCmd() *cobra.Command {
	var oneline bool
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show commit history",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			headHash, err := r.ResolveRef("HEAD")
			if err != nil {
				return fmt.Errorf("cannot resolve HEAD: %w", err)
			}

			entries, err := r.Log(headHash, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, e := range entries {
				if oneline {
					fmt.Fprintf(out, "%s %s\n", e.Hash.Short(), firstLine(e.Commit.Message))
					continue
				}
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "commit %s\n", e.Hash)
				if len(e.Commit.Parents) == 2 {
					fmt.Fprintf(out, "merge: %s %s\n",
						e.Commit.Parents[0].Short(), e.Commit.Parents[1].Short())
				}
				fmt.Fprintf(out, "author: %s\n", e.Commit.Author)
				fmt.Fprintf(out, "date:   %s\n",
					time.Unix(e.Commit.Timestamp, 0).Format(time.RFC1123))
				fmt.Fprintf(out, "\n    %s\n", e.Commit.Message)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&oneline, "oneline", false, "one line per commit")
	cmd.Flags().IntVarP(&limit, "max-count", "n", 0, "limit number of commits (0 = all)")

	return cmd
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
