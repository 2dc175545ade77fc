package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/figtool/fig/pkg/repo"
)

func newStashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stash",
		Short: "Shelve and restore uncommitted changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Bare "fig stash" pushes, like the push subcommand.
			return runStashPush(cmd, "")
		},
	}

	var message string
	push := &cobra.Command{
		Use:   "push",
		Short: "Shelve current changes and reset to HEAD",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStashPush(cmd, message)
		},
	}
	push.Flags().StringVarP(&message, "message", "m", "", "stash description")
	cmd.AddCommand(push)

	cmd.AddCommand(&cobra.Command{
		Use:   "pop [index]",
		Short: "Reapply a stash entry and drop it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			i, err := stashIndexArg(args)
			if err != nil {
				return err
			}

			report, err := r.StashPop(i)
			if report != nil && report.HasConflicts() {
				out := cmd.OutOrStdout()
				for _, c := range report.Conflicts {
					fmt.Fprintf(out, "CONFLICT: %s\n", c.Path)
				}
				fmt.Fprintln(out, "stash entry kept; fix conflicts and stage the result")
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "applied and dropped stash entry")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stash entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			entries, err := r.ReadStash()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, e := range entries {
				fmt.Fprintf(out, "stash@{%d}: %s (%s)\n", i, e.Message,
					time.Unix(e.Timestamp, 0).Format(time.RFC822))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show [index]",
		Short: "Show the paths a stash entry touches",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			i, err := stashIndexArg(args)
			if err != nil {
				return err
			}
			entries, err := r.ReadStash()
			if err != nil {
				return err
			}
			if i < 0 || i >= len(entries) {
				return fmt.Errorf("no stash entry %d", i)
			}

			changed, err := r.StashChangedPaths(entries[i])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "stash@{%d}: %s\n", i, entries[i].Message)
			for _, p := range changed {
				fmt.Fprintf(out, "  %s\n", p)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "drop [index]",
		Short: "Discard a stash entry without applying it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			i, err := stashIndexArg(args)
			if err != nil {
				return err
			}
			entry, err := r.StashDrop(i)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped stash entry: %s\n", entry.Message)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Discard all stash entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			return r.StashClear()
		},
	})

	return cmd
}

func runStashPush(cmd *cobra.Command, message string) error {
	r, err := repo.Open(".")
	if err != nil {
		return err
	}
	entry, err := r.StashPush(message)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved working tree state: %s\n", entry.Message)
	return nil
}

func stashIndexArg(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	i, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid stash index %q", args[0])
	}
	return i, nil
}
