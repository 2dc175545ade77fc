package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/figtool/fig/pkg/repo"
)

func newRemoteCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage sync targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			names, err := r.RemoteNames()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range names {
				if verbose {
					path, err := r.RemotePath(name)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s\t%s\n", name, path)
				} else {
					fmt.Fprintln(out, name)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show paths")

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <path>",
		Short: "Add a remote",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			if _, err := r.RemotePath(args[0]); err == nil {
				return fmt.Errorf("remote %q already exists", args[0])
			}
			return r.SetRemote(args[0], args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-url <name> <path>",
		Short: "Change a remote's path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			if _, err := r.RemotePath(args[0]); err != nil {
				return err
			}
			return r.SetRemote(args[0], args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a remote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			return r.RemoveRemote(args[0])
		},
	})

	return cmd
}
