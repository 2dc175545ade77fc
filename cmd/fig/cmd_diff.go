package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/figtool/fig/pkg/diff3"
	"github.com/figtool/fig/pkg/repo"
)

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff [path]...",
		Short: "Show unstaged changes against the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			entries, err := r.Status()
			if err != nil {
				return err
			}

			filter := make(map[string]bool, len(args))
			for _, a := range args {
				filter[filepath.ToSlash(filepath.Clean(a))] = true
			}

			idx, err := r.ReadIndex()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				if e.WorkStatus != repo.StatusModified {
					continue
				}
				if len(filter) > 0 && !filter[e.Path] {
					continue
				}

				ie := idx.Entries[e.Path]
				if ie == nil {
					continue
				}
				old, err := r.Store.GetBlob(ie.BlobHash)
				if err != nil {
					return fmt.Errorf("read staged blob for %q: %w", e.Path, err)
				}
				work, err := os.ReadFile(filepath.Join(r.RootDir, filepath.FromSlash(e.Path)))
				if err != nil {
					return fmt.Errorf("read %q: %w", e.Path, err)
				}

				fmt.Fprintf(out, "--- a/%s\n+++ b/%s\n", e.Path, e.Path)
				for _, edit := range diff3.Lines(old.Data, work) {
					switch edit.Kind {
					case diff3.Delete:
						fmt.Fprintf(out, "-%s\n", edit.Line)
					case diff3.Insert:
						fmt.Fprintf(out, "+%s\n", edit.Line)
					default:
						fmt.Fprintf(out, " %s\n", edit.Line)
					}
				}
			}
			return nil
		},
	}
}
