package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/figtool/fig/pkg/object"
)

// Checkout switches the working tree and index to the target, which may be
// a branch name (HEAD becomes attached) or a raw commit hash (detached).
// Refuses with ErrUncommittedChanges rather than discarding work.
func (r *Repo) Checkout(target string) error {
	if err := r.ensureClean(); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	isBranch := false
	var targetHash object.Hash
	if h, err := r.ResolveRef("refs/heads/" + target); err == nil {
		targetHash = h
		isBranch = true
	} else {
		targetHash = object.Hash(target)
	}

	commit, err := r.Store.GetCommit(targetHash)
	if err != nil {
		return fmt.Errorf("checkout %q: %w", target, err)
	}

	if err := r.restoreTree(commit.TreeHash); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	if isBranch {
		return r.setHead("refs/heads/"+target, true)
	}
	return r.setHead(string(targetHash), false)
}

// restoreTree resets the working tree and index to exactly the given tree:
// tracked files not in the tree are removed, tree files are written out,
// and the index is rewritten to match. An untracked working file occupying
// a target path aborts the restore with ErrUncommittedChanges before
// anything is touched, unless its content already equals the target blob.
func (r *Repo) restoreTree(treeHash object.Hash) error {
	targetFiles, err := r.FlattenTree(treeHash)
	if err != nil {
		return fmt.Errorf("flatten target tree: %w", err)
	}
	targetMap := make(map[string]TreeFileEntry, len(targetFiles))
	for _, f := range targetFiles {
		targetMap[f.Path] = f
	}

	tracked, err := r.trackedFiles()
	if err != nil {
		return err
	}

	for _, f := range targetFiles {
		if tracked[f.Path] {
			continue
		}
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(f.Path))
		data, err := os.ReadFile(absPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("read %q: %w", f.Path, err)
		}
		if object.HashContent(object.TypeBlob, data) != f.BlobHash {
			return fmt.Errorf("untracked file would be overwritten: %w (path %q)",
				ErrUncommittedChanges, f.Path)
		}
	}

	// Remove currently tracked files that are absent from the target.
	for path := range tracked {
		if _, keep := targetMap[path]; keep {
			continue
		}
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %q: %w", path, err)
		}
		r.removeEmptyParents(filepath.Dir(absPath))
	}

	// Write target files and rebuild the index.
	idx := &Index{Version: indexFormatVersion, Entries: make(map[string]*IndexEntry, len(targetFiles))}
	for _, f := range targetFiles {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return fmt.Errorf("mkdir for %q: %w", f.Path, err)
		}
		blob, err := r.Store.GetBlob(f.BlobHash)
		if err != nil {
			return fmt.Errorf("read blob for %q: %w", f.Path, err)
		}
		if err := os.WriteFile(absPath, blob.Data, filePermFromMode(f.Mode)); err != nil {
			return fmt.Errorf("write %q: %w", f.Path, err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return fmt.Errorf("stat %q: %w", f.Path, err)
		}
		idx.Entries[f.Path] = &IndexEntry{
			Path:        f.Path,
			BlobHash:    f.BlobHash,
			Mode:        f.Mode,
			Size:        info.Size(),
			ModTime:     info.ModTime().UnixNano(),
			Fingerprint: xxh3.Hash(blob.Data),
		}
	}
	return r.WriteIndex(idx)
}

// trackedFiles merges paths from the HEAD tree and the index.
func (r *Repo) trackedFiles() (map[string]bool, error) {
	files := make(map[string]bool)

	headHash, err := r.ResolveRef("HEAD")
	if err == nil {
		headEntries, err := r.treeFileMap(headHash)
		if err != nil {
			return nil, err
		}
		for path := range headEntries {
			files[path] = true
		}
	}

	idx, err := r.ReadIndex()
	if err != nil {
		return nil, err
	}
	for path := range idx.Entries {
		files[path] = true
	}
	return files, nil
}

// removeEmptyParents removes empty directories up to (but not including)
// the repository root.
func (r *Repo) removeEmptyParents(dir string) {
	for {
		if dir == r.RootDir || !strings.HasPrefix(dir, r.RootDir) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		os.Remove(dir)
		dir = filepath.Dir(dir)
	}
}
