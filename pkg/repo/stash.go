package repo

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/figtool/fig/pkg/diff3"
	"github.com/figtool/fig/pkg/object"
)

// stashFormatVersion is bumped whenever the serialized stash shape changes.
const stashFormatVersion = 1

// StashEntry records one shelved snapshot. Commit is a regular commit
// object reachable only from here; Base is the HEAD it was taken on, used
// as the merge ancestor when the entry is reapplied.
type StashEntry struct {
	Commit    object.Hash `json:"commit"`
	Base      object.Hash `json:"base"`
	Message   string      `json:"message"`
	Timestamp int64       `json:"timestamp"`
}

type stashFile struct {
	Version int          `json:"version"`
	Entries []StashEntry `json:"entries"` // newest first
}

func (r *Repo) stashPath() string {
	return filepath.Join(r.FigDir, "stash")
}

// ReadStash returns the stash entries, newest first. A missing file yields
// an empty list.
func (r *Repo) ReadStash() ([]StashEntry, error) {
	data, err := os.ReadFile(r.stashPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read stash: %w", err)
	}

	var sf stashFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("read stash: unmarshal: %w", err)
	}
	if sf.Version > stashFormatVersion {
		return nil, fmt.Errorf("read stash: unsupported format version %d (supported up to %d)",
			sf.Version, stashFormatVersion)
	}
	return sf.Entries, nil
}

func (r *Repo) writeStash(entries []StashEntry) error {
	if len(entries) == 0 {
		if err := os.Remove(r.stashPath()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("write stash: %w", err)
		}
		return nil
	}
	data, err := json.MarshalIndent(&stashFile{Version: stashFormatVersion, Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("write stash: marshal: %w", err)
	}
	return atomicWriteFile(r.FigDir, r.stashPath(), data)
}

// StashPush shelves the current staged and unstaged changes as a snapshot
// commit parented on HEAD, records it in the stash, and resets the working
// tree and index back to HEAD. Untracked files are left in place. The
// snapshot holds one version per path: when the staged content and the
// working-tree content differ, the working-tree version wins and the
// staged version is not retained.
func (r *Repo) StashPush(message string) (*StashEntry, error) {
	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		return nil, fmt.Errorf("stash: no commits yet: %w", err)
	}

	if err := r.ensureClean(); err == nil {
		return nil, fmt.Errorf("stash: no local changes to save")
	} else if !errors.Is(err, ErrUncommittedChanges) {
		return nil, fmt.Errorf("stash: %w", err)
	}

	idx, err := r.ReadIndex()
	if err != nil {
		return nil, fmt.Errorf("stash: %w", err)
	}
	if idx.hasConflicts() {
		return nil, fmt.Errorf("stash: unresolved conflicts in index")
	}

	// Snapshot: the index, with every tracked path refreshed from the
	// working tree. Paths deleted from the working tree drop out.
	snapshot := &Index{Version: indexFormatVersion, Entries: make(map[string]*IndexEntry)}
	for path := range idx.Entries {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		if _, err := os.Stat(absPath); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("stash: stat %q: %w", path, err)
		}
		if err := r.stageFile(snapshot, path); err != nil {
			return nil, fmt.Errorf("stash: %w", err)
		}
	}

	treeHash, err := r.BuildTree(snapshot)
	if err != nil {
		return nil, fmt.Errorf("stash: %w", err)
	}

	if message == "" {
		if branch, err := r.CurrentBranch(); err == nil && branch != "" {
			message = fmt.Sprintf("WIP on %s", branch)
		} else {
			message = "WIP"
		}
	}

	commitHash, err := r.Store.PutCommit(&object.Commit{
		TreeHash:  treeHash,
		Parents:   []object.Hash{headHash},
		Author:    r.DefaultAuthor(),
		Timestamp: time.Now().Unix(),
		Message:   message,
	})
	if err != nil {
		return nil, fmt.Errorf("stash: write snapshot commit: %w", err)
	}

	entry := StashEntry{
		Commit:    commitHash,
		Base:      headHash,
		Message:   message,
		Timestamp: time.Now().Unix(),
	}
	entries, err := r.ReadStash()
	if err != nil {
		return nil, fmt.Errorf("stash: %w", err)
	}
	if err := r.writeStash(append([]StashEntry{entry}, entries...)); err != nil {
		return nil, fmt.Errorf("stash: %w", err)
	}

	// Reset back to HEAD.
	headCommit, err := r.Store.GetCommit(headHash)
	if err != nil {
		return nil, fmt.Errorf("stash: %w", err)
	}
	if err := r.restoreTree(headCommit.TreeHash); err != nil {
		return nil, fmt.Errorf("stash: %w", err)
	}
	return &entry, nil
}

// StashPop reapplies stash entry i onto the current HEAD as a three-way
// merge (ancestor: the entry's base, ours: HEAD, theirs: the snapshot) and
// drops the entry on clean application. On conflicts the entry is retained,
// conflicted paths get marker files and conflict index entries, and
// ErrMergeConflict is returned alongside the report.
func (r *Repo) StashPop(i int) (*MergeReport, error) {
	entries, err := r.ReadStash()
	if err != nil {
		return nil, fmt.Errorf("stash pop: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("stash pop: %w", ErrStashEmpty)
	}
	if i < 0 || i >= len(entries) {
		return nil, fmt.Errorf("stash pop: no entry %d (have %d)", i, len(entries))
	}
	entry := entries[i]

	if err := r.ensureClean(); err != nil {
		return nil, fmt.Errorf("stash pop: %w", err)
	}

	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		return nil, fmt.Errorf("stash pop: resolve HEAD: %w", err)
	}

	labels := diff3.Labels{Ours: "HEAD", Theirs: "stash"}
	if branch, err := r.CurrentBranch(); err == nil && branch != "" {
		labels.Ours = branch
	}

	report, err := r.mergeTrees(entry.Base, headHash, entry.Commit, labels)
	if err != nil {
		return nil, fmt.Errorf("stash pop: %w", err)
	}

	if report.HasConflicts() {
		// Entry stays in the stash so the attempt can be retried.
		return report, fmt.Errorf("stash pop: %w", ErrMergeConflict)
	}

	remaining := append(append([]StashEntry{}, entries[:i]...), entries[i+1:]...)
	if err := r.writeStash(remaining); err != nil {
		return nil, fmt.Errorf("stash pop: %w", err)
	}
	return report, nil
}

// StashDrop discards entry i without applying it. The snapshot commit
// becomes garbage in the object store.
func (r *Repo) StashDrop(i int) (*StashEntry, error) {
	entries, err := r.ReadStash()
	if err != nil {
		return nil, fmt.Errorf("stash drop: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("stash drop: %w", ErrStashEmpty)
	}
	if i < 0 || i >= len(entries) {
		return nil, fmt.Errorf("stash drop: no entry %d (have %d)", i, len(entries))
	}
	entry := entries[i]
	remaining := append(append([]StashEntry{}, entries[:i]...), entries[i+1:]...)
	if err := r.writeStash(remaining); err != nil {
		return nil, fmt.Errorf("stash drop: %w", err)
	}
	return &entry, nil
}

// StashClear discards every entry.
func (r *Repo) StashClear() error {
	if err := r.writeStash(nil); err != nil {
		return fmt.Errorf("stash clear: %w", err)
	}
	return nil
}

// StashChangedPaths lists the paths entry i touches relative to its base,
// sorted, for display.
func (r *Repo) StashChangedPaths(entry StashEntry) ([]string, error) {
	baseMap, err := r.treeFileMap(entry.Base)
	if err != nil {
		return nil, fmt.Errorf("stash show: %w", err)
	}
	snapMap, err := r.treeFileMap(entry.Commit)
	if err != nil {
		return nil, fmt.Errorf("stash show: %w", err)
	}

	var changed []string
	for _, path := range unionPaths(baseMap, snapMap) {
		b, inBase := baseMap[path]
		s, inSnap := snapMap[path]
		if inBase && inSnap && b.BlobHash == s.BlobHash && b.Mode == s.Mode {
			continue
		}
		changed = append(changed, path)
	}
	return changed, nil
}
