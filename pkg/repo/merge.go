package repo

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/figtool/fig/pkg/diff3"
	"github.com/figtool/fig/pkg/object"
)

// ConflictEntry describes one path the merge could not reconcile, keeping
// every contributing blob addressable for later resolution. An empty hash
// means the path was absent on that side.
type ConflictEntry struct {
	Path       string
	BaseHash   object.Hash
	OursHash   object.Hash
	TheirsHash object.Hash
	Mode       string
}

// MergeReport is the result of a repository-level merge.
type MergeReport struct {
	FastForward bool
	MergeCommit object.Hash // set when the merge auto-committed
	Conflicts   []ConflictEntry
	Merged      []string // cleanly reconciled paths
	Deleted     []string // paths removed by the merge
}

// HasConflicts reports whether the merge stopped with conflicts.
func (m *MergeReport) HasConflicts() bool { return len(m.Conflicts) > 0 }

// Merge merges the named branch (or any resolvable ref) into the current
// HEAD.
//
// The common ancestor of both tips is located first. If it equals the other
// tip there is nothing to do; if it equals our tip the merge degenerates to
// a fast-forward (ref advance, tree reset, no new commit). Otherwise every
// path across the three trees is classified three-way: one-sided changes
// and identical changes reconcile automatically, diverging changes go
// through the line-level merge, and genuine conflicts are materialized as
// marker files plus conflicted index entries, with MERGE_HEAD left behind
// so the eventual resolution commit records both parents.
func (r *Repo) Merge(target string) (*MergeReport, error) {
	if err := r.ensureClean(); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	oursHash, err := r.ResolveRef("HEAD")
	if err != nil {
		return nil, fmt.Errorf("merge: resolve HEAD: %w", err)
	}
	theirsHash, err := r.ResolveRef(target)
	if err != nil {
		return nil, fmt.Errorf("merge: resolve %q: %w", target, err)
	}

	baseHash, err := r.MergeBase(oursHash, theirsHash)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	if baseHash == theirsHash {
		// Their history is already contained in ours.
		return &MergeReport{}, nil
	}
	if baseHash == oursHash {
		if err := r.fastForward(theirsHash); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		return &MergeReport{FastForward: true}, nil
	}

	current, err := r.CurrentBranch()
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	labels := diff3.Labels{Ours: current, Theirs: target}
	if labels.Ours == "" {
		labels.Ours = "HEAD"
	}

	report, err := r.mergeTrees(baseHash, oursHash, theirsHash, labels)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	if report.HasConflicts() {
		if err := r.writeMergeHead(theirsHash); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		return report, nil
	}

	mergeHash, err := r.commitMerge(
		fmt.Sprintf("Merge '%s'", target),
		oursHash, theirsHash,
	)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	report.MergeCommit = mergeHash
	return report, nil
}

// fastForward advances the current branch (or detached HEAD) to tip and
// resets index and working tree to its tree.
func (r *Repo) fastForward(tip object.Hash) error {
	oldTip, err := r.ResolveRef("HEAD")
	if err != nil {
		return err
	}
	if err := r.advanceHead(tip, oldTip); err != nil {
		return err
	}
	commit, err := r.Store.GetCommit(tip)
	if err != nil {
		return fmt.Errorf("read commit %s: %w", tip, err)
	}
	return r.restoreTree(commit.TreeHash)
}

// mergeTrees runs the per-path three-way classification between the trees
// of three commits and applies the outcome to the working tree and index.
// It does not create a commit.
func (r *Repo) mergeTrees(baseHash, oursHash, theirsHash object.Hash, labels diff3.Labels) (*MergeReport, error) {
	baseMap, err := r.treeFileMap(baseHash)
	if err != nil {
		return nil, err
	}
	oursMap, err := r.treeFileMap(oursHash)
	if err != nil {
		return nil, err
	}
	theirsMap, err := r.treeFileMap(theirsHash)
	if err != nil {
		return nil, err
	}

	report := &MergeReport{}
	results := make(map[string]*mergeOutcome)
	var deleted []string

	for _, path := range unionPaths(baseMap, oursMap, theirsMap) {
		base, inBase := baseMap[path]
		ours, inOurs := oursMap[path]
		theirs, inTheirs := theirsMap[path]

		switch {
		case inBase && inOurs && inTheirs:
			switch {
			case ours.BlobHash == theirs.BlobHash:
				// Unchanged, or both sides made the identical change.
				content, err := r.blobData(ours.BlobHash)
				if err != nil {
					return nil, err
				}
				results[path] = &mergeOutcome{content: content, mode: ours.Mode}
			case theirs.BlobHash == base.BlobHash:
				// Only ours changed.
				content, err := r.blobData(ours.BlobHash)
				if err != nil {
					return nil, err
				}
				results[path] = &mergeOutcome{content: content, mode: ours.Mode}
			case ours.BlobHash == base.BlobHash:
				// Only theirs changed.
				content, err := r.blobData(theirs.BlobHash)
				if err != nil {
					return nil, err
				}
				results[path] = &mergeOutcome{content: content, mode: theirs.Mode}
			default:
				// Modified differently on both sides: line-level merge.
				o, err := r.contentMerge(path, base.BlobHash, ours.BlobHash, theirs.BlobHash, ours.Mode, labels)
				if err != nil {
					return nil, err
				}
				results[path] = o
			}

		case !inBase && inOurs && inTheirs:
			if ours.BlobHash == theirs.BlobHash {
				content, err := r.blobData(ours.BlobHash)
				if err != nil {
					return nil, err
				}
				results[path] = &mergeOutcome{content: content, mode: ours.Mode}
				break
			}
			// Added differently on both sides.
			o, err := r.contentMerge(path, "", ours.BlobHash, theirs.BlobHash, ours.Mode, labels)
			if err != nil {
				return nil, err
			}
			results[path] = o

		case inBase && inOurs && !inTheirs:
			if ours.BlobHash == base.BlobHash {
				deleted = append(deleted, path) // theirs deleted, ours untouched
				break
			}
			// Modified by ours, deleted by theirs.
			content, err := r.blobData(ours.BlobHash)
			if err != nil {
				return nil, err
			}
			res := diff3.Merge(nil, content, nil, labels)
			results[path] = &mergeOutcome{
				content: res.Merged,
				mode:    ours.Mode,
				conflict: &ConflictEntry{
					Path:     path,
					BaseHash: base.BlobHash,
					OursHash: ours.BlobHash,
					Mode:     ours.Mode,
				},
			}

		case inBase && !inOurs && inTheirs:
			if theirs.BlobHash == base.BlobHash {
				deleted = append(deleted, path) // ours deleted, theirs untouched
				break
			}
			// Deleted by ours, modified by theirs.
			content, err := r.blobData(theirs.BlobHash)
			if err != nil {
				return nil, err
			}
			res := diff3.Merge(nil, nil, content, labels)
			results[path] = &mergeOutcome{
				content: res.Merged,
				mode:    theirs.Mode,
				conflict: &ConflictEntry{
					Path:       path,
					BaseHash:   base.BlobHash,
					TheirsHash: theirs.BlobHash,
					Mode:       theirs.Mode,
				},
			}

		case !inBase && inOurs && !inTheirs:
			// Ours-only addition: keep as-is, nothing to write.
			content, err := r.blobData(ours.BlobHash)
			if err != nil {
				return nil, err
			}
			results[path] = &mergeOutcome{content: content, mode: ours.Mode}

		case !inBase && !inOurs && inTheirs:
			content, err := r.blobData(theirs.BlobHash)
			if err != nil {
				return nil, err
			}
			results[path] = &mergeOutcome{content: content, mode: theirs.Mode}

		case inBase && !inOurs && !inTheirs:
			deleted = append(deleted, path)
		}
	}

	// An untracked working file sitting on a path the merge wants to write
	// aborts before anything is touched, unless the bytes already match.
	tracked, err := r.trackedFiles()
	if err != nil {
		return nil, err
	}
	for path, o := range results {
		if tracked[path] {
			continue
		}
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		onDisk, err := os.ReadFile(absPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read %q: %w", path, err)
		}
		if !bytes.Equal(onDisk, o.content) {
			return nil, fmt.Errorf("untracked file would be overwritten: %w (path %q)",
				ErrUncommittedChanges, path)
		}
	}

	// Apply to the working tree.
	for path, o := range results {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir for %q: %w", path, err)
		}
		if err := os.WriteFile(absPath, o.content, filePermFromMode(o.mode)); err != nil {
			return nil, fmt.Errorf("write %q: %w", path, err)
		}
	}
	for _, path := range deleted {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove %q: %w", path, err)
		}
		r.removeEmptyParents(filepath.Dir(absPath))
	}

	// Apply to the index: stage clean results, mark conflicts unresolved.
	idx, err := r.ReadIndex()
	if err != nil {
		return nil, err
	}
	for _, path := range deleted {
		delete(idx.Entries, path)
	}
	for path, o := range results {
		if o.conflict == nil {
			if err := r.stageFile(idx, path); err != nil {
				return nil, err
			}
			report.Merged = append(report.Merged, path)
			continue
		}
		if err := r.stageConflict(idx, path, o.conflict); err != nil {
			return nil, err
		}
		report.Conflicts = append(report.Conflicts, *o.conflict)
	}
	if err := r.WriteIndex(idx); err != nil {
		return nil, err
	}

	sort.Strings(report.Merged)
	sort.Slice(report.Conflicts, func(i, j int) bool {
		return report.Conflicts[i].Path < report.Conflicts[j].Path
	})
	sort.Strings(deleted)
	report.Deleted = deleted
	return report, nil
}

// mergeOutcome is the merged state of one path before it is applied to
// the working tree and index.
type mergeOutcome struct {
	content  []byte
	mode     string
	conflict *ConflictEntry
}

// contentMerge merges one path's content three-way, reporting a conflict
// outcome when the line merge cannot reconcile both sides.
func (r *Repo) contentMerge(path string, baseHash, oursHash, theirsHash object.Hash, mode string, labels diff3.Labels) (*mergeOutcome, error) {
	var baseData []byte
	var err error
	if baseHash != "" {
		if baseData, err = r.blobData(baseHash); err != nil {
			return nil, err
		}
	}
	oursData, err := r.blobData(oursHash)
	if err != nil {
		return nil, err
	}
	theirsData, err := r.blobData(theirsHash)
	if err != nil {
		return nil, err
	}

	res := diff3.Merge(baseData, oursData, theirsData, labels)
	out := &mergeOutcome{content: res.Merged, mode: mode}

	if res.Conflicts > 0 {
		out.conflict = &ConflictEntry{
			Path:       path,
			BaseHash:   baseHash,
			OursHash:   oursHash,
			TheirsHash: theirsHash,
			Mode:       mode,
		}
	}
	return out, nil
}

// stageConflict records an unresolved path in the index: the working file
// (with markers) becomes the staged blob, and the contributing hashes are
// retained so the resolution can be staged later.
func (r *Repo) stageConflict(idx *Index, path string, c *ConflictEntry) error {
	absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat conflicted %q: %w", path, err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("read conflicted %q: %w", path, err)
	}
	blobHash, err := r.Store.PutBlob(&object.Blob{Data: data})
	if err != nil {
		return fmt.Errorf("write conflicted blob %q: %w", path, err)
	}

	idx.Entries[path] = &IndexEntry{
		Path:       path,
		BlobHash:   blobHash,
		Mode:       normalizeFileMode(c.Mode),
		Size:       info.Size(),
		ModTime:    info.ModTime().UnixNano(),
		Conflict:   true,
		BaseHash:   c.BaseHash,
		OursHash:   c.OursHash,
		TheirsHash: c.TheirsHash,
	}
	return nil
}

// commitMerge creates the two-parent merge commit and advances HEAD.
func (r *Repo) commitMerge(message string, parent1, parent2 object.Hash) (object.Hash, error) {
	idx, err := r.ReadIndex()
	if err != nil {
		return "", err
	}
	treeHash, err := r.BuildTree(idx)
	if err != nil {
		return "", err
	}

	commitHash, err := r.Store.PutCommit(&object.Commit{
		TreeHash:  treeHash,
		Parents:   []object.Hash{parent1, parent2},
		Author:    r.DefaultAuthor(),
		Timestamp: time.Now().Unix(),
		Message:   message,
	})
	if err != nil {
		return "", fmt.Errorf("write merge commit: %w", err)
	}
	if err := r.advanceHead(commitHash, parent1); err != nil {
		return "", err
	}
	return commitHash, nil
}

func (r *Repo) blobData(h object.Hash) ([]byte, error) {
	blob, err := r.Store.GetBlob(h)
	if err != nil {
		return nil, err
	}
	return blob.Data, nil
}

func unionPaths(maps ...map[string]TreeFileEntry) []string {
	set := make(map[string]struct{})
	for _, m := range maps {
		for p := range m {
			set[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
