package repo

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/figtool/fig/pkg/object"
)

// FileStatus classifies a path on one comparison axis.
type FileStatus int

const (
	StatusUnmodified FileStatus = iota
	StatusAdded                 // in index, not in HEAD tree
	StatusModified              // content hash differs between the compared snapshots
	StatusDeleted               // present in the older snapshot, gone from the newer
	StatusUntracked             // in working tree only
	StatusConflict              // unresolved merge conflict in the index
)

func (s FileStatus) String() string {
	switch s {
	case StatusUnmodified:
		return "unmodified"
	case StatusAdded:
		return "added"
	case StatusModified:
		return "modified"
	case StatusDeleted:
		return "deleted"
	case StatusUntracked:
		return "untracked"
	case StatusConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// StatusEntry records the status of one path on both axes: index vs HEAD
// tree, and working tree vs index.
type StatusEntry struct {
	Path        string
	IndexStatus FileStatus
	WorkStatus  FileStatus
}

// racyCleanWindow guards against edits landing inside mtime granularity:
// files modified within this window of "now" are always content-checked.
const racyCleanWindow = 2 * time.Second

// Status classifies every path reachable from the HEAD tree, the index, or
// the working tree. Comparison is by content hash; the cached stat data and
// xxh3 fingerprint only ever skip hashing, never decide a difference.
func (r *Repo) Status() ([]StatusEntry, error) {
	idx, err := r.ReadIndex()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	workFiles, err := r.workTreeFiles()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		headHash = "" // unborn branch: HEAD tree is empty
	}
	headEntries, err := r.treeFileMap(headHash)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	result := make(map[string]*StatusEntry)
	entry := func(path string) *StatusEntry {
		e, ok := result[path]
		if !ok {
			e = &StatusEntry{Path: path}
			result[path] = e
		}
		return e
	}

	refreshIndex := false

	// Working tree vs index.
	for path := range workFiles {
		ie, staged := idx.Entries[path]
		if !staged {
			e := entry(path)
			e.IndexStatus = StatusUntracked
			e.WorkStatus = StatusUntracked
			continue
		}
		if ie.Conflict {
			entry(path).WorkStatus = StatusConflict
			continue
		}

		dirty, refreshed, err := r.workFileDiffers(ie, path)
		if err != nil {
			return nil, fmt.Errorf("status: %w", err)
		}
		if refreshed {
			refreshIndex = true
		}
		if dirty {
			entry(path).WorkStatus = StatusModified
		} else {
			entry(path).WorkStatus = StatusUnmodified
		}
	}
	for path, ie := range idx.Entries {
		if _, onDisk := workFiles[path]; onDisk {
			continue
		}
		if ie.Conflict {
			entry(path).WorkStatus = StatusConflict
		} else {
			entry(path).WorkStatus = StatusDeleted
		}
	}

	// Index vs HEAD tree.
	for path, ie := range idx.Entries {
		e := entry(path)
		he, inHead := headEntries[path]
		switch {
		case ie.Conflict:
			e.IndexStatus = StatusConflict
		case !inHead:
			e.IndexStatus = StatusAdded
		case ie.BlobHash != he.BlobHash || normalizeFileMode(ie.Mode) != he.Mode:
			e.IndexStatus = StatusModified
		default:
			e.IndexStatus = StatusUnmodified
		}
	}
	for path := range headEntries {
		if _, staged := idx.Entries[path]; !staged {
			entry(path).IndexStatus = StatusDeleted
		}
	}

	entries := make([]StatusEntry, 0, len(result))
	for _, e := range result {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	if refreshIndex {
		if err := r.WriteIndex(idx); err != nil {
			return nil, fmt.Errorf("status: refresh index: %w", err)
		}
	}
	return entries, nil
}

// workFileDiffers reports whether the working file's content differs from
// the staged blob. Cheap checks run first: matching stat caches skip all
// hashing; a matching xxh3 fingerprint skips the cryptographic hash. When a
// cheap check proves staleness of the cache (not the content), the entry's
// caches are refreshed in place and refreshed=true is returned.
func (r *Repo) workFileDiffers(ie *IndexEntry, path string) (differs, refreshed bool, err error) {
	absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
	info, err := os.Stat(absPath)
	if err != nil {
		return false, false, fmt.Errorf("stat %q: %w", path, err)
	}

	workMode := modeFromFileInfo(info)
	if normalizeFileMode(ie.Mode) == workMode &&
		ie.Size == info.Size() &&
		ie.ModTime == info.ModTime().UnixNano() &&
		!withinRacyWindow(info.ModTime()) {
		return false, false, nil
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return false, false, fmt.Errorf("read %q: %w", path, err)
	}

	if workMode != normalizeFileMode(ie.Mode) {
		return true, false, nil
	}
	fp := xxh3.Hash(content)
	if ie.Fingerprint != 0 && fp == ie.Fingerprint {
		// Content unchanged; only the stat cache was stale.
		ie.Size = info.Size()
		ie.ModTime = info.ModTime().UnixNano()
		return false, true, nil
	}
	if object.HashContent(object.TypeBlob, content) != ie.BlobHash {
		return true, false, nil
	}

	// Hash matches despite a fingerprint miss (old index without
	// fingerprints): refresh all caches.
	ie.Size = info.Size()
	ie.ModTime = info.ModTime().UnixNano()
	ie.Fingerprint = fp
	return false, true, nil
}

func withinRacyWindow(modTime time.Time) bool {
	now := time.Now()
	if modTime.After(now) {
		return true
	}
	return now.Sub(modTime) < racyCleanWindow
}

// workTreeFiles walks the working directory and returns the set of
// non-ignored regular files as repo-relative slash paths.
func (r *Repo) workTreeFiles() (map[string]bool, error) {
	ic := NewIgnoreChecker(r.RootDir)
	files := make(map[string]bool)

	err := filepath.WalkDir(r.RootDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(r.RootDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if ic.IsIgnored(rel, d.IsDir()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			files[rel] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk working tree: %w", err)
	}
	return files, nil
}

// ensureClean fails with ErrUncommittedChanges when any tracked path has
// staged or unstaged changes. Untracked files do not block.
func (r *Repo) ensureClean() error {
	entries, err := r.Status()
	if err != nil {
		return fmt.Errorf("check status: %w", err)
	}
	for _, e := range entries {
		if e.IndexStatus == StatusUntracked && e.WorkStatus == StatusUntracked {
			continue
		}
		if e.IndexStatus != StatusUnmodified || e.WorkStatus != StatusUnmodified {
			return fmt.Errorf("%w (path %q)", ErrUncommittedChanges, e.Path)
		}
	}
	return nil
}
