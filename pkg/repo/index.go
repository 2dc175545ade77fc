package repo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/figtool/fig/pkg/object"
)

// indexFormatVersion is bumped whenever the serialized index shape changes,
// so an old binary refuses a newer index instead of misparsing it.
const indexFormatVersion = 1

// IndexEntry records the staged state of a single file.
//
// Size, ModTime, and Fingerprint are change-detection caches only: they let
// status skip re-hashing, but the blob hash is always the ground truth and
// is recomputed whenever the caches are inconclusive.
type IndexEntry struct {
	Path        string      `json:"path"`
	BlobHash    object.Hash `json:"blob"`
	Mode        string      `json:"mode"`
	Size        int64       `json:"size"`
	ModTime     int64       `json:"mtime"` // unix nanoseconds
	Fingerprint uint64      `json:"fp,omitempty"`

	// Conflict state, populated by the merge engine until the path is
	// re-staged. The three hashes keep every contributing version
	// addressable so a resolution can be staged later.
	Conflict   bool        `json:"conflict,omitempty"`
	BaseHash   object.Hash `json:"base,omitempty"`
	OursHash   object.Hash `json:"ours,omitempty"`
	TheirsHash object.Hash `json:"theirs,omitempty"`
}

// Index is the staging area: a durable mapping of tracked paths to blob
// references. It is serialized whole and rewritten atomically on every
// mutation; a reader never observes a partial index.
type Index struct {
	Version int                    `json:"version"`
	Entries map[string]*IndexEntry `json:"entries"`
}

func (idx *Index) hasConflicts() bool {
	for _, e := range idx.Entries {
		if e.Conflict {
			return true
		}
	}
	return false
}

func (r *Repo) indexPath() string {
	return filepath.Join(r.FigDir, "index")
}

// ReadIndex loads the staging area from .fig/index. A missing file yields
// an empty index.
func (r *Repo) ReadIndex() (*Index, error) {
	data, err := os.ReadFile(r.indexPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Index{Version: indexFormatVersion, Entries: make(map[string]*IndexEntry)}, nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("read index: unmarshal: %w", err)
	}
	if idx.Version > indexFormatVersion {
		return nil, fmt.Errorf("read index: unsupported format version %d (supported up to %d)",
			idx.Version, indexFormatVersion)
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]*IndexEntry)
	}
	idx.Version = indexFormatVersion
	return &idx, nil
}

// WriteIndex atomically rewrites .fig/index.
func (r *Repo) WriteIndex(idx *Index) error {
	idx.Version = indexFormatVersion
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("write index: marshal: %w", err)
	}
	return atomicWriteFile(r.FigDir, r.indexPath(), data)
}

// Add stages the given paths. Files are read from the working tree, stored
// as blobs, and upserted into the index; directories expand recursively to
// their non-ignored file members. Re-staging a conflicted path clears its
// conflict state.
func (r *Repo) Add(paths []string) error {
	idx, err := r.ReadIndex()
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}

	files, err := r.expandPaths(paths)
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}

	for _, rel := range files {
		if err := r.stageFile(idx, rel); err != nil {
			return fmt.Errorf("add: %w", err)
		}
	}

	if err := r.WriteIndex(idx); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	return nil
}

// stageFile reads one working-tree file, writes its blob, and upserts the
// index entry (including the stat/fingerprint caches). Stale entries that
// cannot coexist with the new path are evicted: a file entry at one of the
// path's ancestor directories, and any entries beneath the path itself.
func (r *Repo) stageFile(idx *Index, rel string) error {
	for parent, _ := splitDir(rel); parent != ""; parent, _ = splitDir(parent) {
		delete(idx.Entries, parent)
	}
	for p := range idx.Entries {
		if strings.HasPrefix(p, rel+"/") {
			delete(idx.Entries, p)
		}
	}

	absPath := filepath.Join(r.RootDir, filepath.FromSlash(rel))
	content, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("read %q: %w", rel, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat %q: %w", rel, err)
	}

	blobHash, err := r.Store.PutBlob(&object.Blob{Data: content})
	if err != nil {
		return fmt.Errorf("write blob %q: %w", rel, err)
	}

	idx.Entries[rel] = &IndexEntry{
		Path:        rel,
		BlobHash:    blobHash,
		Mode:        modeFromFileInfo(info),
		Size:        info.Size(),
		ModTime:     info.ModTime().UnixNano(),
		Fingerprint: xxh3.Hash(content),
	}
	return nil
}

// expandPaths resolves user-supplied paths to sorted repo-relative file
// paths, expanding directories recursively and skipping ignored entries.
func (r *Repo) expandPaths(paths []string) ([]string, error) {
	ic := NewIgnoreChecker(r.RootDir)
	seen := make(map[string]struct{})

	for _, p := range paths {
		rel, err := r.repoRelPath(p)
		if err != nil {
			return nil, fmt.Errorf("resolve path %q: %w", p, err)
		}

		absPath := filepath.Join(r.RootDir, filepath.FromSlash(rel))
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("stat %q: %w", rel, err)
		}

		if !info.IsDir() {
			if ic.IsIgnored(rel, false) {
				return nil, fmt.Errorf("path %q is ignored", rel)
			}
			seen[rel] = struct{}{}
			continue
		}

		err = filepath.WalkDir(absPath, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			sub, err := filepath.Rel(r.RootDir, path)
			if err != nil {
				return err
			}
			sub = filepath.ToSlash(sub)
			if sub == "." {
				return nil
			}
			if ic.IsIgnored(sub, d.IsDir()) {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if !d.IsDir() {
				seen[sub] = struct{}{}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %q: %w", rel, err)
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// repoRelPath converts a path (absolute, or relative to the current working
// directory) into a slash path relative to the repository root.
func (r *Repo) repoRelPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(r.RootDir, p)
		if err != nil {
			return "", fmt.Errorf("cannot make %q relative to %q: %w", p, r.RootDir, err)
		}
		return filepath.ToSlash(rel), nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}
	rel, err := filepath.Rel(r.RootDir, filepath.Join(cwd, p))
	if err != nil {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}
	// Paths escaping the root are treated as already repo-relative.
	if strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}
	return filepath.ToSlash(rel), nil
}
