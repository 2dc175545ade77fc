package repo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/figtool/fig/pkg/object"
)

// TreeFileEntry is a single file in a flattened tree.
type TreeFileEntry struct {
	Path     string
	BlobHash object.Hash
	Mode     string
}

// BuildTree converts the flat index into a tree hierarchy, writing one tree
// object per directory and returning the root tree hash.
//
// Directories are built strictly bottom-up over an explicit worklist ordered
// by path depth (deepest first), so arbitrarily deep hierarchies never risk
// native stack exhaustion, and each subtree hash exists before the parent
// that references it is encoded. Identical subtrees collapse to one stored
// object via content addressing.
func (r *Repo) BuildTree(idx *Index) (object.Hash, error) {
	type dirState struct {
		files   map[string]*IndexEntry
		subdirs map[string]struct{}
	}

	dirs := map[string]*dirState{"": {files: map[string]*IndexEntry{}, subdirs: map[string]struct{}{}}}
	getDir := func(name string) *dirState {
		d, ok := dirs[name]
		if !ok {
			d = &dirState{files: map[string]*IndexEntry{}, subdirs: map[string]struct{}{}}
			dirs[name] = d
		}
		return d
	}

	for p, entry := range idx.Entries {
		dir, file := splitDir(p)
		getDir(dir).files[file] = entry

		// Register every ancestor directory chain.
		child := dir
		for child != "" {
			parent, base := splitDir(child)
			getDir(parent).subdirs[base] = struct{}{}
			child = parent
		}
	}

	// Deepest directories first; the root ("") comes last.
	names := make([]string, 0, len(dirs))
	for name := range dirs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		di, dj := pathDepth(names[i]), pathDepth(names[j])
		if di != dj {
			return di > dj
		}
		return names[i] < names[j]
	})

	built := make(map[string]object.Hash, len(dirs))
	for _, name := range names {
		d := dirs[name]

		entryNames := make([]string, 0, len(d.files)+len(d.subdirs))
		for f := range d.files {
			entryNames = append(entryNames, f)
		}
		for s := range d.subdirs {
			if _, clash := d.files[s]; clash {
				full := s
				if name != "" {
					full = name + "/" + s
				}
				return "", fmt.Errorf("build tree: %q is staged as both a file and a directory", full)
			}
			entryNames = append(entryNames, s)
		}
		sort.Strings(entryNames)

		tree := &object.Tree{}
		for _, en := range entryNames {
			if fe, isFile := d.files[en]; isFile {
				tree.Entries = append(tree.Entries, object.TreeEntry{
					Name:   en,
					Mode:   normalizeFileMode(fe.Mode),
					Target: fe.BlobHash,
				})
				continue
			}
			sub := en
			if name != "" {
				sub = name + "/" + en
			}
			subHash, ok := built[sub]
			if !ok {
				return "", fmt.Errorf("build tree: subtree %q not built before parent", sub)
			}
			tree.Entries = append(tree.Entries, object.TreeEntry{
				Name:   en,
				IsDir:  true,
				Target: subHash,
			})
		}

		h, err := r.Store.PutTree(tree)
		if err != nil {
			return "", fmt.Errorf("build tree %q: %w", name, err)
		}
		built[name] = h
	}

	return built[""], nil
}

// FlattenTree walks a tree object iteratively and returns all file entries
// with their full slash paths, sorted by path.
func (r *Repo) FlattenTree(root object.Hash) ([]TreeFileEntry, error) {
	type item struct {
		hash   object.Hash
		prefix string
	}

	var result []TreeFileEntry
	stack := []item{{hash: root}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		tree, err := r.Store.GetTree(it.hash)
		if err != nil {
			return nil, fmt.Errorf("flatten tree %s: %w", it.hash, err)
		}
		for _, e := range tree.Entries {
			full := e.Name
			if it.prefix != "" {
				full = it.prefix + "/" + e.Name
			}
			if e.IsDir {
				stack = append(stack, item{hash: e.Target, prefix: full})
				continue
			}
			result = append(result, TreeFileEntry{
				Path:     full,
				BlobHash: e.Target,
				Mode:     normalizeFileMode(e.Mode),
			})
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result, nil
}

// treeFileMap flattens a commit's tree into path → entry. An empty commit
// hash yields an empty map (the unborn-branch case).
func (r *Repo) treeFileMap(commitHash object.Hash) (map[string]TreeFileEntry, error) {
	result := make(map[string]TreeFileEntry)
	if commitHash == "" {
		return result, nil
	}
	commit, err := r.Store.GetCommit(commitHash)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", commitHash, err)
	}
	entries, err := r.FlattenTree(commit.TreeHash)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		result[e.Path] = e
	}
	return result, nil
}

func splitDir(p string) (dir, base string) {
	idx := strings.LastIndexByte(p, '/')
	if idx < 0 {
		return "", p
	}
	return p[:idx], p[idx+1:]
}

func pathDepth(p string) int {
	if p == "" {
		return 0
	}
	return strings.Count(p, "/") + 1
}
