package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/figtool/fig/pkg/object"
)

// Repo is an opened fig repository: a working directory root, the .fig
// control directory inside it, and the object store. All operations take
// the handle explicitly; there is no process-global repository state.
type Repo struct {
	RootDir string        // working directory root
	FigDir  string        // .fig/ control directory
	Store   *object.Store // content-addressed object store
}

const (
	figDirName    = ".fig"
	defaultBranch = "main"
)

// Init creates a new fig repository at path: the .fig/ directory with
// objects/, refs/heads/, and a HEAD pointing at an unborn main branch.
// Fails if a repository already exists there.
func Init(path string) (*Repo, error) {
	figDir := filepath.Join(path, figDirName)
	if _, err := os.Stat(figDir); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", figDir)
	}

	dirs := []string{
		filepath.Join(figDir, "objects"),
		filepath.Join(figDir, "refs", "heads"),
		filepath.Join(figDir, "refs", "remotes"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}

	headPath := filepath.Join(figDir, "HEAD")
	if err := os.WriteFile(headPath, []byte("ref: refs/heads/"+defaultBranch+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("init: write HEAD: %w", err)
	}

	return &Repo{
		RootDir: path,
		FigDir:  figDir,
		Store:   object.NewStore(figDir),
	}, nil
}

// Open searches upward from path for a .fig/ directory and opens the
// repository, or fails with ErrNotRepository.
func Open(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	cur := abs
	for {
		figDir := filepath.Join(cur, figDirName)
		info, err := os.Stat(figDir)
		if err == nil && info.IsDir() {
			return &Repo{
				RootDir: cur,
				FigDir:  figDir,
				Store:   object.NewStore(figDir),
			}, nil
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("open %s: %w", path, ErrNotRepository)
		}
		cur = parent
	}
}

// Head reads .fig/HEAD. An attached HEAD returns the ref path
// ("refs/heads/main"); a detached HEAD returns the raw hash string.
func (r *Repo) Head() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.FigDir, "HEAD"))
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	content := strings.TrimRight(string(data), "\n")
	if rest, ok := strings.CutPrefix(content, "ref: "); ok {
		return rest, nil
	}
	return content, nil
}

// setHead rewrites .fig/HEAD atomically: either attached to a branch
// (target = "refs/heads/<name>") or detached (target = raw hash).
func (r *Repo) setHead(target string, attached bool) error {
	content := target + "\n"
	if attached {
		content = "ref: " + target + "\n"
	}
	return atomicWriteFile(r.FigDir, filepath.Join(r.FigDir, "HEAD"), []byte(content))
}

// atomicWriteFile writes data to dest via a temp file in tmpDir and a
// rename, so readers never observe a partial file.
func atomicWriteFile(tmpDir, dest string, data []byte) error {
	tmp, err := os.CreateTemp(tmpDir, ".write-tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: tmpfile: %w", dest, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: close: %w", dest, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: rename: %w", dest, err)
	}
	return nil
}
