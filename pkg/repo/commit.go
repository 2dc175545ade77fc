package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/figtool/fig/pkg/object"
)

// Commit creates a new commit from the current index and advances the
// current branch (or detached HEAD) with a compare-and-swap against the
// previous tip.
//
// While a merge is in progress (MERGE_HEAD present), the commit refuses to
// run until every conflict entry has been re-staged, and then records the
// merged-in tip as a second parent.
func (r *Repo) Commit(message, author string) (object.Hash, error) {
	idx, err := r.ReadIndex()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if len(idx.Entries) == 0 {
		return "", fmt.Errorf("commit: nothing staged")
	}
	if idx.hasConflicts() {
		return "", fmt.Errorf("commit: unresolved conflicts in index; stage resolutions first")
	}

	treeHash, err := r.BuildTree(idx)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	var parents []object.Hash
	parentHash, err := r.ResolveRef("HEAD")
	if err == nil && parentHash != "" {
		parents = append(parents, parentHash)
	} else if err != nil && !errors.Is(err, ErrRefNotFound) {
		return "", fmt.Errorf("commit: resolve HEAD: %w", err)
	}
	// An unresolvable HEAD on an unborn branch just means a root commit.

	mergeHead, err := r.mergeHead()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if mergeHead != "" {
		if len(parents) == 0 {
			return "", fmt.Errorf("commit: merge in progress but HEAD is unborn")
		}
		parents = append(parents, mergeHead)
	}

	commitHash, err := r.Store.PutCommit(&object.Commit{
		TreeHash:  treeHash,
		Parents:   parents,
		Author:    author,
		Timestamp: time.Now().Unix(),
		Message:   message,
	})
	if err != nil {
		return "", fmt.Errorf("commit: write commit: %w", err)
	}

	if err := r.advanceHead(commitHash, parentHash); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	if mergeHead != "" {
		if err := r.clearMergeHead(); err != nil {
			return "", fmt.Errorf("commit: %w", err)
		}
	}
	return commitHash, nil
}

// advanceHead moves the current branch ref (or detached HEAD) from oldTip
// to newTip with a CAS, so a racing writer is detected rather than lost.
func (r *Repo) advanceHead(newTip, oldTip object.Hash) error {
	head, err := r.Head()
	if err != nil {
		return fmt.Errorf("read HEAD: %w", err)
	}
	if strings.HasPrefix(head, "refs/") {
		if err := r.UpdateRefCAS(head, newTip, oldTip); err != nil {
			return fmt.Errorf("update ref %q: %w", head, err)
		}
		return nil
	}
	// Detached HEAD: rewrite HEAD itself with the new hash.
	if object.Hash(head) != oldTip {
		return fmt.Errorf("update detached HEAD: %w (expected %q, found %q)",
			ErrRefCASMismatch, oldTip, head)
	}
	return r.setHead(string(newTip), false)
}

// Log walks history from start following first-parent links, newest first,
// up to limit commits (limit <= 0 means unlimited).
func (r *Repo) Log(start object.Hash, limit int) ([]*LogEntry, error) {
	var entries []*LogEntry
	current := start

	for current != "" {
		if limit > 0 && len(entries) >= limit {
			break
		}
		c, err := r.Store.GetCommit(current)
		if err != nil {
			return nil, fmt.Errorf("log: read commit %s: %w", current, err)
		}
		entries = append(entries, &LogEntry{Hash: current, Commit: c})
		if len(c.Parents) == 0 {
			break
		}
		current = c.Parents[0]
	}
	return entries, nil
}

// LogEntry pairs a commit with its own hash for display.
type LogEntry struct {
	Hash   object.Hash
	Commit *object.Commit
}

func (r *Repo) mergeHeadPath() string {
	return filepath.Join(r.FigDir, "MERGE_HEAD")
}

// mergeHead returns the in-progress merge's other tip, or "" when no merge
// is in progress.
func (r *Repo) mergeHead() (object.Hash, error) {
	data, err := os.ReadFile(r.mergeHeadPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read MERGE_HEAD: %w", err)
	}
	return object.Hash(strings.TrimSpace(string(data))), nil
}

func (r *Repo) writeMergeHead(h object.Hash) error {
	return atomicWriteFile(r.FigDir, r.mergeHeadPath(), []byte(string(h)+"\n"))
}

func (r *Repo) clearMergeHead() error {
	if err := os.Remove(r.mergeHeadPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove MERGE_HEAD: %w", err)
	}
	return nil
}
