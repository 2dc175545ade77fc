// Package transfer moves objects and refs between repositories on the
// local filesystem: push, fetch, pull, and clone.
package transfer

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/figtool/fig/pkg/object"
	"github.com/figtool/fig/pkg/repo"
)

// ErrNonFastForward is returned by Push when the destination branch has
// commits the source does not include and force was not requested.
var ErrNonFastForward = errors.New("non-fast-forward update rejected")

// CopyReachable copies every object reachable from roots that dst is
// missing, in dependency order: an object is written only after everything
// it references, so a reader of dst never sees a commit whose tree or
// parents are absent. Returns the number of objects copied.
func CopyReachable(src, dst *object.Store, roots []object.Hash) (int, error) {
	type frame struct {
		hash     object.Hash
		expanded bool
	}

	var stack []frame
	for _, root := range roots {
		if root != "" {
			stack = append(stack, frame{hash: root})
		}
	}

	visited := make(map[object.Hash]struct{})
	copied := 0

	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		if top.expanded {
			h := top.hash
			stack = stack[:len(stack)-1]
			if dst.Has(h) {
				continue
			}
			kind, content, err := src.Get(h)
			if err != nil {
				return copied, fmt.Errorf("copy %s: %w", h, err)
			}
			if _, err := dst.Put(kind, content); err != nil {
				return copied, fmt.Errorf("copy %s: %w", h, err)
			}
			copied++
			continue
		}

		top.expanded = true
		h := top.hash
		if _, seen := visited[h]; seen || dst.Has(h) {
			stack = stack[:len(stack)-1]
			continue
		}
		visited[h] = struct{}{}

		kind, content, err := src.Get(h)
		if err != nil {
			return copied, fmt.Errorf("copy %s: %w", h, err)
		}
		refs, err := object.References(kind, content)
		if err != nil {
			return copied, fmt.Errorf("copy %s (%s): %w", h, kind, err)
		}
		for _, ref := range refs {
			if ref == "" {
				continue
			}
			if _, seen := visited[ref]; seen {
				continue
			}
			stack = append(stack, frame{hash: ref})
		}
	}
	return copied, nil
}

// Push transfers the local branch and its objects to remote. The remote
// branch is only moved when its current tip is an ancestor of the pushed
// tip (ErrNonFastForward otherwise); force overrides the check. The update
// is a CAS against the observed remote tip, so a racing writer is detected
// rather than overwritten. On success the local remote-tracking ref
// refs/remotes/<remoteName>/<branch> is updated too.
func Push(local, remote *repo.Repo, remoteName, branch string, force bool) (object.Hash, error) {
	localTip, err := local.ResolveRef("refs/heads/" + branch)
	if err != nil {
		return "", fmt.Errorf("push: %w", err)
	}

	remoteRef := "refs/heads/" + branch
	remoteTip, err := remote.ResolveRef(remoteRef)
	if err != nil {
		if !errors.Is(err, repo.ErrRefNotFound) {
			return "", fmt.Errorf("push: %w", err)
		}
		remoteTip = ""
	}

	if remoteTip != "" && remoteTip != localTip && !force {
		// The check runs against the local store: a remote tip we do not
		// even have locally cannot be our ancestor.
		if !local.Store.Has(remoteTip) {
			return "", fmt.Errorf("push %q: %w", branch, ErrNonFastForward)
		}
		ok, err := local.IsAncestor(remoteTip, localTip)
		if err != nil {
			return "", fmt.Errorf("push: %w", err)
		}
		if !ok {
			return "", fmt.Errorf("push %q: %w", branch, ErrNonFastForward)
		}
	}

	if _, err := CopyReachable(local.Store, remote.Store, []object.Hash{localTip}); err != nil {
		return "", fmt.Errorf("push: %w", err)
	}

	if err := remote.UpdateRefCAS(remoteRef, localTip, remoteTip); err != nil {
		return "", fmt.Errorf("push: %w", err)
	}

	trackingRef := "refs/remotes/" + remoteName + "/" + branch
	if err := local.UpdateRef(trackingRef, localTip); err != nil {
		return "", fmt.Errorf("push: update tracking ref: %w", err)
	}
	return localTip, nil
}

// Fetch copies the named remote branches (all of them when branches is
// empty) and their objects into local, updating the remote-tracking refs.
// Returns branch name → fetched tip.
func Fetch(local, remote *repo.Repo, remoteName string, branches []string) (map[string]object.Hash, error) {
	remoteRefs, err := remote.ListRefs("heads")
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	want := make(map[string]object.Hash)
	if len(branches) == 0 {
		for name, tip := range remoteRefs {
			want[strings.TrimPrefix(name, "heads/")] = tip
		}
	} else {
		for _, b := range branches {
			tip, ok := remoteRefs["heads/"+b]
			if !ok {
				return nil, fmt.Errorf("fetch: remote has no branch %q", b)
			}
			want[b] = tip
		}
	}

	roots := make([]object.Hash, 0, len(want))
	for _, tip := range want {
		roots = append(roots, tip)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	if _, err := CopyReachable(remote.Store, local.Store, roots); err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	for branch, tip := range want {
		ref := "refs/remotes/" + remoteName + "/" + branch
		if err := local.UpdateRef(ref, tip); err != nil {
			return nil, fmt.Errorf("fetch: update %s: %w", ref, err)
		}
	}
	return want, nil
}

// Pull fetches one branch from remote and merges its tracking ref into the
// current HEAD (fast-forwarding when possible).
func Pull(local, remote *repo.Repo, remoteName, branch string) (*repo.MergeReport, error) {
	if _, err := Fetch(local, remote, remoteName, []string{branch}); err != nil {
		return nil, fmt.Errorf("pull: %w", err)
	}
	report, err := local.Merge("refs/remotes/" + remoteName + "/" + branch)
	if err != nil {
		return nil, fmt.Errorf("pull: %w", err)
	}
	return report, nil
}

// Clone creates a new repository at destDir from the repository at
// srcPath: all branches and their objects are copied, remote-tracking refs
// under "origin" are created, the source's current branch is checked out,
// and "origin" is configured to point back at the source.
func Clone(srcPath, destDir string) (*repo.Repo, error) {
	src, err := repo.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	dest, err := repo.Init(destDir)
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}

	srcRefs, err := src.ListRefs("heads")
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}

	roots := make([]object.Hash, 0, len(srcRefs))
	for _, tip := range srcRefs {
		roots = append(roots, tip)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	if _, err := CopyReachable(src.Store, dest.Store, roots); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}

	branches := make([]string, 0, len(srcRefs))
	for name, tip := range srcRefs {
		branch := strings.TrimPrefix(name, "heads/")
		branches = append(branches, branch)
		if err := dest.UpdateRef("refs/remotes/origin/"+branch, tip); err != nil {
			return nil, fmt.Errorf("clone: %w", err)
		}
	}
	sort.Strings(branches)

	if err := dest.SetRemote("origin", src.RootDir); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}

	checkout := defaultCheckoutBranch(src, branches)
	if checkout == "" {
		// Empty source: nothing to check out.
		return dest, nil
	}
	if err := dest.CreateBranch(checkout, srcRefs["heads/"+checkout]); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	if err := dest.Checkout(checkout); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	return dest, nil
}

// defaultCheckoutBranch picks the branch a fresh clone starts on: the
// source's current branch, else "main", else the first branch.
func defaultCheckoutBranch(src *repo.Repo, branches []string) string {
	if len(branches) == 0 {
		return ""
	}
	if current, err := src.CurrentBranch(); err == nil && current != "" {
		for _, b := range branches {
			if b == current {
				return b
			}
		}
	}
	for _, b := range branches {
		if b == "main" {
			return b
		}
	}
	return branches[0]
}
