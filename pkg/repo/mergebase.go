package repo

import (
	"fmt"

	"github.com/figtool/fig/pkg/object"
)

// mergeBaseStepLimit bounds ancestry traversals against cyclic or absurdly
// deep graphs (which would indicate store corruption).
const mergeBaseStepLimit = 1_000_000

// MergeBase finds the nearest common ancestor of two commits by walking
// both parent chains breadth-first in lock-step: the first commit seen from
// both frontiers is the base. Returns "" when the histories are unrelated.
func (r *Repo) MergeBase(a, b object.Hash) (object.Hash, error) {
	if a == "" || b == "" {
		return "", nil
	}
	if a == b {
		return a, nil
	}

	seenA := map[object.Hash]struct{}{a: {}}
	seenB := map[object.Hash]struct{}{b: {}}
	frontierA := []object.Hash{a}
	frontierB := []object.Hash{b}

	steps := 0
	for len(frontierA) > 0 || len(frontierB) > 0 {
		steps++
		if steps > mergeBaseStepLimit {
			return "", fmt.Errorf("find merge base: traversal exceeded %d steps", mergeBaseStepLimit)
		}

		var err error
		if frontierA, err = r.expandFrontier(frontierA, seenA); err != nil {
			return "", err
		}
		for _, h := range frontierA {
			if _, ok := seenB[h]; ok {
				return h, nil
			}
		}

		if frontierB, err = r.expandFrontier(frontierB, seenB); err != nil {
			return "", err
		}
		for _, h := range frontierB {
			if _, ok := seenA[h]; ok {
				return h, nil
			}
		}
	}
	return "", nil
}

// expandFrontier replaces a BFS frontier with the parents of its commits,
// marking them seen. Already-seen parents are not re-enqueued.
func (r *Repo) expandFrontier(frontier []object.Hash, seen map[object.Hash]struct{}) ([]object.Hash, error) {
	var next []object.Hash
	for _, h := range frontier {
		c, err := r.Store.GetCommit(h)
		if err != nil {
			return nil, fmt.Errorf("find merge base: read commit %s: %w", h, err)
		}
		for _, p := range c.Parents {
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			next = append(next, p)
		}
	}
	return next, nil
}

// IsAncestor reports whether ancestor is reachable from descendant by
// following parent links.
func (r *Repo) IsAncestor(ancestor, descendant object.Hash) (bool, error) {
	if ancestor == "" || descendant == "" {
		return false, nil
	}
	if ancestor == descendant {
		return true, nil
	}

	seen := map[object.Hash]struct{}{descendant: {}}
	queue := []object.Hash{descendant}
	steps := 0

	for len(queue) > 0 {
		steps++
		if steps > mergeBaseStepLimit {
			return false, fmt.Errorf("ancestor check: traversal exceeded %d steps", mergeBaseStepLimit)
		}

		h := queue[0]
		queue = queue[1:]
		c, err := r.Store.GetCommit(h)
		if err != nil {
			return false, fmt.Errorf("ancestor check: read commit %s: %w", h, err)
		}
		for _, p := range c.Parents {
			if p == ancestor {
				return true, nil
			}
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			queue = append(queue, p)
		}
	}
	return false, nil
}
