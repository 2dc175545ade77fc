package object

import (
	"fmt"
	"sort"
	"strings"
)

// References returns the outgoing edges of an object: commit → tree +
// parents, tree → blobs + subtrees, blob → nothing.
func References(kind Type, content []byte) ([]Hash, error) {
	switch kind {
	case TypeBlob:
		return nil, nil
	case TypeCommit:
		c, err := UnmarshalCommit(content)
		if err != nil {
			return nil, err
		}
		refs := make([]Hash, 0, 1+len(c.Parents))
		refs = append(refs, c.TreeHash)
		refs = append(refs, c.Parents...)
		return refs, nil
	case TypeTree:
		t, err := UnmarshalTree(content)
		if err != nil {
			return nil, err
		}
		refs := make([]Hash, 0, len(t.Entries))
		for _, e := range t.Entries {
			refs = append(refs, e.Target)
		}
		return refs, nil
	default:
		return nil, fmt.Errorf("unsupported object kind %q", kind)
	}
}

// ReachableSet returns all object hashes reachable from roots by following
// object references. Missing roots are ignored so callers can pass ref
// values that may not have been fetched yet.
func (s *Store) ReachableSet(roots []Hash) (map[Hash]struct{}, error) {
	roots = uniqueHashes(roots)
	out := make(map[Hash]struct{}, len(roots))

	stack := append([]Hash(nil), roots...)
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if h == "" {
			continue
		}
		if _, ok := out[h]; ok {
			continue
		}
		if !s.Has(h) {
			continue
		}
		out[h] = struct{}{}

		kind, content, err := s.Get(h)
		if err != nil {
			return nil, fmt.Errorf("reachable set read %s: %w", h, err)
		}
		refs, err := References(kind, content)
		if err != nil {
			return nil, fmt.Errorf("reachable set parse %s (%s): %w", h, kind, err)
		}
		stack = append(stack, refs...)
	}
	return out, nil
}

func uniqueHashes(in []Hash) []Hash {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[Hash]struct{}, len(in))
	out := make([]Hash, 0, len(in))
	for _, h := range in {
		h = Hash(strings.TrimSpace(string(h)))
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
