package repo

import "errors"

var (
	// ErrNotRepository reports that no .fig directory was found at or above
	// the starting path.
	ErrNotRepository = errors.New("not a fig repository")

	// ErrRefNotFound reports a reference name with no ref file behind it.
	ErrRefNotFound = errors.New("ref not found")

	// ErrRefCASMismatch reports a compare-and-swap ref update that observed
	// a different current value than expected (lost update detected).
	ErrRefCASMismatch = errors.New("ref compare-and-swap mismatch")

	// ErrUncommittedChanges blocks operations that would silently discard
	// work in the index or working tree.
	ErrUncommittedChanges = errors.New("uncommitted changes")

	// ErrMergeConflict reports a merge (or stash pop) that stopped with
	// conflicts. The repository is left in a resumable conflicted state,
	// not rolled back.
	ErrMergeConflict = errors.New("merge conflict")

	// ErrStashEmpty reports a stash operation against an empty stash.
	ErrStashEmpty = errors.New("stash is empty")
)
