package object

// Hash is a 64-character hex-encoded BLAKE2b-256 digest.
type Hash string

// Short returns the first 8 characters of the hash for display.
func (h Hash) Short() string {
	if len(h) > 8 {
		return string(h[:8])
	}
	return string(h)
}

// Type identifies the kind of object stored.
type Type string

const (
	TypeBlob   Type = "blob"
	TypeTree   Type = "tree"
	TypeCommit Type = "commit"
)

const (
	// Tree mode constants compatible with Git's canonical mode strings.
	ModeDir        = "40000"
	ModeFile       = "100644"
	ModeExecutable = "100755"
)

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

// TreeEntry is one entry in a tree object: a file (blob reference) or a
// subdirectory (tree reference).
type TreeEntry struct {
	Name   string
	IsDir  bool
	Mode   string
	Target Hash
}

// Tree holds a directory snapshot. Entries are kept sorted by name; the
// serialized form re-sorts regardless, so two trees with the same entries
// always hash identically.
type Tree struct {
	Entries []TreeEntry
}

// Commit points at a tree with history metadata. Parents holds zero hashes
// for a root commit, one for a normal commit, two for a merge commit.
type Commit struct {
	TreeHash  Hash
	Parents   []Hash
	Author    string
	Timestamp int64
	Message   string
}
