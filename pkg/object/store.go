package object

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ErrNotFound reports a hash with no object on disk.
var ErrNotFound = errors.New("object not found")

// ErrCorrupt reports an on-disk object whose decoded content does not hash
// back to its address. A corrupt object is never returned to the caller.
var ErrCorrupt = errors.New("corrupt object")

// Store is a content-addressed object store with a 2-character fan-out
// directory layout: objects/ab/cdef0123... Each object file holds the
// zstd-compressed envelope "kind len\0content".
type Store struct {
	root string
}

// NewStore creates a Store rooted at the given directory (the .fig dir).
// The objects/ subdirectory is created lazily on first write.
func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) objectPath(h Hash) string {
	return filepath.Join(s.root, "objects", string(h[:2]), string(h[2:]))
}

// Has reports whether the store contains an object with the given hash.
func (s *Store) Has(h Hash) bool {
	if len(h) < 3 {
		return false
	}
	_, err := os.Stat(s.objectPath(h))
	return err == nil
}

// Put stores an object and returns its content hash. If an object with the
// same hash already exists the write is skipped; duplicate content is stored
// once. Writes go through a temp file and rename, so a reader never observes
// a partially written object.
func (s *Store) Put(kind Type, content []byte) (Hash, error) {
	h := HashContent(kind, content)
	if s.Has(h) {
		return h, nil
	}

	envelope := make([]byte, 0, len(content)+16)
	envelope = append(envelope, fmt.Sprintf("%s %d\x00", kind, len(content))...)
	envelope = append(envelope, content...)

	compressed, err := compress(envelope)
	if err != nil {
		return "", fmt.Errorf("object write %s: compress: %w", h, err)
	}

	dir := filepath.Dir(s.objectPath(h))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("object write mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("object write tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("object write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.objectPath(h)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write rename %s: %w", tmpName, err)
	}
	return h, nil
}

// Get retrieves an object by hash, returning its kind and raw content.
// The decoded content is re-hashed and compared against the requested
// address; a mismatch fails with ErrCorrupt. This re-verification is the
// store's integrity guarantee.
func (s *Store) Get(h Hash) (Type, []byte, error) {
	if len(h) < 3 {
		return "", nil, fmt.Errorf("object read %q: %w", h, ErrNotFound)
	}
	raw, err := os.ReadFile(s.objectPath(h))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, fmt.Errorf("object read %s: %w", h, ErrNotFound)
		}
		return "", nil, fmt.Errorf("object read %s: %w", h, err)
	}

	envelope, err := decompress(raw)
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: %w: %v", h, ErrCorrupt, err)
	}

	kind, content, err := splitEnvelope(envelope)
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: %w: %v", h, ErrCorrupt, err)
	}

	if HashContent(kind, content) != h {
		return "", nil, fmt.Errorf("object read %s: %w: content hash mismatch", h, ErrCorrupt)
	}
	return kind, content, nil
}

func splitEnvelope(envelope []byte) (Type, []byte, error) {
	nul := bytes.IndexByte(envelope, 0)
	if nul < 0 {
		return "", nil, fmt.Errorf("invalid envelope (no NUL)")
	}
	header := string(envelope[:nul])
	content := envelope[nul+1:]

	kindStr, lenStr, ok := strings.Cut(header, " ")
	if !ok {
		return "", nil, fmt.Errorf("invalid header %q", header)
	}
	length, err := strconv.Atoi(lenStr)
	if err != nil {
		return "", nil, fmt.Errorf("invalid length %q", lenStr)
	}
	if len(content) != length {
		return "", nil, fmt.Errorf("length mismatch (header=%d, actual=%d)", length, len(content))
	}
	switch Type(kindStr) {
	case TypeBlob, TypeTree, TypeCommit:
	default:
		return "", nil, fmt.Errorf("unknown object kind %q", kindStr)
	}
	return Type(kindStr), content, nil
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

// ---------------------------------------------------------------------------
// Typed convenience methods
// ---------------------------------------------------------------------------

// PutBlob serializes and stores a Blob.
func (s *Store) PutBlob(b *Blob) (Hash, error) {
	return s.Put(TypeBlob, MarshalBlob(b))
}

// GetBlob reads and deserializes a Blob.
func (s *Store) GetBlob(h Hash) (*Blob, error) {
	content, err := s.getTyped(h, TypeBlob)
	if err != nil {
		return nil, err
	}
	return UnmarshalBlob(content)
}

// PutTree serializes and stores a Tree.
func (s *Store) PutTree(t *Tree) (Hash, error) {
	return s.Put(TypeTree, MarshalTree(t))
}

// GetTree reads and deserializes a Tree.
func (s *Store) GetTree(h Hash) (*Tree, error) {
	content, err := s.getTyped(h, TypeTree)
	if err != nil {
		return nil, err
	}
	return UnmarshalTree(content)
}

// PutCommit serializes and stores a Commit.
func (s *Store) PutCommit(c *Commit) (Hash, error) {
	return s.Put(TypeCommit, MarshalCommit(c))
}

// GetCommit reads and deserializes a Commit.
func (s *Store) GetCommit(h Hash) (*Commit, error) {
	content, err := s.getTyped(h, TypeCommit)
	if err != nil {
		return nil, err
	}
	return UnmarshalCommit(content)
}

func (s *Store) getTyped(h Hash, want Type) ([]byte, error) {
	kind, content, err := s.Get(h)
	if err != nil {
		return nil, err
	}
	if kind != want {
		return nil, fmt.Errorf("object %s: kind mismatch: got %q, want %q", h, kind, want)
	}
	return content, nil
}
