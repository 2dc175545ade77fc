package object

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPutDeduplicates(t *testing.T) {
	s := NewStore(t.TempDir())

	h1, err := s.Put(TypeBlob, []byte("hello"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	h2, err := s.Put(TypeBlob, []byte("hello"))
	if err != nil {
		t.Fatalf("Put (second): %v", err)
	}
	if h1 != h2 {
		t.Fatalf("identical content hashed differently: %s vs %s", h1, h2)
	}

	// Exactly one object file on disk.
	count := 0
	err = filepath.WalkDir(filepath.Join(s.root, "objects"), func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk objects: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 object file, found %d", count)
	}
}

func TestGetRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	h, err := s.Put(TypeBlob, []byte("some content\n"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	kind, content, err := s.Get(h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if kind != TypeBlob {
		t.Fatalf("kind = %q, want blob", kind)
	}
	if string(content) != "some content\n" {
		t.Fatalf("content = %q", content)
	}
}

func TestGetMissingObject(t *testing.T) {
	s := NewStore(t.TempDir())

	_, _, err := s.Get(Hash("deadbeef00000000000000000000000000000000000000000000000000000000"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestGetDetectsCorruption flips bytes of a stored object on disk and checks
// that reads fail with ErrCorrupt rather than returning wrong content.
func TestGetDetectsCorruption(t *testing.T) {
	s := NewStore(t.TempDir())

	h, err := s.Put(TypeBlob, []byte("pristine"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Overwrite the object file with a valid-compression, wrong-content body.
	envelope := []byte("blob 7\x00tainted")
	compressed, err := compress(envelope)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if err := os.WriteFile(s.objectPath(h), compressed, 0o644); err != nil {
		t.Fatalf("overwrite object: %v", err)
	}

	if _, _, err := s.Get(h); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}

	// Garbage that does not even decompress is also corruption.
	if err := os.WriteFile(s.objectPath(h), []byte("not zstd at all"), 0o644); err != nil {
		t.Fatalf("overwrite object: %v", err)
	}
	if _, _, err := s.Get(h); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for undecodable object, got %v", err)
	}
}

func TestGetTypedKindMismatch(t *testing.T) {
	s := NewStore(t.TempDir())

	h, err := s.PutBlob(&Blob{Data: []byte("x")})
	if err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	if _, err := s.GetTree(h); err == nil {
		t.Fatal("expected kind mismatch error reading blob as tree")
	}
}

func TestReachableSet(t *testing.T) {
	s := NewStore(t.TempDir())

	blobHash, err := s.PutBlob(&Blob{Data: []byte("file body")})
	if err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	subHash, err := s.PutTree(&Tree{Entries: []TreeEntry{
		{Name: "inner.txt", Mode: ModeFile, Target: blobHash},
	}})
	if err != nil {
		t.Fatalf("PutTree (sub): %v", err)
	}
	rootHash, err := s.PutTree(&Tree{Entries: []TreeEntry{
		{Name: "dir", IsDir: true, Target: subHash},
	}})
	if err != nil {
		t.Fatalf("PutTree (root): %v", err)
	}
	commitHash, err := s.PutCommit(&Commit{
		TreeHash:  rootHash,
		Author:    "tester",
		Timestamp: 1700000000,
		Message:   "snapshot",
	})
	if err != nil {
		t.Fatalf("PutCommit: %v", err)
	}

	// An unrelated object must not be picked up.
	if _, err := s.PutBlob(&Blob{Data: []byte("unreachable")}); err != nil {
		t.Fatalf("PutBlob (unreachable): %v", err)
	}

	set, err := s.ReachableSet([]Hash{commitHash})
	if err != nil {
		t.Fatalf("ReachableSet: %v", err)
	}
	for _, h := range []Hash{commitHash, rootHash, subHash, blobHash} {
		if _, ok := set[h]; !ok {
			t.Errorf("hash %s missing from reachable set", h.Short())
		}
	}
	if len(set) != 4 {
		t.Fatalf("reachable set size = %d, want 4", len(set))
	}
}
