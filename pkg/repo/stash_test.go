package repo

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestStashPushAndPop(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "one\n")
	addAndCommit(t, r, "c1", "a.txt")

	writeWorkFile(t, r, "a.txt", "two\n")
	entry, err := r.StashPush("work in progress")
	if err != nil {
		t.Fatalf("StashPush failed: %v", err)
	}
	if entry.Message != "work in progress" {
		t.Fatalf("entry message = %q", entry.Message)
	}

	// The working tree is back at HEAD.
	if got := readWorkFile(t, r, "a.txt"); got != "one\n" {
		t.Fatalf("a.txt = %q after push, want HEAD content", got)
	}
	entries, err := r.ReadStash()
	if err != nil || len(entries) != 1 {
		t.Fatalf("stash entries = %v, %v", entries, err)
	}

	report, err := r.StashPop(0)
	if err != nil {
		t.Fatalf("StashPop failed: %v", err)
	}
	if report.HasConflicts() {
		t.Fatalf("unexpected conflicts: %+v", report.Conflicts)
	}
	if got := readWorkFile(t, r, "a.txt"); got != "two\n" {
		t.Fatalf("a.txt = %q after pop, want stashed content", got)
	}
	entries, _ = r.ReadStash()
	if len(entries) != 0 {
		t.Fatalf("stash should be empty after pop, got %d entries", len(entries))
	}
}

func TestStashPushKeepsWorkingTreeVersion(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "v0\n")
	addAndCommit(t, r, "c1", "a.txt")

	// Staged v1, then edited to v2 without restaging: the snapshot holds
	// one version per path, and the working tree wins.
	writeWorkFile(t, r, "a.txt", "v1\n")
	if err := r.Add([]string{filepath.Join(r.RootDir, "a.txt")}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	writeWorkFile(t, r, "a.txt", "v2\n")

	if _, err := r.StashPush(""); err != nil {
		t.Fatalf("StashPush failed: %v", err)
	}
	if got := readWorkFile(t, r, "a.txt"); got != "v0\n" {
		t.Fatalf("a.txt = %q after push, want HEAD content", got)
	}

	if _, err := r.StashPop(0); err != nil {
		t.Fatalf("StashPop failed: %v", err)
	}
	if got := readWorkFile(t, r, "a.txt"); got != "v2\n" {
		t.Fatalf("a.txt = %q after pop, want working-tree version", got)
	}
	idx, err := r.ReadIndex()
	if err != nil {
		t.Fatalf("ReadIndex failed: %v", err)
	}
	blob, err := r.Store.GetBlob(idx.Entries["a.txt"].BlobHash)
	if err != nil {
		t.Fatalf("GetBlob failed: %v", err)
	}
	if string(blob.Data) != "v2\n" {
		t.Fatalf("staged content = %q after pop, the v1 version is not retained", blob.Data)
	}
}

func TestStashPopOntoMovedHead(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "base\n")
	writeWorkFile(t, r, "b.txt", "b\n")
	addAndCommit(t, r, "c1", "a.txt", "b.txt")

	writeWorkFile(t, r, "b.txt", "b stashed\n")
	if _, err := r.StashPush(""); err != nil {
		t.Fatalf("StashPush failed: %v", err)
	}

	// History moves on a different file before the pop.
	writeWorkFile(t, r, "a.txt", "advanced\n")
	addAndCommit(t, r, "c2", "a.txt")

	report, err := r.StashPop(0)
	if err != nil {
		t.Fatalf("StashPop failed: %v", err)
	}
	if report.HasConflicts() {
		t.Fatalf("unexpected conflicts: %+v", report.Conflicts)
	}
	if got := readWorkFile(t, r, "a.txt"); got != "advanced\n" {
		t.Fatalf("a.txt = %q, the newer commit must survive", got)
	}
	if got := readWorkFile(t, r, "b.txt"); got != "b stashed\n" {
		t.Fatalf("b.txt = %q, the stashed edit must apply", got)
	}
}

func TestStashPopConflictRetainsEntry(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "base\n")
	addAndCommit(t, r, "c1", "a.txt")

	writeWorkFile(t, r, "a.txt", "stashed\n")
	if _, err := r.StashPush(""); err != nil {
		t.Fatalf("StashPush failed: %v", err)
	}

	writeWorkFile(t, r, "a.txt", "committed\n")
	addAndCommit(t, r, "c2", "a.txt")

	report, err := r.StashPop(0)
	if !errors.Is(err, ErrMergeConflict) {
		t.Fatalf("conflicting pop: got %v, want ErrMergeConflict", err)
	}
	if report == nil || len(report.Conflicts) != 1 || report.Conflicts[0].Path != "a.txt" {
		t.Fatalf("report = %+v, want one conflict on a.txt", report)
	}

	content := readWorkFile(t, r, "a.txt")
	if !strings.Contains(content, "<<<<<<<") || !strings.Contains(content, "stashed") {
		t.Fatalf("conflict markers missing:\n%s", content)
	}

	// The entry survives a failed pop.
	entries, _ := r.ReadStash()
	if len(entries) != 1 {
		t.Fatalf("stash entries = %d after conflicting pop, want 1", len(entries))
	}
}

func TestStashEmptyAndBounds(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "x\n")
	addAndCommit(t, r, "c1", "a.txt")

	if _, err := r.StashPop(0); !errors.Is(err, ErrStashEmpty) {
		t.Fatalf("pop on empty stash: got %v, want ErrStashEmpty", err)
	}
	if _, err := r.StashPush(""); err == nil {
		t.Fatal("stash with a clean tree should fail")
	}

	writeWorkFile(t, r, "a.txt", "y\n")
	if _, err := r.StashPush(""); err != nil {
		t.Fatalf("StashPush failed: %v", err)
	}
	if _, err := r.StashPop(5); err == nil {
		t.Fatal("pop with out-of-range index should fail")
	}
}

func TestStashDropAndClear(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "v0\n")
	addAndCommit(t, r, "c1", "a.txt")

	writeWorkFile(t, r, "a.txt", "v1\n")
	if _, err := r.StashPush("first"); err != nil {
		t.Fatalf("StashPush failed: %v", err)
	}
	writeWorkFile(t, r, "a.txt", "v2\n")
	if _, err := r.StashPush("second"); err != nil {
		t.Fatalf("StashPush failed: %v", err)
	}

	entries, _ := r.ReadStash()
	if len(entries) != 2 || entries[0].Message != "second" {
		t.Fatalf("entries = %+v, want newest first", entries)
	}

	dropped, err := r.StashDrop(0)
	if err != nil {
		t.Fatalf("StashDrop failed: %v", err)
	}
	if dropped.Message != "second" {
		t.Fatalf("dropped %q, want second", dropped.Message)
	}
	entries, _ = r.ReadStash()
	if len(entries) != 1 || entries[0].Message != "first" {
		t.Fatalf("entries after drop = %+v", entries)
	}

	changed, err := r.StashChangedPaths(entries[0])
	if err != nil {
		t.Fatalf("StashChangedPaths failed: %v", err)
	}
	if len(changed) != 1 || changed[0] != "a.txt" {
		t.Fatalf("changed paths = %v, want [a.txt]", changed)
	}

	if err := r.StashClear(); err != nil {
		t.Fatalf("StashClear failed: %v", err)
	}
	entries, _ = r.ReadStash()
	if len(entries) != 0 {
		t.Fatalf("stash not empty after clear: %+v", entries)
	}
}
