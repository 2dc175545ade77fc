package transfer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/figtool/fig/pkg/repo"
)

const testAuthor = "Test User <test@example.com>"

func initRepo(t *testing.T) *repo.Repo {
	t.Helper()
	r, err := repo.Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return r
}

func commitFile(t *testing.T, r *repo.Repo, rel, content, message string) {
	t.Helper()
	absPath := filepath.Join(r.RootDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(absPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	if err := r.Add([]string{absPath}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := r.Commit(message, testAuthor); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

func TestPushToEmptyRemote(t *testing.T) {
	local := initRepo(t)
	remote := initRepo(t)
	commitFile(t, local, "a.txt", "1\n", "c1")
	localTip, _ := local.ResolveRef("HEAD")

	tip, err := Push(local, remote, "origin", "main", false)
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if tip != localTip {
		t.Fatalf("pushed tip = %s, want %s", tip.Short(), localTip.Short())
	}

	remoteTip, err := remote.ResolveRef("refs/heads/main")
	if err != nil || remoteTip != localTip {
		t.Fatalf("remote main = %q, %v", remoteTip, err)
	}
	// Every reachable object must have arrived intact.
	if _, err := remote.Store.GetCommit(remoteTip); err != nil {
		t.Fatalf("remote missing pushed commit: %v", err)
	}
	tracking, err := local.ResolveRef("refs/remotes/origin/main")
	if err != nil || tracking != localTip {
		t.Fatalf("tracking ref = %q, %v", tracking, err)
	}
}

func TestPushRejectsNonFastForward(t *testing.T) {
	// Two clones of the same history diverge; the second push must be
	// rejected until the pusher integrates the remote commits.
	remote := initRepo(t)
	alice := initRepo(t)
	commitFile(t, alice, "a.txt", "base\n", "c1")
	if _, err := Push(alice, remote, "origin", "main", false); err != nil {
		t.Fatalf("initial push failed: %v", err)
	}

	bobDir := t.TempDir()
	bob, err := Clone(remote.RootDir, filepath.Join(bobDir, "clone"))
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}

	commitFile(t, alice, "a.txt", "alice\n", "alice edit")
	if _, err := Push(alice, remote, "origin", "main", false); err != nil {
		t.Fatalf("alice push failed: %v", err)
	}

	commitFile(t, bob, "b.txt", "bob\n", "bob edit")
	if _, err := Push(bob, remote, "origin", "main", false); !errors.Is(err, ErrNonFastForward) {
		t.Fatalf("diverged push: got %v, want ErrNonFastForward", err)
	}

	// After pulling (which merges), the push goes through.
	report, err := Pull(bob, remote, "origin", "main")
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if report.HasConflicts() {
		t.Fatalf("unexpected conflicts: %+v", report.Conflicts)
	}

	if _, err := Push(bob, remote, "origin", "main", false); err != nil {
		t.Fatalf("push after pull failed: %v", err)
	}

	remoteTip, _ := remote.ResolveRef("refs/heads/main")
	bobTip, _ := bob.ResolveRef("HEAD")
	if remoteTip != bobTip {
		t.Fatalf("remote = %s, want bob tip %s", remoteTip.Short(), bobTip.Short())
	}
}

func TestForcePushOverwrites(t *testing.T) {
	remote := initRepo(t)
	alice := initRepo(t)
	commitFile(t, alice, "a.txt", "base\n", "c1")
	if _, err := Push(alice, remote, "origin", "main", false); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	bob := initRepo(t)
	commitFile(t, bob, "z.txt", "unrelated\n", "bob c1")
	if _, err := Push(bob, remote, "origin", "main", false); !errors.Is(err, ErrNonFastForward) {
		t.Fatalf("unrelated push: got %v, want ErrNonFastForward", err)
	}

	if _, err := Push(bob, remote, "origin", "main", true); err != nil {
		t.Fatalf("force push failed: %v", err)
	}
	remoteTip, _ := remote.ResolveRef("refs/heads/main")
	bobTip, _ := bob.ResolveRef("HEAD")
	if remoteTip != bobTip {
		t.Fatal("force push did not move the remote branch")
	}
}

func TestFetchUpdatesTrackingOnly(t *testing.T) {
	remote := initRepo(t)
	alice := initRepo(t)
	commitFile(t, alice, "a.txt", "1\n", "c1")
	if _, err := Push(alice, remote, "origin", "main", false); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	bob, err := Clone(remote.RootDir, filepath.Join(t.TempDir(), "clone"))
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	bobTipBefore, _ := bob.ResolveRef("HEAD")

	commitFile(t, alice, "a.txt", "2\n", "c2")
	if _, err := Push(alice, remote, "origin", "main", false); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	tips, err := Fetch(bob, remote, "origin", nil)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	aliceTip, _ := alice.ResolveRef("HEAD")
	if tips["main"] != aliceTip {
		t.Fatalf("fetched tip = %s, want %s", tips["main"].Short(), aliceTip.Short())
	}

	tracking, _ := bob.ResolveRef("refs/remotes/origin/main")
	if tracking != aliceTip {
		t.Fatal("tracking ref not updated by fetch")
	}
	// Fetch must not touch the local branch or working tree.
	if tip, _ := bob.ResolveRef("HEAD"); tip != bobTipBefore {
		t.Fatal("fetch moved the local branch")
	}

	if _, err := Fetch(bob, remote, "origin", []string{"ghost"}); err == nil {
		t.Fatal("fetching an unknown branch should fail")
	}
}

func TestClone(t *testing.T) {
	src := initRepo(t)
	commitFile(t, src, "dir/a.txt", "content\n", "c1")
	commitFile(t, src, "b.txt", "top\n", "c2")
	srcTip, _ := src.ResolveRef("HEAD")

	dest, err := Clone(src.RootDir, filepath.Join(t.TempDir(), "clone"))
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}

	branch, err := dest.CurrentBranch()
	if err != nil || branch != "main" {
		t.Fatalf("clone branch = %q, %v", branch, err)
	}
	destTip, _ := dest.ResolveRef("HEAD")
	if destTip != srcTip {
		t.Fatalf("clone tip = %s, want %s", destTip.Short(), srcTip.Short())
	}

	data, err := os.ReadFile(filepath.Join(dest.RootDir, "dir", "a.txt"))
	if err != nil || string(data) != "content\n" {
		t.Fatalf("cloned file = %q, %v", data, err)
	}

	path, err := dest.RemotePath("origin")
	if err != nil || path != src.RootDir {
		t.Fatalf("origin path = %q, %v", path, err)
	}
	tracking, err := dest.ResolveRef("refs/remotes/origin/main")
	if err != nil || tracking != srcTip {
		t.Fatalf("tracking ref = %q, %v", tracking, err)
	}
}

func TestCloneEmptySource(t *testing.T) {
	src := initRepo(t)
	dest, err := Clone(src.RootDir, filepath.Join(t.TempDir(), "clone"))
	if err != nil {
		t.Fatalf("Clone of empty repository failed: %v", err)
	}
	branches, err := dest.ListBranches()
	if err != nil {
		t.Fatalf("ListBranches failed: %v", err)
	}
	if len(branches) != 0 {
		t.Fatalf("empty clone has branches %v", branches)
	}
}
