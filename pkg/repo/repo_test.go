package repo

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const testAuthor = "Test User <test@example.com>"

func initTestRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return r
}

func writeWorkFile(t *testing.T, r *Repo, rel, content string) {
	t.Helper()
	absPath := filepath.Join(r.RootDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", rel, err)
	}
	if err := os.WriteFile(absPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func readWorkFile(t *testing.T, r *Repo, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(r.RootDir, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

func addAndCommit(t *testing.T, r *Repo, message string, paths ...string) {
	t.Helper()
	abs := make([]string, len(paths))
	for i, p := range paths {
		abs[i] = filepath.Join(r.RootDir, filepath.FromSlash(p))
	}
	if err := r.Add(abs); err != nil {
		t.Fatalf("Add(%v) failed: %v", paths, err)
	}
	if _, err := r.Commit(message, testAuthor); err != nil {
		t.Fatalf("Commit(%q) failed: %v", message, err)
	}
}

func TestInitAndOpen(t *testing.T) {
	r := initTestRepo(t)

	sub := filepath.Join(r.RootDir, "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	opened, err := Open(sub)
	if err != nil {
		t.Fatalf("Open from subdirectory failed: %v", err)
	}
	if opened.RootDir != r.RootDir {
		t.Fatalf("Open found root %q, want %q", opened.RootDir, r.RootDir)
	}

	if _, err := Open(t.TempDir()); !errors.Is(err, ErrNotRepository) {
		t.Fatalf("Open outside a repository: got %v, want ErrNotRepository", err)
	}

	if _, err := Init(r.RootDir); err == nil {
		t.Fatal("Init over an existing repository should fail")
	}
}

func TestCommitAndLog(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "README.md", "hi\n")
	addAndCommit(t, r, "c1", "README.md")

	tip, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD) failed: %v", err)
	}
	entries, err := r.Log(tip, 0)
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	if entries[0].Commit.Message != "c1" {
		t.Fatalf("got message %q, want %q", entries[0].Commit.Message, "c1")
	}
	if len(entries[0].Commit.Parents) != 0 {
		t.Fatalf("root commit has %d parents, want 0", len(entries[0].Commit.Parents))
	}

	writeWorkFile(t, r, "README.md", "hi again\n")
	addAndCommit(t, r, "c2", "README.md")

	tip2, _ := r.ResolveRef("HEAD")
	entries, err = r.Log(tip2, 0)
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d log entries, want 2", len(entries))
	}
	if entries[0].Commit.Message != "c2" || entries[1].Commit.Message != "c1" {
		t.Fatalf("log out of order: %q, %q", entries[0].Commit.Message, entries[1].Commit.Message)
	}
	if entries[0].Commit.Parents[0] != tip {
		t.Fatal("second commit does not parent the first")
	}
}

func TestCommitNothingStaged(t *testing.T) {
	r := initTestRepo(t)
	if _, err := r.Commit("empty", testAuthor); err == nil {
		t.Fatal("Commit with empty index should fail")
	}
}

func TestRefCAS(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "f.txt", "x\n")
	addAndCommit(t, r, "c1", "f.txt")
	tip, _ := r.ResolveRef("HEAD")

	err := r.UpdateRefCAS("refs/heads/main", tip, "bogus-old-value")
	if !errors.Is(err, ErrRefCASMismatch) {
		t.Fatalf("stale CAS: got %v, want ErrRefCASMismatch", err)
	}

	if err := r.UpdateRefCAS("refs/heads/other", tip, ""); err != nil {
		t.Fatalf("CAS create failed: %v", err)
	}
	got, err := r.ResolveRef("refs/heads/other")
	if err != nil || got != tip {
		t.Fatalf("ResolveRef after CAS create: got %q, %v", got, err)
	}
}

func TestStatusLifecycle(t *testing.T) {
	r := initTestRepo(t)

	writeWorkFile(t, r, "a.txt", "1\n")
	statuses := statusMap(t, r)
	if s := statuses["a.txt"]; s.WorkStatus != StatusUntracked {
		t.Fatalf("new file: got %v, want untracked", s.WorkStatus)
	}

	if err := r.Add([]string{filepath.Join(r.RootDir, "a.txt")}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	statuses = statusMap(t, r)
	if s := statuses["a.txt"]; s.IndexStatus != StatusAdded || s.WorkStatus != StatusUnmodified {
		t.Fatalf("staged file: got index=%v work=%v", s.IndexStatus, s.WorkStatus)
	}

	if _, err := r.Commit("c1", testAuthor); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	statuses = statusMap(t, r)
	if s := statuses["a.txt"]; s.IndexStatus != StatusUnmodified || s.WorkStatus != StatusUnmodified {
		t.Fatalf("committed file: got index=%v work=%v", s.IndexStatus, s.WorkStatus)
	}

	writeWorkFile(t, r, "a.txt", "2\n")
	statuses = statusMap(t, r)
	if s := statuses["a.txt"]; s.WorkStatus != StatusModified {
		t.Fatalf("edited file: got %v, want modified", s.WorkStatus)
	}

	if err := os.Remove(filepath.Join(r.RootDir, "a.txt")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	statuses = statusMap(t, r)
	if s := statuses["a.txt"]; s.WorkStatus != StatusDeleted {
		t.Fatalf("deleted file: got %v, want deleted", s.WorkStatus)
	}
}

func statusMap(t *testing.T, r *Repo) map[string]StatusEntry {
	t.Helper()
	entries, err := r.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	m := make(map[string]StatusEntry, len(entries))
	for _, e := range entries {
		m[e.Path] = e
	}
	return m
}

func TestIgnoredFilesNotStaged(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, ".figignore", "*.log\nbuild/\n")
	writeWorkFile(t, r, "keep.txt", "k\n")
	writeWorkFile(t, r, "noise.log", "n\n")
	writeWorkFile(t, r, "build/out.txt", "o\n")

	if err := r.Add([]string{r.RootDir}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	idx, err := r.ReadIndex()
	if err != nil {
		t.Fatalf("ReadIndex failed: %v", err)
	}
	if _, ok := idx.Entries["keep.txt"]; !ok {
		t.Fatal("keep.txt should be staged")
	}
	if _, ok := idx.Entries["noise.log"]; ok {
		t.Fatal("noise.log matches *.log and should be ignored")
	}
	if _, ok := idx.Entries["build/out.txt"]; ok {
		t.Fatal("build/out.txt is under an ignored directory")
	}

	// Naming an ignored file explicitly is refused, not silently staged.
	if err := r.Add([]string{filepath.Join(r.RootDir, "noise.log")}); err == nil {
		t.Fatal("adding an ignored file by name should fail")
	}
}

func TestAddReplacesFileWithDirectory(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a", "was a file\n")
	if err := r.Add([]string{filepath.Join(r.RootDir, "a")}); err != nil {
		t.Fatalf("Add file failed: %v", err)
	}

	if err := os.Remove(filepath.Join(r.RootDir, "a")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	writeWorkFile(t, r, "a/b", "now a directory\n")
	if err := r.Add([]string{filepath.Join(r.RootDir, "a")}); err != nil {
		t.Fatalf("Add directory failed: %v", err)
	}

	idx, err := r.ReadIndex()
	if err != nil {
		t.Fatalf("ReadIndex failed: %v", err)
	}
	if _, stale := idx.Entries["a"]; stale {
		t.Fatal("stale file entry \"a\" must be evicted by staging a/b")
	}
	if _, ok := idx.Entries["a/b"]; !ok {
		t.Fatal("a/b should be staged")
	}

	if _, err := r.Commit("c1", testAuthor); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	tip, _ := r.ResolveRef("HEAD")
	files, err := r.treeFileMap(tip)
	if err != nil {
		t.Fatalf("treeFileMap failed: %v", err)
	}
	if _, ok := files["a/b"]; !ok || len(files) != 1 {
		t.Fatalf("committed tree = %v, want exactly a/b", files)
	}
}

func TestBuildTreeRejectsFileDirectoryClash(t *testing.T) {
	r := initTestRepo(t)
	idx := &Index{Version: indexFormatVersion, Entries: map[string]*IndexEntry{
		"a":   {Path: "a", BlobHash: "deadbeef", Mode: "100644"},
		"a/b": {Path: "a/b", BlobHash: "cafebabe", Mode: "100644"},
	}}
	if _, err := r.BuildTree(idx); err == nil {
		t.Fatal("BuildTree with a file/directory clash should fail, not drop entries")
	}
}

func TestBuildTreeDeterministicAndShared(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "dir/a.txt", "same\n")
	writeWorkFile(t, r, "dir/b.txt", "same\n")
	writeWorkFile(t, r, "top.txt", "t\n")

	if err := r.Add([]string{r.RootDir}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	idx, err := r.ReadIndex()
	if err != nil {
		t.Fatalf("ReadIndex failed: %v", err)
	}

	h1, err := r.BuildTree(idx)
	if err != nil {
		t.Fatalf("BuildTree failed: %v", err)
	}
	h2, err := r.BuildTree(idx)
	if err != nil {
		t.Fatalf("BuildTree failed: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("BuildTree is not deterministic: %s vs %s", h1, h2)
	}

	files, err := r.FlattenTree(h1)
	if err != nil {
		t.Fatalf("FlattenTree failed: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("got %d files, want 3", len(files))
	}
	// Identical content collapses to one blob.
	if files[0].Path != "dir/a.txt" || files[1].Path != "dir/b.txt" {
		t.Fatalf("unexpected order: %v", files)
	}
	if files[0].BlobHash != files[1].BlobHash {
		t.Fatal("identical content should share one blob")
	}
}

func TestCheckoutBranchSwitch(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "main\n")
	addAndCommit(t, r, "c1", "a.txt")
	mainTip, _ := r.ResolveRef("HEAD")

	if err := r.CreateBranch("feature", mainTip); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}
	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("Checkout feature failed: %v", err)
	}
	writeWorkFile(t, r, "b.txt", "feature\n")
	addAndCommit(t, r, "c2", "b.txt")

	if err := r.Checkout("main"); err != nil {
		t.Fatalf("Checkout main failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(r.RootDir, "b.txt")); !os.IsNotExist(err) {
		t.Fatal("b.txt should not exist on main")
	}
	if got := readWorkFile(t, r, "a.txt"); got != "main\n" {
		t.Fatalf("a.txt = %q after switching back", got)
	}

	branch, err := r.CurrentBranch()
	if err != nil || branch != "main" {
		t.Fatalf("CurrentBranch = %q, %v", branch, err)
	}
}

func TestCheckoutRefusesDirtyTree(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "v1\n")
	addAndCommit(t, r, "c1", "a.txt")
	tip, _ := r.ResolveRef("HEAD")
	if err := r.CreateBranch("other", tip); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}

	writeWorkFile(t, r, "a.txt", "dirty\n")
	if err := r.Checkout("other"); !errors.Is(err, ErrUncommittedChanges) {
		t.Fatalf("Checkout over dirty tree: got %v, want ErrUncommittedChanges", err)
	}
	if got := readWorkFile(t, r, "a.txt"); got != "dirty\n" {
		t.Fatal("refused checkout must not touch the working tree")
	}
}

func TestCheckoutRefusesUntrackedOverwrite(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "base\n")
	addAndCommit(t, r, "c1", "a.txt")
	tip, _ := r.ResolveRef("HEAD")
	if err := r.CreateBranch("feature", tip); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}

	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	writeWorkFile(t, r, "notes.txt", "committed on feature\n")
	addAndCommit(t, r, "add notes", "notes.txt")
	if err := r.Checkout("main"); err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}

	// An untracked file now occupies a path the target branch tracks.
	writeWorkFile(t, r, "notes.txt", "local only\n")
	if err := r.Checkout("feature"); !errors.Is(err, ErrUncommittedChanges) {
		t.Fatalf("checkout over untracked file: got %v, want ErrUncommittedChanges", err)
	}
	if got := readWorkFile(t, r, "notes.txt"); got != "local only\n" {
		t.Fatalf("notes.txt = %q, refused checkout must not touch it", got)
	}

	// Identical content is not data loss; the switch may proceed.
	writeWorkFile(t, r, "notes.txt", "committed on feature\n")
	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("Checkout with matching untracked content failed: %v", err)
	}
}

func TestDetachedCheckout(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "v1\n")
	addAndCommit(t, r, "c1", "a.txt")
	first, _ := r.ResolveRef("HEAD")

	writeWorkFile(t, r, "a.txt", "v2\n")
	addAndCommit(t, r, "c2", "a.txt")

	if err := r.Checkout(string(first)); err != nil {
		t.Fatalf("Checkout by hash failed: %v", err)
	}
	if got := readWorkFile(t, r, "a.txt"); got != "v1\n" {
		t.Fatalf("a.txt = %q at detached commit, want v1", got)
	}
	branch, err := r.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch failed: %v", err)
	}
	if branch != "" {
		t.Fatalf("HEAD should be detached, got branch %q", branch)
	}
}

func TestDeleteBranchGuards(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "x\n")
	addAndCommit(t, r, "c1", "a.txt")
	tip, _ := r.ResolveRef("HEAD")

	if err := r.DeleteBranch("main"); err == nil {
		t.Fatal("deleting the current branch should fail")
	}
	if err := r.DeleteBranch("ghost"); !errors.Is(err, ErrRefNotFound) {
		t.Fatalf("deleting unknown branch: got %v, want ErrRefNotFound", err)
	}

	if err := r.CreateBranch("tmp", tip); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}
	if err := r.DeleteBranch("tmp"); err != nil {
		t.Fatalf("DeleteBranch failed: %v", err)
	}
	branches, _ := r.ListBranches()
	if len(branches) != 1 || branches[0] != "main" {
		t.Fatalf("branches = %v, want [main]", branches)
	}
}

func TestConfigRemotes(t *testing.T) {
	r := initTestRepo(t)

	if err := r.SetRemote("origin", "/some/where"); err != nil {
		t.Fatalf("SetRemote failed: %v", err)
	}
	path, err := r.RemotePath("origin")
	if err != nil || path != "/some/where" {
		t.Fatalf("RemotePath = %q, %v", path, err)
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig failed: %v", err)
	}
	cfg.User.Name = "Alice"
	cfg.User.Email = "alice@example.com"
	if err := r.WriteConfig(cfg); err != nil {
		t.Fatalf("WriteConfig failed: %v", err)
	}
	if got := r.DefaultAuthor(); got != "Alice <alice@example.com>" {
		t.Fatalf("DefaultAuthor = %q", got)
	}

	if err := r.RemoveRemote("origin"); err != nil {
		t.Fatalf("RemoveRemote failed: %v", err)
	}
	if _, err := r.RemotePath("origin"); err == nil {
		t.Fatal("RemotePath after removal should fail")
	}
	if err := r.RemoveRemote("origin"); err == nil {
		t.Fatal("removing an unknown remote should fail")
	}
}

func TestMergeBase(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "base\n")
	addAndCommit(t, r, "c1", "a.txt")
	base, _ := r.ResolveRef("HEAD")

	if err := r.CreateBranch("feature", base); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}

	writeWorkFile(t, r, "a.txt", "main\n")
	addAndCommit(t, r, "c2", "a.txt")
	mainTip, _ := r.ResolveRef("HEAD")

	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	writeWorkFile(t, r, "b.txt", "feature\n")
	addAndCommit(t, r, "c3", "b.txt")
	featureTip, _ := r.ResolveRef("HEAD")

	got, err := r.MergeBase(mainTip, featureTip)
	if err != nil {
		t.Fatalf("MergeBase failed: %v", err)
	}
	if got != base {
		t.Fatalf("MergeBase = %s, want %s", got.Short(), base.Short())
	}

	if ok, _ := r.IsAncestor(base, mainTip); !ok {
		t.Fatal("base should be an ancestor of main")
	}
	if ok, _ := r.IsAncestor(mainTip, featureTip); ok {
		t.Fatal("main tip is not an ancestor of feature")
	}
}
