package scan

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
)

func testProfile() *Profile {
	return &Profile{
		SkipHidden:   true,
		ApparentSize: true, // deterministic sizes regardless of block allocation
		IsBundle:     BundleByExtension,
	}
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{'x'}, size), 0o644); err != nil {
		t.Fatal(err)
	}
}

func build(t *testing.T, root string, progress Progress) *Tree {
	t.Helper()
	tree, err := NewScanner(testProfile(), 1).Build(context.Background(), root, progress)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return tree
}

// checkSizes verifies size(dir) == sum(children) recursively.
func checkSizes(t *testing.T, n *Node) {
	t.Helper()
	if !n.IsDir || n.IsBundle {
		return
	}
	var sum int64
	for _, c := range n.Children {
		sum += c.Size
		checkSizes(t, c)
	}
	if n.Size != sum {
		t.Errorf("%s: size %d != sum of children %d", n.Path, n.Size, sum)
	}
}

// checkSorted verifies children are size-descending, name-ascending on ties.
func checkSorted(t *testing.T, n *Node) {
	t.Helper()
	for i := 1; i < len(n.Children); i++ {
		a, b := n.Children[i-1], n.Children[i]
		if a.Size < b.Size || (a.Size == b.Size && a.Name > b.Name) {
			t.Errorf("%s: children out of order at %d: %q(%d) before %q(%d)",
				n.Path, i, a.Name, a.Size, b.Name, b.Size)
		}
	}
	for _, c := range n.Children {
		checkSorted(t, c)
	}
}

func TestBuildAggregatesAndSorts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "X", "a.txt"), 10)
	writeFile(t, filepath.Join(dir, "X", "b.txt"), 20)
	writeFile(t, filepath.Join(dir, "X", "c.txt"), 30)
	writeFile(t, filepath.Join(dir, "Y", "deep", "d.txt"), 5)

	tree := build(t, dir, nil)
	if tree.Root.Size != 65 {
		t.Fatalf("root size = %d, want 65", tree.Root.Size)
	}
	checkSizes(t, tree.Root)
	checkSorted(t, tree.Root)

	x := tree.Root.Children[0]
	if x.Name != "X" || x.Size != 60 {
		t.Fatalf("largest child = %q(%d), want X(60)", x.Name, x.Size)
	}
	want := []int64{30, 20, 10}
	for i, c := range x.Children {
		if c.Size != want[i] {
			t.Errorf("X child %d size = %d, want %d", i, c.Size, want[i])
		}
	}
	if tree.Files != 4 || tree.Dirs != 4 {
		t.Errorf("counts files=%d dirs=%d, want 4 and 4", tree.Files, tree.Dirs)
	}
}

func TestEqualSizesSortedByName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bbb"), 10)
	writeFile(t, filepath.Join(dir, "aaa"), 10)
	writeFile(t, filepath.Join(dir, "ccc"), 10)

	tree := build(t, dir, nil)
	got := []string{}
	for _, c := range tree.Root.Children {
		got = append(got, c.Name)
	}
	want := []string{"aaa", "bbb", "ccc"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("children = %v, want %v", got, want)
		}
	}
}

func TestSkipsHiddenAndSymlinks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "kept"), 10)
	writeFile(t, filepath.Join(dir, ".hidden"), 100)
	writeFile(t, filepath.Join(dir, ".hiddendir", "f"), 100)
	if err := os.Symlink(filepath.Join(dir, "kept"), filepath.Join(dir, "link")); err != nil {
		t.Skipf("symlink: %v", err)
	}

	tree := build(t, dir, nil)
	if tree.Root.Size != 10 {
		t.Fatalf("root size = %d, want 10", tree.Root.Size)
	}
	if len(tree.Root.Children) != 1 || tree.Root.Children[0].Name != "kept" {
		t.Fatalf("children = %+v, want only 'kept'", tree.Root.Children)
	}
}

func TestBundleIsOpaque(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Demo.app", "Contents", "bin"), 7)
	writeFile(t, filepath.Join(dir, "Demo.app", "Info.plist"), 5)
	writeFile(t, filepath.Join(dir, "other"), 1)

	tree := build(t, dir, nil)
	var bundle *Node
	for _, c := range tree.Root.Children {
		if c.Name == "Demo.app" {
			bundle = c
		}
	}
	if bundle == nil {
		t.Fatal("Demo.app not found")
	}
	if !bundle.IsBundle || !bundle.IsDir {
		t.Errorf("bundle flags = IsBundle:%v IsDir:%v", bundle.IsBundle, bundle.IsDir)
	}
	if len(bundle.Children) != 0 {
		t.Errorf("bundle exposes %d children, want 0", len(bundle.Children))
	}
	if bundle.Size != 12 {
		t.Errorf("bundle size = %d, want 12", bundle.Size)
	}
	if bundle.Category() != CategoryApp {
		t.Errorf("bundle category = %q, want app", bundle.Category())
	}
	if tree.Files != 1 || tree.Dirs != 2 {
		t.Errorf("counts files=%d dirs=%d, want 1 and 2 (a bundle is a directory)", tree.Files, tree.Dirs)
	}
	checkSizes(t, tree.Root)
}

func TestHardlinkCountedOnce(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no inode keys on windows")
	}
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "orig"), 100)
	if err := os.Link(filepath.Join(dir, "orig"), filepath.Join(dir, "copy")); err != nil {
		t.Skipf("link: %v", err)
	}

	tree := build(t, dir, nil)
	if tree.Root.Size != 100 {
		t.Fatalf("root size = %d, want 100 (hardlink counted twice?)", tree.Root.Size)
	}
	if len(tree.Root.Children) != 1 {
		t.Fatalf("children = %d, want 1", len(tree.Root.Children))
	}
}

func TestMinFileSizeFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "small"), 10)
	writeFile(t, filepath.Join(dir, "big"), 1000)

	p := testProfile()
	p.MinFileSize = 100
	tree, err := NewScanner(p, 1).Build(context.Background(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Root.Children) != 1 || tree.Root.Children[0].Name != "big" {
		t.Fatalf("children = %+v, want only 'big'", tree.Root.Children)
	}
}

func TestUnreadableSubdirSkippedAndCounted(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("directory permission bits are not enforced on windows")
	}
	if os.Geteuid() == 0 {
		t.Skip("root bypasses directory permissions")
	}
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "open", "f"), 10)
	writeFile(t, filepath.Join(dir, "locked", "g"), 100)
	locked := filepath.Join(dir, "locked")
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	tree := build(t, dir, nil)
	if tree.Skipped == 0 {
		t.Error("skipped = 0, want > 0")
	}
	if tree.Root.Size != 10 {
		t.Errorf("root size = %d, want 10 (unreadable subtree must contribute nothing)", tree.Root.Size)
	}
	var lockedNode *Node
	for _, c := range tree.Root.Children {
		if c.Name == "locked" {
			lockedNode = c
		}
	}
	if lockedNode == nil {
		t.Fatal("locked directory missing from tree")
	}
	if lockedNode.Size != 0 || len(lockedNode.Children) != 0 {
		t.Errorf("locked dir size=%d children=%d, want 0 and 0", lockedNode.Size, len(lockedNode.Children))
	}
	checkSizes(t, tree.Root)
}

// failingEntry stands in for a directory entry whose stat fails, e.g. a file
// removed between ReadDir and Info or a stale network handle.
type failingEntry struct {
	name string
	err  error
}

func (e failingEntry) Name() string               { return e.name }
func (e failingEntry) IsDir() bool                { return false }
func (e failingEntry) Type() fs.FileMode          { return 0 }
func (e failingEntry) Info() (fs.FileInfo, error) { return nil, e.err }

func TestStatFailureCountsSkipped(t *testing.T) {
	s := NewScanner(testProfile(), 1)
	st := newWalkState()
	if _, ok := s.fileSize(failingEntry{name: "gone", err: errors.New("stale handle")}, st); ok {
		t.Fatal("fileSize reported ok for a failed stat")
	}
	if st.skipped != 1 {
		t.Fatalf("skipped = %d, want 1", st.skipped)
	}
}

func TestRootNotFound(t *testing.T) {
	_, err := NewScanner(testProfile(), 1).Build(context.Background(), filepath.Join(t.TempDir(), "nope"), nil)
	var se *ScanError
	if !errors.As(err, &se) || se.Kind != KindNotFound {
		t.Fatalf("err = %v, want ScanError{KindNotFound}", err)
	}
}

func TestRootNotADirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "file"), 1)
	_, err := NewScanner(testProfile(), 1).Build(context.Background(), filepath.Join(dir, "file"), nil)
	var se *ScanError
	if !errors.As(err, &se) || se.Kind != KindNotFound {
		t.Fatalf("err = %v, want ScanError{KindNotFound}", err)
	}
}

func TestCancelledScanEmitsNothing(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 10; i++ {
		writeFile(t, filepath.Join(dir, "sub", string(rune('a'+i))), 10)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := NewScanner(testProfile(), 1).Build(ctx, dir, func(float64, string) { calls++ })
	var se *ScanError
	if !errors.As(err, &se) || se.Kind != KindCancelled {
		t.Fatalf("err = %v, want ScanError{KindCancelled}", err)
	}
	if calls != 0 {
		t.Errorf("progress called %d times after cancel, want 0", calls)
	}
}

func TestProgressMonotonicFinalOne(t *testing.T) {
	dir := t.TempDir()
	for _, sub := range []string{"a", "b", "c", "d"} {
		writeFile(t, filepath.Join(dir, sub, "f1"), 10)
		writeFile(t, filepath.Join(dir, sub, "f2"), 10)
	}

	var mu sync.Mutex
	var fractions []float64
	build(t, dir, func(f float64, _ string) {
		mu.Lock()
		fractions = append(fractions, f)
		mu.Unlock()
	})

	if len(fractions) == 0 {
		t.Fatal("no progress callbacks")
	}
	for i := 1; i < len(fractions); i++ {
		if fractions[i] < fractions[i-1] {
			t.Fatalf("fractions not monotonic at %d: %v", i, fractions)
		}
	}
	if last := fractions[len(fractions)-1]; last != 1.0 {
		t.Fatalf("final fraction = %v, want exactly 1.0", last)
	}
}

func TestTreeArena(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a", "b", "f"), 10)

	tree := build(t, dir, nil)
	if tree.Root.ID != 0 || tree.Root.ParentID != -1 {
		t.Fatalf("root id/parent = %d/%d", tree.Root.ID, tree.Root.ParentID)
	}
	if tree.Len() != 4 {
		t.Fatalf("arena len = %d, want 4", tree.Len())
	}
	for id := 0; id < tree.Len(); id++ {
		n := tree.Node(id)
		if n == nil || n.ID != id {
			t.Fatalf("arena mismatch at %d", id)
		}
		if n.ParentID >= 0 {
			parent := tree.Node(n.ParentID)
			found := false
			for _, c := range parent.Children {
				if c == n {
					found = true
				}
			}
			if !found {
				t.Fatalf("%s not among parent's children", n.Path)
			}
		}
	}
	if tree.Node(-1) != nil || tree.Node(tree.Len()) != nil {
		t.Fatal("out-of-range lookup should return nil")
	}
}

func TestCategoryOf(t *testing.T) {
	cases := []struct {
		path string
		want Category
	}{
		{"/x/report.PDF", CategoryDocument},
		{"/x/pic.jpeg", CategoryImage},
		{"/x/clip.mov", CategoryVideo},
		{"/x/song.flac", CategoryAudio},
		{"/x/backup.tar", CategoryArchive},
		{"/x/Tool.app", CategoryApp},
		{"/x/unknown.zzz", CategoryOther},
		{"/x/noext", CategoryOther},
	}
	for _, c := range cases {
		if got := CategoryOf(c.path); got != c.want {
			t.Errorf("CategoryOf(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}
