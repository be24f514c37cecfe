package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"spacelens/internal/platform"
)

// Progress receives a monotonically non-decreasing fraction in [0, 1] and
// the most recently visited path. Calls are batched; the final call for a
// successful scan reports exactly 1.0. A cancelled scan stops calling back.
type Progress func(fraction float64, path string)

// progressBatch bounds how often intra-subtree visits surface a callback.
const progressBatch = 256

// cancelCheckStride bounds cancellation latency inside large directories.
const cancelCheckStride = 64

// Scanner walks a directory tree and produces a Tree.
type Scanner struct {
	profile    *Profile
	sem        chan struct{} // worker tokens
	maxWorkers int
}

// NewScanner(maxWorkers<=0 => sensible default)
func NewScanner(p *Profile, maxWorkers int) *Scanner {
	if p == nil {
		p = DefaultProfile()
	}
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU() * 4 // good starting point for NVMe; tune for HDDs
	}
	return &Scanner{profile: p, sem: make(chan struct{}, maxWorkers), maxWorkers: maxWorkers}
}

// rawEntry is one enumerated file-system entry. Entries are grouped into a
// parent-path multimap as they are found; the tree is synthesized from that
// grouping after enumeration finishes, so aggregation never depends on
// traversal order.
type rawEntry struct {
	name     string
	path     string
	size     int64
	isDir    bool
	isBundle bool
}

type walkState struct {
	mu       sync.Mutex
	byParent map[string][]rawEntry
	seen     map[platform.InodeKey]struct{}
	skipped  int
}

func newWalkState() *walkState {
	return &walkState{
		byParent: make(map[string][]rawEntry),
		seen:     make(map[platform.InodeKey]struct{}),
	}
}

func (st *walkState) add(dir string, batch []rawEntry) {
	if len(batch) == 0 {
		return
	}
	st.mu.Lock()
	st.byParent[dir] = append(st.byParent[dir], batch...)
	st.mu.Unlock()
}

func (st *walkState) skip() {
	st.mu.Lock()
	st.skipped++
	st.mu.Unlock()
}

// firstSeen reports whether the inode key is new, recording it. Multi-linked
// files are thereby counted once per scan.
func (st *walkState) firstSeen(k platform.InodeKey) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.seen[k]; ok {
		return false
	}
	st.seen[k] = struct{}{}
	return true
}

// progressSink batches and serializes progress callbacks. The fraction is
// the share of finished top-level subtrees, so it never decreases, and no
// callback escapes after the scan's context is cancelled.
type progressSink struct {
	ctx      context.Context
	fn       Progress
	mu       sync.Mutex
	total    int
	done     int
	seen     int
	lastEmit float64
}

func newProgressSink(ctx context.Context, fn Progress) *progressSink {
	return &progressSink{ctx: ctx, fn: fn}
}

func (p *progressSink) setTotal(n int) {
	p.mu.Lock()
	p.total = n
	p.mu.Unlock()
}

func (p *progressSink) fraction() float64 {
	if p.total <= 0 {
		return 0
	}
	f := float64(p.done) / float64(p.total)
	if f > 1 {
		f = 1
	}
	return f
}

func (p *progressSink) visit(path string) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx.Err() != nil {
		return
	}
	p.seen++
	if p.seen%progressBatch != 0 {
		return
	}
	p.fn(p.fraction(), path)
}

func (p *progressSink) entryDone(path string) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx.Err() != nil {
		return
	}
	p.done++
	// Flat roots finish one entry per file; only surface whole-percent steps.
	f := p.fraction()
	if f-p.lastEmit >= 0.01 || p.done == p.total {
		p.lastEmit = f
		p.fn(f, path)
	}
}

func (p *progressSink) finish(path string) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx.Err() != nil {
		return
	}
	p.fn(1, path)
}

// Build scans root and returns the aggregated tree. The root must be a
// readable directory; anything else fails with a *ScanError. Unreadable
// descendants are skipped and counted, never fatal. Cancelling ctx aborts
// promptly with KindCancelled and no partial tree.
func (s *Scanner) Build(ctx context.Context, root string, progress Progress) (*Tree, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, classify(root, err)
	}
	abs = platform.Impl.Canonicalize(abs)

	fi, err := os.Lstat(abs)
	if err != nil {
		return nil, classify(abs, err)
	}
	if !fi.IsDir() {
		return nil, &ScanError{Kind: KindNotFound, Path: abs, Err: errors.New("not a directory")}
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, classify(abs, err)
	}

	st := newWalkState()
	sink := newProgressSink(ctx, progress)

	kept := 0
	for _, de := range entries {
		if s.keep(abs, de) {
			kept++
		}
	}
	sink.setTotal(kept)

	s.walkDir(ctx, abs, entries, st, sink, sink.entryDone)

	if err := ctx.Err(); err != nil {
		return nil, &ScanError{Kind: KindCancelled, Path: abs, Err: err}
	}

	tree := &Tree{Skipped: st.skipped}
	tree.Root = synthesize(abs, platform.Impl.BaseName(abs), st.byParent, tree)
	tree.index()
	sink.finish(abs)
	return tree, nil
}

// keep applies the profile's traversal policy to one directory entry.
func (s *Scanner) keep(dir string, de os.DirEntry) bool {
	name := de.Name()
	if de.Type()&os.ModeSymlink != 0 {
		return false
	}
	if s.profile.SkipHidden && isHidden(name) {
		return false
	}
	full := filepath.Join(dir, name)
	if shouldExclude(s.profile, full) {
		return false
	}
	if s.profile.SkipNetworkFS && de.IsDir() && platform.Impl.IsLikelyNetworkFS(full) {
		return false
	}
	return true
}

// walkDir enumerates one directory level, collecting raw entries and
// recursing into subdirectories in parallel, bounded by s.sem. entryDone is
// non-nil only for the root call and fires once per kept root entry.
func (s *Scanner) walkDir(ctx context.Context, dir string, entries []os.DirEntry, st *walkState, sink *progressSink, entryDone func(string)) {
	batch := make([]rawEntry, 0, len(entries))
	var subdirs []string

	for i, de := range entries {
		if i%cancelCheckStride == 0 && ctx.Err() != nil {
			return
		}
		if !s.keep(dir, de) {
			continue
		}
		name := de.Name()
		full := filepath.Join(dir, name)
		sink.visit(full)

		if de.IsDir() {
			if s.profile.IsBundle != nil && s.profile.IsBundle(name) {
				size := s.bundleSize(ctx, full, st, sink)
				batch = append(batch, rawEntry{name: name, path: full, size: size, isDir: true, isBundle: true})
				if entryDone != nil {
					entryDone(full)
				}
				continue
			}
			batch = append(batch, rawEntry{name: name, path: full, isDir: true})
			subdirs = append(subdirs, full)
			continue
		}

		size, ok := s.fileSize(de, st)
		if !ok {
			if entryDone != nil {
				entryDone(full)
			}
			continue
		}
		batch = append(batch, rawEntry{name: name, path: full, size: size})
		if entryDone != nil {
			entryDone(full)
		}
	}

	st.add(dir, batch)

	if len(subdirs) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, sd := range subdirs {
		run := func(p string) {
			s.walkPath(ctx, p, st, sink)
			if entryDone != nil {
				entryDone(p)
			}
		}
		// Try to acquire a worker without blocking; recurse synchronously
		// when the pool is full to avoid deadlock.
		select {
		case s.sem <- struct{}{}:
			wg.Add(1)
			go func(p string) {
				defer wg.Done()
				defer func() { <-s.sem }()
				run(p)
			}(sd)
		default:
			run(sd)
		}
	}
	wg.Wait()
}

// walkPath reads and walks one subdirectory; unreadable directories are
// recorded as skipped and contribute an empty child set.
func (s *Scanner) walkPath(ctx context.Context, dir string, st *walkState, sink *progressSink) {
	if ctx.Err() != nil {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		st.skip()
		return
	}
	s.walkDir(ctx, dir, entries, st, sink, nil)
}

// fileSize resolves one regular file's contribution; ok is false when the
// entry should not appear in the tree at all.
func (s *Scanner) fileSize(de os.DirEntry, st *walkState) (int64, bool) {
	info, err := de.Info()
	if err != nil {
		// Vanished or unstatable entries still count toward the
		// limited-scan notice.
		st.skip()
		return 0, false
	}
	if !info.Mode().IsRegular() {
		return 0, false
	}
	if key, ok := platform.Impl.InodeKeyOf(info); ok && !st.firstSeen(key) {
		return 0, false
	}
	size := info.Size()
	if !s.profile.ApparentSize {
		size = platform.Impl.AllocatedSize(info)
	}
	if s.profile.MinFileSize > 0 && size < s.profile.MinFileSize {
		return 0, false
	}
	return size, true
}

// bundleSize totals an opaque bundle's contents without exposing them.
func (s *Scanner) bundleSize(ctx context.Context, dir string, st *walkState, sink *progressSink) int64 {
	entries, err := os.ReadDir(dir)
	if err != nil {
		st.skip()
		return 0
	}
	var total int64
	for i, de := range entries {
		if i%cancelCheckStride == 0 && ctx.Err() != nil {
			return total
		}
		if de.Type()&os.ModeSymlink != 0 {
			continue
		}
		full := filepath.Join(dir, de.Name())
		sink.visit(full)
		if de.IsDir() {
			total += s.bundleSize(ctx, full, st, sink)
			continue
		}
		if size, ok := s.fileSize(de, st); ok {
			total += size
		}
	}
	return total
}

// synthesize builds the node tree post-order from the parent-path multimap,
// aggregating directory sizes bottom-up and sorting children by size
// descending, name ascending.
func synthesize(path, name string, byParent map[string][]rawEntry, tree *Tree) *Node {
	tree.Dirs++
	n := &Node{Name: name, Path: path, IsDir: true}
	ents := byParent[path]
	if len(ents) == 0 {
		return n
	}

	children := make([]*Node, 0, len(ents))
	for _, e := range ents {
		if e.isDir && !e.isBundle {
			children = append(children, synthesize(e.path, e.name, byParent, tree))
			continue
		}
		if e.isBundle {
			tree.Dirs++
		} else {
			tree.Files++
		}
		children = append(children, &Node{
			Name:     e.name,
			Path:     e.path,
			Size:     e.size,
			IsDir:    e.isDir,
			IsBundle: e.isBundle,
		})
	}

	var total int64
	for _, c := range children {
		total += c.Size
	}
	sort.Slice(children, func(i, j int) bool {
		if children[i].Size != children[j].Size {
			return children[i].Size > children[j].Size
		}
		return children[i].Name < children[j].Name
	})

	n.Size = total
	n.Children = children
	return n
}
