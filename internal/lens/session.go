// Package lens owns a Space Lens browsing session: the tree from the most
// recent scan, the breadcrumb trail, and trash-backed deletion with size
// propagation. All methods serialize on one mutex; the session is the single
// owner of its tree.
package lens

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"spacelens/internal/platform"
	"spacelens/internal/scan"
	"spacelens/internal/treemap"
)

// State is the session lifecycle: Idle until a scan succeeds, Scanning while
// the builder runs, Browsing once breadcrumbs exist.
type State int

const (
	Idle State = iota
	Scanning
	Browsing
)

func (s State) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case Browsing:
		return "browsing"
	default:
		return "idle"
	}
}

var (
	ErrScanInProgress = errors.New("a scan is already running")
	ErrNoScan         = errors.New("no completed scan")
	ErrNotDirectory   = errors.New("not a navigable directory")
	ErrNotInTree      = errors.New("node is not reachable from the current directory")
	ErrNotChild       = errors.New("node is not a child of the current directory")
)

// DeleteError reports a failed move to trash. The tree is untouched when it
// is returned.
type DeleteError struct {
	Path string
	Err  error
}

func (e *DeleteError) Error() string { return fmt.Sprintf("move %s to trash: %v", e.Path, e.Err) }
func (e *DeleteError) Unwrap() error { return e.Err }

// Item is a value snapshot of one tree node, copied while the session lock
// is held. Deletes mutate live node sizes under the lock; an Item already
// handed out never changes, so callers may read it freely.
type Item struct {
	ID       int           `json:"id"`
	Name     string        `json:"name"`
	Path     string        `json:"path"`
	Size     int64         `json:"size"`
	IsDir    bool          `json:"is_dir"`
	IsBundle bool          `json:"is_bundle,omitempty"`
	Category scan.Category `json:"category"`
}

func snapshot(n *scan.Node) Item {
	return Item{
		ID:       n.ID,
		Name:     n.Name,
		Path:     n.Path,
		Size:     n.Size,
		IsDir:    n.IsDir,
		IsBundle: n.IsBundle,
		Category: n.Category(),
	}
}

// Trasher moves a file-system entry to the OS trash.
type Trasher interface {
	MoveToTrash(path string) error
}

type osTrasher struct{}

func (osTrasher) MoveToTrash(path string) error { return platform.Impl.MoveToTrash(path) }

// Session holds one Space Lens invocation's state. A new scan discards the
// previous tree entirely; there is no incremental rescan.
type Session struct {
	mu       sync.Mutex
	state    State
	tree     *scan.Tree
	crumbs   []*scan.Node
	cancel   context.CancelFunc
	trash    Trasher
	maxItems int
}

// NewSession returns an Idle session. A nil trasher uses the platform trash.
func NewSession(trash Trasher) *Session {
	if trash == nil {
		trash = osTrasher{}
	}
	return &Session{trash: trash, maxItems: treemap.DefaultMaxItems}
}

// SetMaxItems overrides the per-directory treemap item cap.
func (s *Session) SetMaxItems(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.maxItems = n
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tree returns the current tree, nil before the first successful scan.
func (s *Session) Tree() *scan.Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree
}

// Scan builds a fresh tree rooted at path, blocking until done. On success
// the session enters Browsing with breadcrumbs [root]; on failure or
// cancellation it returns to Idle and the old tree stays discarded.
func (s *Session) Scan(ctx context.Context, path string, p *scan.Profile, workers int, progress scan.Progress) (*scan.Tree, error) {
	s.mu.Lock()
	if s.state == Scanning {
		s.mu.Unlock()
		return nil, ErrScanInProgress
	}
	ctx, cancel := context.WithCancel(ctx)
	s.state = Scanning
	s.cancel = cancel
	s.tree = nil
	s.crumbs = nil
	s.mu.Unlock()

	tree, err := scan.NewScanner(p, workers).Build(ctx, path, progress)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = nil
	cancel()
	if err != nil {
		s.state = Idle
		return nil, err
	}
	s.state = Browsing
	s.tree = tree
	s.crumbs = []*scan.Node{tree.Root}
	return tree, nil
}

// Cancel aborts a running scan. Safe to call at any time, any number of
// times; a session with no scan in flight is unaffected.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Current returns the directory being viewed, nil unless Browsing.
func (s *Session) Current() *scan.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

func (s *Session) currentLocked() *scan.Node {
	if s.state != Browsing || len(s.crumbs) == 0 {
		return nil
	}
	return s.crumbs[len(s.crumbs)-1]
}

// Breadcrumbs returns a snapshot of the root-to-current trail.
func (s *Session) Breadcrumbs() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, len(s.crumbs))
	for i, b := range s.crumbs {
		out[i] = snapshot(b)
	}
	return out
}

// DrillDown navigates into node. Re-clicking a breadcrumb entry truncates
// the trail back to it; any other target must be a directory reachable from
// the current one and is appended.
func (s *Session) DrillDown(node *scan.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Browsing {
		return ErrNoScan
	}
	if node == nil || !node.IsDir || node.IsBundle {
		return ErrNotDirectory
	}
	for i, b := range s.crumbs {
		if b == node {
			s.crumbs = s.crumbs[:i+1]
			return nil
		}
	}
	cur := s.crumbs[len(s.crumbs)-1]
	if !s.descendsFrom(node, cur) {
		return ErrNotInTree
	}
	s.crumbs = append(s.crumbs, node)
	return nil
}

func (s *Session) descendsFrom(node, ancestor *scan.Node) bool {
	for p := s.tree.Node(node.ParentID); p != nil; p = s.tree.Node(p.ParentID) {
		if p == ancestor {
			return true
		}
	}
	return false
}

// Up pops one breadcrumb; a no-op at the root.
func (s *Session) Up() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Browsing && len(s.crumbs) > 1 {
		s.crumbs = s.crumbs[:len(s.crumbs)-1]
	}
}

// Delete moves a direct child of the current directory to the OS trash, then
// removes it and propagates the size decrease up the breadcrumb chain. A
// failed trash move leaves the tree exactly as it was.
func (s *Session) Delete(node *scan.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Browsing {
		return ErrNoScan
	}
	cur := s.crumbs[len(s.crumbs)-1]
	idx := -1
	for i, c := range cur.Children {
		if c == node {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotChild
	}

	if err := s.trash.MoveToTrash(node.Path); err != nil {
		return &DeleteError{Path: node.Path, Err: err}
	}

	cur.Children = append(cur.Children[:idx], cur.Children[idx+1:]...)
	for _, b := range s.crumbs {
		b.Size -= node.Size
	}
	return nil
}

// Layout lays out the current directory's children.
func (s *Session) Layout(width, height float64) ([]treemap.Rect, []Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.currentLocked()
	if cur == nil {
		return nil, nil
	}
	return s.layoutChildren(cur, width, height)
}

// LayoutNode lays out the children of an arbitrary tree node by ID.
func (s *Session) LayoutNode(id int, width, height float64) ([]treemap.Rect, []Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Browsing {
		return nil, nil, ErrNoScan
	}
	n := s.tree.Node(id)
	if n == nil {
		return nil, nil, ErrNotInTree
	}
	rects, nodes := s.layoutChildren(n, width, height)
	return rects, nodes, nil
}

// layoutChildren snapshots the positive-size children (already size-sorted)
// up to the item cap, so the returned rectangles and items correspond
// positionally. The layout engine sees sizes only; it retains nothing.
func (s *Session) layoutChildren(n *scan.Node, width, height float64) ([]treemap.Rect, []Item) {
	kids := make([]Item, 0, len(n.Children))
	sizes := make([]int64, 0, len(n.Children))
	for _, c := range n.Children {
		if c.Size <= 0 {
			continue
		}
		kids = append(kids, snapshot(c))
		sizes = append(sizes, c.Size)
		if len(kids) == s.maxItems {
			break
		}
	}
	rects := treemap.Layout(sizes, treemap.Rect{W: width, H: height}, treemap.Options{MaxItems: s.maxItems})
	if len(rects) < len(kids) {
		kids = kids[:len(rects)]
	}
	return rects, kids
}
