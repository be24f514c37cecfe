package scan

// Node is one file-system entry in a scanned tree. Directory sizes are the
// sum of their children's sizes; they are set once during the build and only
// change when the lens controller applies a delete.
type Node struct {
	ID       int     `json:"id"`
	ParentID int     `json:"parent_id"` // -1 for the root
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Size     int64   `json:"size"`
	IsDir    bool    `json:"is_dir"`
	IsBundle bool    `json:"is_bundle,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// Category derives the display category from the path extension.
func (n *Node) Category() Category {
	if n.IsBundle {
		return CategoryApp
	}
	if n.IsDir {
		return CategoryOther
	}
	return CategoryOf(n.Path)
}

// Tree is the immutable-after-build result of one scan pass: the root node
// plus a flat arena addressed by node ID.
type Tree struct {
	Root    *Node
	Files   int64
	Dirs    int64
	Skipped int // entries dropped because they could not be read

	nodes []*Node
}

// Node returns the node with the given ID, or nil if out of range.
func (t *Tree) Node(id int) *Node {
	if t == nil || id < 0 || id >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Len reports the number of nodes in the tree.
func (t *Tree) Len() int { return len(t.nodes) }

// index assigns dense IDs in depth-first order and fills the arena.
func (t *Tree) index() {
	t.nodes = t.nodes[:0]
	var walk func(n *Node, parent int)
	walk = func(n *Node, parent int) {
		n.ID = len(t.nodes)
		n.ParentID = parent
		t.nodes = append(t.nodes, n)
		for _, c := range n.Children {
			walk(c, n.ID)
		}
	}
	walk(t.Root, -1)
}
