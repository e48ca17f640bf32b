package keyspace

import (
	"sort"
	"strings"

	"github.com/cuemby/kvdeck/pkg/types"
)

// DefaultDelimiter separates key segments
const DefaultDelimiter = "/"

// Node is one segment of the key tree. A node may carry a record and
// children at the same time when a key is also a prefix of other keys.
type Node struct {
	Segment  string
	FullPath string
	Children map[string]*Node

	// Record is set when FullPath is itself a key
	Record *types.KeyRecord
}

// IsDirectory reports whether the node is structural: it has children
// or no key of its own
func (n *Node) IsDirectory() bool {
	return len(n.Children) > 0 || n.Record == nil
}

// IsDual reports whether the node is both a key and a prefix of other keys
func (n *Node) IsDual() bool {
	return len(n.Children) > 0 && n.Record != nil
}

// SortedChildren returns the children ordered by segment
func (n *Node) SortedChildren() []*Node {
	children := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		children = append(children, c)
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Segment < children[j].Segment })
	return children
}

// Walk visits n and its descendants depth-first in segment order. The
// root is visited at depth 0. Returning false skips the node's children.
func (n *Node) Walk(fn func(node *Node, depth int) bool) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(*Node, int) bool, depth int) {
	if !fn(n, depth) {
		return
	}
	for _, c := range n.SortedChildren() {
		c.walk(fn, depth+1)
	}
}

// Count returns the number of records at or below n
func (n *Node) Count() int {
	count := 0
	n.Walk(func(node *Node, _ int) bool {
		if node.Record != nil {
			count++
		}
		return true
	})
	return count
}

func (n *Node) child(segment, fullPath string) *Node {
	if n.Children == nil {
		n.Children = make(map[string]*Node)
	}
	c, ok := n.Children[segment]
	if !ok {
		c = &Node{Segment: segment, FullPath: fullPath}
		n.Children[segment] = c
	}
	return c
}

// Tree is the hierarchical projection of a flat key set. Keys starting
// with the delimiter hang off Root; any other key hangs off Unrooted,
// whose first-level nodes have FullPath equal to their segment.
type Tree struct {
	Delimiter string
	Root      *Node
	Unrooted  *Node
}

// BuildTree projects records into a tree. It is a pure function of its
// input: every record lands at exactly one node whose FullPath equals
// the record key. One leading delimiter is stripped before splitting and
// empty segments are kept, so "/a//b" and "/a/" reconstruct exactly.
func BuildTree(records []types.KeyRecord, delim string) *Tree {
	if delim == "" {
		delim = DefaultDelimiter
	}

	t := &Tree{
		Delimiter: delim,
		Root:      &Node{},
		Unrooted:  &Node{},
	}

	for i := range records {
		rec := records[i]
		node := t.insert(rec.Key)
		node.Record = &rec
	}
	return t
}

func (t *Tree) insert(key string) *Node {
	if rest, ok := strings.CutPrefix(key, t.Delimiter); ok {
		node := t.Root
		for _, seg := range strings.Split(rest, t.Delimiter) {
			node = node.child(seg, node.FullPath+t.Delimiter+seg)
		}
		return node
	}

	segments := strings.Split(key, t.Delimiter)
	node := t.Unrooted.child(segments[0], segments[0])
	for _, seg := range segments[1:] {
		node = node.child(seg, node.FullPath+t.Delimiter+seg)
	}
	return node
}

// Find returns the node whose FullPath is path, or nil
func (t *Tree) Find(path string) *Node {
	if path == "" {
		return t.Root
	}

	var node *Node
	var segments []string
	if rest, ok := strings.CutPrefix(path, t.Delimiter); ok {
		node = t.Root
		segments = strings.Split(rest, t.Delimiter)
	} else {
		node = t.Unrooted
		segments = strings.Split(path, t.Delimiter)
	}

	for _, seg := range segments {
		next, ok := node.Children[seg]
		if !ok {
			return nil
		}
		node = next
	}
	return node
}

// Len returns the number of records in the tree
func (t *Tree) Len() int {
	return t.Root.Count() + t.Unrooted.Count()
}

// Records returns every record in the tree in key order
func (t *Tree) Records() []types.KeyRecord {
	var records []types.KeyRecord
	collect := func(node *Node, _ int) bool {
		if node.Record != nil {
			records = append(records, *node.Record)
		}
		return true
	}
	t.Root.Walk(collect)
	t.Unrooted.Walk(collect)

	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records
}
