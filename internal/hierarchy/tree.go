// Package hierarchy assembles estimate nodes into trees, rolls child totals
// up into aggregates, and decomposes workstream nodes into task children.
package hierarchy

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/diligence-engine/internal/model"
)

// Node is an estimate node with its tree links resolved.
type Node struct {
	*model.EstimateNode
	Parent   *Node
	Children []*Node
}

// Tree indexes a set of nodes by id with parent/child links attached.
type Tree struct {
	Roots []*Node
	byID  map[string]*Node
}

// Build assembles a flat node list into a tree. A child referencing a
// missing parent is logged and treated as a root, never dropped. Children
// are ordered by display order, and children_ids are rewritten to match the
// attached children so the hierarchy fields stay mutually consistent.
func Build(flat []*model.EstimateNode) *Tree {
	t := &Tree{byID: make(map[string]*Node, len(flat))}

	for _, en := range flat {
		t.byID[en.ID] = &Node{EstimateNode: en}
	}

	for _, n := range t.byID {
		if n.ParentID == "" {
			t.Roots = append(t.Roots, n)
			continue
		}
		parent, ok := t.byID[n.ParentID]
		if !ok {
			zap.L().Warn("hierarchy: node references missing parent, treating as root",
				zap.String("id", n.ID),
				zap.String("parent_id", n.ParentID),
				zap.String("workstream", n.Workstream),
			)
			t.Roots = append(t.Roots, n)
			continue
		}
		n.Parent = parent
		parent.Children = append(parent.Children, n)
	}

	for _, n := range t.byID {
		sortByDisplayOrder(n.Children)
		ids := make([]string, len(n.Children))
		for i, c := range n.Children {
			ids[i] = c.ID
		}
		n.ChildrenIDs = ids
	}
	sortByDisplayOrder(t.Roots)

	return t
}

func sortByDisplayOrder(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].DisplayOrder < nodes[j].DisplayOrder
	})
}

// Get returns the node with the given id, or nil.
func (t *Tree) Get(id string) *Node {
	return t.byID[id]
}

// PathToRoot returns the chain from the root down to the target node,
// inclusive. Nil if the id is unknown.
func (t *Tree) PathToRoot(id string) []*Node {
	n := t.byID[id]
	if n == nil {
		return nil
	}
	var chain []*Node
	for cur := n; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	// Reverse into root-first order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Descendants returns every node beneath id in depth-first preorder.
func (t *Tree) Descendants(id string) []*Node {
	n := t.byID[id]
	if n == nil {
		return nil
	}
	var out []*Node
	var walk func(*Node)
	walk = func(cur *Node) {
		for _, c := range cur.Children {
			out = append(out, c)
			walk(c)
		}
	}
	walk(n)
	return out
}
