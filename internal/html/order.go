package html

import (
	"slices"
)

// CompareTreeOrder orders a and b by their position in the tree without any
// native support: it builds both ancestor chains, finds where they diverge
// and scans the siblings at that level. A node precedes its descendants.
// Nodes from disjoint trees compare equal.
func CompareTreeOrder(a, b Node) int {
	if a == nil || b == nil || a.Handle() == b.Handle() {
		return 0
	}

	pa, pb := ancestry(a), ancestry(b)
	if pa[0].Handle() != pb[0].Handle() {
		return 0
	}

	i := 0
	for i < len(pa) && i < len(pb) && pa[i].Handle() == pb[i].Handle() {
		i++
	}
	switch {
	case i == len(pa):
		return -1 // a is an ancestor of b
	case i == len(pb):
		return 1
	}

	for s := pa[i].NextSibling(); s != nil; s = s.NextSibling() {
		if s.Handle() == pb[i].Handle() {
			return -1
		}
	}
	return 1
}

// ancestry returns the chain from the top-most ancestor down to n.
func ancestry(n Node) []Node {
	var chain []Node
	for ; n != nil; n = n.Parent() {
		chain = append(chain, n)
	}
	slices.Reverse(chain)
	return chain
}

// SortNodes sorts nodes into document order in place and removes duplicates.
// It uses the document's Comparer when available and CompareTreeOrder
// otherwise.
func SortNodes(doc Document, nodes []Node) []Node {
	if len(nodes) < 2 {
		return nodes
	}

	cmp := CompareTreeOrder
	if c, ok := doc.(Comparer); ok {
		cmp = c.Compare
	}

	slices.SortStableFunc(nodes, cmp)
	return slices.CompactFunc(nodes, func(a, b Node) bool {
		return a.Handle() == b.Handle()
	})
}
