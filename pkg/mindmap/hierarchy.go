package mindmap

// Hierarchy is the result of resolving a graph: the inferred root, a
// spanning forest used for layout and the nodes the root cannot reach.
type Hierarchy struct {
	RootID  string
	Index   AdjacencyIndex
	Orphans []string
	// Cyclic is set when the edges contain at least one directed cycle.
	Cyclic bool
	// Retyped lists nodes whose explicit type or level was overridden so the
	// root is the only main node.
	Retyped []string

	// heads holds the root followed by one entry per orphan component.
	heads []string
	// tree holds the spanning-forest children; every node has at most one
	// tree parent even when several edges point at it.
	tree   map[string][]string
	inTree map[string]bool
}

// Heads returns the root followed by the first node of every orphan
// component, in placement order.
func (h *Hierarchy) Heads() []string {
	return append([]string(nil), h.heads...)
}

// TreeChildren returns the children of id in the spanning forest.
func (h *Hierarchy) TreeChildren(id string) []string {
	return h.tree[id]
}

// IsOrphan reports whether id is unreachable from the root.
func (h *Hierarchy) IsOrphan(id string) bool {
	for _, o := range h.Orphans {
		if o == id {
			return true
		}
	}
	return false
}

// Resolve infers the root and assigns a type and level to every node that
// did not carry an explicit one. It mutates the nodes of g in place. The
// root always ends as the only main node at level 0; explicit values that
// contradict this are overridden and listed in Retyped.
//
// A single node explicitly typed main is taken as the root. Otherwise the
// parent with the most children wins, then node "1", then the first node.
func Resolve(g *Graph) *Hierarchy {
	h := &Hierarchy{
		Index:  BuildAdjacency(g),
		tree:   make(map[string][]string),
		inTree: make(map[string]bool),
	}
	if g.Len() == 0 {
		return h
	}
	h.RootID = inferRoot(g, h.Index)
	h.Cyclic = hasCycle(g, h.Index)

	depth := h.walk(h.RootID, map[string]int{})
	deepest := 0
	for _, n := range g.Nodes {
		d, ok := depth[n.ID]
		if !ok {
			continue
		}
		assignInferred(n, inferredType(d), d)
		deepest = max(deepest, n.Level)
	}
	h.heads = append(h.heads, h.RootID)

	// Orphan components start from nodes without parents so a chain keeps its
	// order; whatever is left belongs to a cycle no head reaches.
	var unreached []*Node
	for _, n := range g.Nodes {
		if _, ok := depth[n.ID]; !ok {
			unreached = append(unreached, n)
		}
	}
	base := deepest + 1
	for pass := 0; pass < 2; pass++ {
		for _, n := range unreached {
			if _, ok := depth[n.ID]; ok {
				continue
			}
			if pass == 0 && len(h.Index.Parents(n.ID)) > 0 {
				continue
			}
			local := h.walk(n.ID, map[string]int{})
			h.heads = append(h.heads, n.ID)
			for id, d := range local {
				depth[id] = base + d
			}
		}
	}
	orphan := make(map[string]bool, len(unreached))
	for _, n := range unreached {
		h.Orphans = append(h.Orphans, n.ID)
		orphan[n.ID] = true
		assignInferred(n, TypeSecondary, depth[n.ID])
	}
	h.enforceSingleMain(g, depth, orphan)
	return h
}

// enforceSingleMain makes the root main at level 0 and demotes every other
// main node, whatever the input declared.
func (h *Hierarchy) enforceSingleMain(g *Graph, depth map[string]int, orphan map[string]bool) {
	for _, n := range g.Nodes {
		if n.ID == h.RootID {
			if n.Type != TypeMain || n.Level != 0 {
				n.Type, n.Level = TypeMain, 0
				h.Retyped = append(h.Retyped, n.ID)
			}
			continue
		}
		if n.Type != TypeMain {
			continue
		}
		d := max(depth[n.ID], 1)
		if orphan[n.ID] {
			n.Type = TypeSecondary
		} else {
			n.Type = inferredType(d)
		}
		if n.Level == 0 {
			n.Level = d
		}
		h.Retyped = append(h.Retyped, n.ID)
	}
}

// walk runs a breadth-first traversal from start over nodes that no earlier
// component claimed, records tree edges and returns the depth of every
// visited node relative to start.
func (h *Hierarchy) walk(start string, depth map[string]int) map[string]int {
	depth[start] = 0
	h.inTree[start] = true
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range h.Index.Children(id) {
			if h.inTree[child] {
				continue
			}
			h.inTree[child] = true
			depth[child] = depth[id] + 1
			h.tree[id] = append(h.tree[id], child)
			queue = append(queue, child)
		}
	}
	return depth
}

func inferRoot(g *Graph, idx AdjacencyIndex) string {
	var mains []string
	for _, n := range g.Nodes {
		if n.explicitType && n.Type == TypeMain {
			mains = append(mains, n.ID)
		}
	}
	if len(mains) == 1 {
		return mains[0]
	}
	if id, ok := idx.widestParent(); ok {
		return id
	}
	if g.HasNode("1") {
		return "1"
	}
	return g.Nodes[0].ID
}

func inferredType(depth int) NodeType {
	switch depth {
	case 0:
		return TypeMain
	case 1:
		return TypePrimary
	default:
		return TypeSecondary
	}
}

func assignInferred(n *Node, t NodeType, level int) {
	if !n.explicitType {
		n.Type = t
	}
	if !n.explicitLevel {
		n.Level = level
	}
}

// hasCycle runs a colouring depth-first search over every node.
func hasCycle(g *Graph, idx AdjacencyIndex) bool {
	const (
		white = iota
		grey
		black
	)
	colour := make(map[string]int, g.Len())
	var visit func(id string) bool
	visit = func(id string) bool {
		colour[id] = grey
		for _, child := range idx.Children(id) {
			switch colour[child] {
			case grey:
				return true
			case white:
				if visit(child) {
					return true
				}
			}
		}
		colour[id] = black
		return false
	}
	for _, n := range g.Nodes {
		if colour[n.ID] == white && visit(n.ID) {
			return true
		}
	}
	return false
}
