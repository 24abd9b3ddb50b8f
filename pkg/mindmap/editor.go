package mindmap

import (
	"errors"
	"fmt"
	"math"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ErrNodeNotFound is returned by editor operations whose target node does not
// exist. Callers surface it as a notice; the graph is left unchanged.
var ErrNodeNotFound = errors.New("node not found")

const (
	DefaultNodeLabel       = "New Node"
	DefaultNodeDescription = "Add description here"

	childOffsetY = 150
	childStepX   = 200
)

// Editor mutates a graph in place. Every operation keeps each edge endpoint
// inside the node set.
type Editor struct {
	graph *Graph
	newID func() (string, error)
}

// EditorOption configures an Editor.
type EditorOption func(*Editor)

// WithIDGenerator replaces the node id generator.
func WithIDGenerator(fn func() (string, error)) EditorOption {
	return func(e *Editor) {
		e.newID = fn
	}
}

// NewEditor returns an editor over g.
func NewEditor(g *Graph, opts ...EditorOption) *Editor {
	e := &Editor{
		graph: g,
		newID: func() (string, error) {
			id, err := gonanoid.New()
			if err != nil {
				return "", err
			}
			return "node_" + id, nil
		},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Graph returns the edited graph.
func (e *Editor) Graph() *Graph {
	return e.graph
}

// ChildType is the type given to a node added under a parent of type t.
func ChildType(t NodeType) NodeType {
	switch t {
	case TypeMain:
		return TypePrimary
	case TypeSecondary:
		return TypeTertiary
	default:
		return TypeSecondary
	}
}

// AddChild appends a node under parentID together with the parent -> child
// edge and returns the new node. An empty label becomes DefaultNodeLabel; the
// description defaults too when both are empty.
func (e *Editor) AddChild(parentID, label, description string) (*Node, error) {
	parent := e.graph.Node(parentID)
	if parent == nil {
		return nil, fmt.Errorf("add child under %q: %w", parentID, ErrNodeNotFound)
	}

	id, err := e.uniqueNodeID()
	if err != nil {
		return nil, fmt.Errorf("add child under %q: %w", parentID, err)
	}

	if label == "" {
		label = DefaultNodeLabel
		if description == "" {
			description = DefaultNodeDescription
		}
	}

	siblings := len(BuildAdjacency(e.graph).Children(parentID))
	child := &Node{
		ID:            id,
		Label:         label,
		Description:   description,
		Type:          ChildType(parent.Type),
		Level:         parent.Level + 1,
		explicitType:  true,
		explicitLevel: true,
	}
	child.SetPosition(childPosition(parent.Position, siblings))

	edge := &Edge{
		ID:        e.uniqueEdgeID(edgeID(parentID, id)),
		Source:    parentID,
		Target:    id,
		Direction: DirectionDown,
	}
	e.graph.Nodes = append(e.graph.Nodes, child)
	e.graph.Edges = append(e.graph.Edges, edge)
	return child, nil
}

// childPosition places the k-th child below its parent, alternating right and
// left with a growing offset: 0, +1, -1, +2, -2 ...
func childPosition(parent Position, k int) Position {
	dx := math.Ceil(float64(k)/2) * childStepX
	if k%2 == 0 {
		dx = -dx
	}
	return Position{X: parent.X + dx, Y: parent.Y + childOffsetY}
}

// EditNode replaces the label and description of nodeID.
func (e *Editor) EditNode(nodeID, label, description string) (*Node, error) {
	n := e.graph.Node(nodeID)
	if n == nil {
		return nil, fmt.Errorf("edit %q: %w", nodeID, ErrNodeNotFound)
	}
	n.Label = label
	n.Description = description
	return n, nil
}

// DeleteSubtree removes nodeID, everything reachable from it and every edge
// touching those nodes. It returns the number of removed nodes.
func (e *Editor) DeleteSubtree(nodeID string) (int, error) {
	if !e.graph.HasNode(nodeID) {
		return 0, fmt.Errorf("delete %q: %w", nodeID, ErrNodeNotFound)
	}

	doomed := make(map[string]bool)
	for _, id := range Subtree(BuildAdjacency(e.graph), nodeID) {
		doomed[id] = true
	}

	edges := e.graph.Edges[:0]
	for _, edge := range e.graph.Edges {
		if !doomed[edge.Source] && !doomed[edge.Target] {
			edges = append(edges, edge)
		}
	}
	clear(e.graph.Edges[len(edges):])
	e.graph.Edges = edges

	nodes := e.graph.Nodes[:0]
	for _, n := range e.graph.Nodes {
		if !doomed[n.ID] {
			nodes = append(nodes, n)
		}
	}
	removed := len(e.graph.Nodes) - len(nodes)
	clear(e.graph.Nodes[len(nodes):])
	e.graph.Nodes = nodes
	return removed, nil
}

// Connect appends a user drawn edge. Cycles are allowed; both endpoints must
// exist.
func (e *Editor) Connect(sourceID, targetID string) (*Edge, error) {
	for _, id := range []string{sourceID, targetID} {
		if !e.graph.HasNode(id) {
			return nil, fmt.Errorf("connect %q -> %q: %w", sourceID, targetID, ErrNodeNotFound)
		}
	}
	edge := &Edge{
		ID:        e.uniqueEdgeID(edgeID(sourceID, targetID)),
		Source:    sourceID,
		Target:    targetID,
		Direction: DirectionDown,
	}
	e.graph.Edges = append(e.graph.Edges, edge)
	return edge, nil
}

func (e *Editor) uniqueNodeID() (string, error) {
	for range 8 {
		id, err := e.newID()
		if err != nil {
			return "", err
		}
		if id != "" && !e.graph.HasNode(id) {
			return id, nil
		}
	}
	return "", errors.New("could not generate a unique node id")
}

func (e *Editor) uniqueEdgeID(base string) string {
	if !e.graph.HasEdgeID(base) {
		return base
	}
	taken := make(map[string]bool, len(e.graph.Edges))
	for _, edge := range e.graph.Edges {
		taken[edge.ID] = true
	}
	return uniqueID(base, taken)
}

// AddChild adds a child to g; see Editor.AddChild.
func AddChild(g *Graph, parentID, label, description string) (*Node, error) {
	return NewEditor(g).AddChild(parentID, label, description)
}

// EditNode edits a node of g; see Editor.EditNode.
func EditNode(g *Graph, nodeID, label, description string) (*Node, error) {
	return NewEditor(g).EditNode(nodeID, label, description)
}

// DeleteSubtree deletes a subtree of g; see Editor.DeleteSubtree.
func DeleteSubtree(g *Graph, nodeID string) (int, error) {
	return NewEditor(g).DeleteSubtree(nodeID)
}

// Connect adds an edge to g; see Editor.Connect.
func Connect(g *Graph, sourceID, targetID string) (*Edge, error) {
	return NewEditor(g).Connect(sourceID, targetID)
}
