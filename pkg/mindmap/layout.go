package mindmap

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
)

// LayoutOptions tunes the vertical tree layout. Zero fields take the values
// of DefaultLayoutOptions.
type LayoutOptions struct {
	ViewportWidth float64
	// CenterX is the root x. Zero or negative centres it in the viewport.
	CenterX float64
	// TopY is the root y. Zero means the default of 80, so a root exactly on
	// the top edge is not expressible; negative values are used as given.
	TopY              float64
	LevelHeight       float64
	HorizontalSpacing float64
	MinNodeDistance   float64
	MaxRetries        int
}

const defaultViewportWidth = 1200

// DefaultLayoutOptions returns the layout constants used by Layout.
func DefaultLayoutOptions() LayoutOptions {
	return LayoutOptions{
		ViewportWidth:     defaultViewportWidth,
		TopY:              80,
		LevelHeight:       180,
		HorizontalSpacing: 220,
		MinNodeDistance:   160,
		MaxRetries:        20,
	}
}

func (o LayoutOptions) withDefaults() LayoutOptions {
	d := DefaultLayoutOptions()
	if !(o.ViewportWidth > 0) || math.IsInf(o.ViewportWidth, 0) {
		o.ViewportWidth = d.ViewportWidth
	}
	if !(o.CenterX > 0) || math.IsInf(o.CenterX, 0) {
		o.CenterX = o.ViewportWidth / 2
	}
	if o.TopY == 0 || math.IsNaN(o.TopY) || math.IsInf(o.TopY, 0) {
		o.TopY = d.TopY
	}
	if !(o.LevelHeight > 0) {
		o.LevelHeight = d.LevelHeight
	}
	if !(o.HorizontalSpacing > 0) {
		o.HorizontalSpacing = d.HorizontalSpacing
	}
	if !(o.MinNodeDistance > 0) {
		o.MinNodeDistance = d.MinNodeDistance
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = d.MaxRetries
	}
	return o
}

// LayoutReport summarises a layout run.
type LayoutReport struct {
	RootID string `json:"root_id"`
	// Nudged counts nodes moved by the collision pass.
	Nudged int `json:"nudged"`
	// Exhausted counts nodes that still collided after MaxRetries and were
	// jittered instead, including orphans restored to a stored position.
	Exhausted int  `json:"exhausted"`
	Orphans   int  `json:"orphans"`
	Cyclic    bool `json:"cyclic"`
	// Retyped lists nodes whose declared type or level was overridden so the
	// root is the only main node.
	Retyped  []string `json:"retyped,omitempty"`
	Fallback bool     `json:"fallback"`
	Reason   string   `json:"reason,omitempty"`
}

// Layout resolves the hierarchy of g and writes a vertical-tree position onto
// every node. It returns g, or the fallback star graph if the layout could not
// be computed.
func Layout(g *Graph, viewportWidth float64) *Graph {
	out, _ := LayoutWithOptions(g, LayoutOptions{ViewportWidth: viewportWidth})
	return out
}

// LayoutWithOptions is Layout with explicit options and a report.
func LayoutWithOptions(g *Graph, opts LayoutOptions) (out *Graph, report LayoutReport) {
	defer func() {
		if r := recover(); r != nil {
			out = FallbackGraph()
			report = LayoutReport{RootID: "1", Fallback: true, Reason: fmt.Sprint(r)}
		}
	}()

	if g == nil {
		return FallbackGraph(), LayoutReport{RootID: "1", Fallback: true, Reason: "nil graph"}
	}
	opts = opts.withDefaults()
	h := Resolve(g)
	report.RootID = h.RootID
	report.Orphans = len(h.Orphans)
	report.Cyclic = h.Cyclic
	report.Retyped = h.Retyped

	l := &layouter{
		graph:  g,
		h:      h,
		opts:   opts,
		placed: make(map[string]Position, g.Len()),
		bands:  make(map[int][]string),
		counts: make(map[int]int),
	}
	for _, n := range g.Nodes {
		l.counts[n.Level]++
	}
	l.run(&report)

	for _, n := range g.Nodes {
		p, ok := l.placed[n.ID]
		if !ok || !finite(p) {
			return FallbackGraph(), LayoutReport{RootID: "1", Fallback: true, Reason: "no finite position for " + n.ID}
		}
	}
	for _, n := range g.Nodes {
		n.SetPosition(l.placed[n.ID])
	}
	return g, report
}

type layouter struct {
	graph *Graph
	h     *Hierarchy
	opts  LayoutOptions

	placed map[string]Position
	// order holds every placed id in placement order.
	order []string
	// bands holds the ids already placed on each level, in placement order.
	bands map[int][]string
	// pinned holds nodes restored to a stored position, whose y need not
	// match their band.
	pinned []string
	counts map[int]int
}

// run places the forest level by level so every child set is centred under
// its parent's final, collision-free x.
func (l *layouter) run(report *LayoutReport) {
	var frontier []string
	for i, head := range l.h.Heads() {
		n := l.graph.Node(head)
		if i > 0 && n.Positioned() {
			l.restore(n, report)
		} else {
			l.place(n, l.opts.CenterX, report)
		}
		frontier = append(frontier, head)
	}

	for len(frontier) > 0 {
		var next []string
		for _, parentID := range frontier {
			children := l.h.TreeChildren(parentID)
			if len(children) == 0 {
				continue
			}
			parentX := l.placed[parentID].X
			slot := l.slot(l.graph.Node(children[0]).Level)
			for i, id := range children {
				offset := (float64(i) - float64(len(children)-1)/2) * slot
				n := l.graph.Node(id)
				if l.h.IsOrphan(id) && n.Positioned() {
					l.restore(n, report)
				} else {
					l.place(n, parentX+offset, report)
				}
				next = append(next, id)
			}
		}
		frontier = next
	}
}

// slot is the horizontal distance between neighbouring nodes of one level.
func (l *layouter) slot(level int) float64 {
	count := max(l.counts[level], 1)
	span := math.Max(float64(count)*l.opts.HorizontalSpacing, l.opts.ViewportWidth*0.8)
	return span / float64(count)
}

func (l *layouter) keep(n *Node, p Position) {
	l.placed[n.ID] = p
	l.order = append(l.order, n.ID)
	l.bands[n.Level] = append(l.bands[n.Level], n.ID)
}

// place puts n at x on its level band.
func (l *layouter) place(n *Node, x float64, report *LayoutReport) {
	y := l.opts.TopY + float64(n.Level)*l.opts.LevelHeight
	l.settle(n, Position{X: x, Y: y}, l.bands[n.Level], report)
}

// restore puts an orphan back at its stored position. The stored y can sit
// on any band, so it is checked against every node placed so far.
func (l *layouter) restore(n *Node, report *LayoutReport) {
	l.settle(n, n.Position, l.order, report)
	l.pinned = append(l.pinned, n.ID)
}

// settle keeps n at start unless it collides with one of others or a pinned
// node, then nudges it alternately right and left with growing offsets.
func (l *layouter) settle(n *Node, start Position, others []string, report *LayoutReport) {
	step := l.opts.MinNodeDistance / 2

	candidate := start
	if l.collides(n, candidate, others) {
		report.Nudged++
		found := false
		for k := 1; k <= l.opts.MaxRetries; k++ {
			dx := math.Ceil(float64(k)/2) * step
			if k%2 == 0 {
				dx = -dx
			}
			try := Position{X: start.X + dx, Y: start.Y}
			if !l.collides(n, try, others) {
				candidate, found = try, true
				break
			}
		}
		if !found {
			report.Exhausted++
			candidate = Position{X: start.X + jitter(n.ID, step), Y: start.Y}
		}
	}
	l.keep(n, candidate)
}

func (l *layouter) collides(n *Node, p Position, others []string) bool {
	return l.overlaps(n, p, others) || l.overlaps(n, p, l.pinned)
}

func (l *layouter) overlaps(n *Node, p Position, ids []string) bool {
	for _, other := range ids {
		q := l.placed[other]
		need := math.Max(l.opts.MinNodeDistance, (Footprint(n).W+Footprint(l.graph.Node(other)).W)/2)
		if math.Hypot(p.X-q.X, p.Y-q.Y) < need {
			return true
		}
	}
	return false
}

// jitter returns a small offset in [-spread, spread) that is stable per id.
func jitter(id string, spread float64) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	r := rand.New(rand.NewPCG(h.Sum64(), 0x6d696e64))
	return (r.Float64()*2 - 1) * spread
}

func finite(p Position) bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Size is the estimated on-screen footprint of a node.
type Size struct {
	W float64
	H float64
}

var footprintBounds = map[NodeType][2]float64{
	TypeMain:      {180, 300},
	TypePrimary:   {150, 250},
	TypeSecondary: {120, 200},
	TypeTertiary:  {120, 200},
}

// Footprint estimates the rendered size of n from its label length, clamped
// to the width range of its node type.
func Footprint(n *Node) Size {
	bounds, ok := footprintBounds[n.Type]
	if !ok {
		bounds = footprintBounds[TypeSecondary]
	}
	w := float64(len([]rune(n.Label)))*8 + 32
	h := 48.0
	if n.Description != "" {
		h = 72
	}
	return Size{W: math.Min(math.Max(w, bounds[0]), bounds[1]), H: h}
}
