// Package render rasterises positioned mind maps.
package render

import (
	"sync"

	"github.com/zaldivarmena/mindy/pkg/mindmap"
)

// Surface is a graph being prepared for display. Stable is closed once the
// positions of Graph are final; Graph must not be read before that.
type Surface interface {
	Graph() *mindmap.Graph
	Stable() <-chan struct{}
}

// LayoutSurface lays a graph out in the background and signals when done.
type LayoutSurface struct {
	graph  *mindmap.Graph
	report mindmap.LayoutReport
	stable chan struct{}
}

// NewLayoutSurface starts laying out g with opts. The caller must not touch g
// until Stable is closed.
func NewLayoutSurface(g *mindmap.Graph, opts mindmap.LayoutOptions) *LayoutSurface {
	s := &LayoutSurface{stable: make(chan struct{})}
	go func() {
		defer close(s.stable)
		s.graph, s.report = mindmap.LayoutWithOptions(g, opts)
	}()
	return s
}

func (s *LayoutSurface) Graph() *mindmap.Graph {
	return s.graph
}

func (s *LayoutSurface) Stable() <-chan struct{} {
	return s.stable
}

// Report returns the layout report. Only valid after Stable is closed.
func (s *LayoutSurface) Report() mindmap.LayoutReport {
	return s.report
}

type staticSurface struct {
	graph *mindmap.Graph
}

var closed = sync.OnceValue(func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
})

// Positioned wraps a graph whose positions are already final.
func Positioned(g *mindmap.Graph) Surface {
	return staticSurface{graph: g}
}

func (s staticSurface) Graph() *mindmap.Graph {
	return s.graph
}

func (s staticSurface) Stable() <-chan struct{} {
	return closed()
}
