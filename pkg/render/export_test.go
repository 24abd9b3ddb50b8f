package render

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"testing"
	"time"

	"github.com/zaldivarmena/mindy/pkg/mindmap"
)

type pendingSurface struct{}

func (pendingSurface) Graph() *mindmap.Graph    { return mindmap.FallbackGraph() }
func (pendingSurface) Stable() <-chan struct{} { return make(chan struct{}) }

func TestExportRasterFallbackGraph(t *testing.T) {
	data, err := ExportRaster(context.Background(), Positioned(mindmap.FallbackGraph()), ExportOptions{})
	if err != nil {
		t.Fatalf("ExportRaster() error = %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}

	// Nodes span x 125..675 and y 126..474, plus 40 padding, times 2.
	if b := img.Bounds(); b.Dx() != 1260 || b.Dy() != 856 {
		t.Fatalf("image size = %dx%d, want 1260x856", b.Dx(), b.Dy())
	}

	r, g, b, _ := img.At(470, 428).RGBA()
	if r>>8 != 59 || g>>8 != 130 || b>>8 != 246 {
		t.Fatalf("root fill = (%d,%d,%d), want (59,130,246)", r>>8, g>>8, b>>8)
	}
	r, g, b, _ = img.At(2, 2).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
		t.Fatalf("background = (%d,%d,%d), want white", r>>8, g>>8, b>>8)
	}
}

func TestExportRasterPixelRatio(t *testing.T) {
	data, err := ExportRaster(context.Background(), Positioned(mindmap.FallbackGraph()), ExportOptions{PixelRatio: 1, Padding: 10})
	if err != nil {
		t.Fatalf("ExportRaster() error = %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.DecodeConfig() error = %v", err)
	}
	if cfg.Width != 570 || cfg.Height != 368 {
		t.Fatalf("image size = %dx%d, want 570x368", cfg.Width, cfg.Height)
	}
}

func TestExportRasterUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		surface Surface
	}{
		{name: "nil surface", surface: nil},
		{name: "nil graph", surface: Positioned(nil)},
		{name: "empty graph", surface: Positioned(mindmap.NewGraph())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExportRaster(context.Background(), tt.surface, ExportOptions{})
			if !errors.Is(err, ErrSurfaceUnavailable) {
				t.Fatalf("ExportRaster() error = %v, want ErrSurfaceUnavailable", err)
			}
		})
	}
}

func TestExportRasterWaitsForStable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := ExportRaster(ctx, pendingSurface{}, ExportOptions{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("ExportRaster() error = %v, want deadline exceeded", err)
	}
}

func TestExportRasterLayoutSurface(t *testing.T) {
	g := mindmap.Normalize(`{"topic":"Go","subtopics":["Types","Goroutines","Channels"]}`)
	s := NewLayoutSurface(g, mindmap.DefaultLayoutOptions())

	data, err := ExportRaster(context.Background(), s, ExportOptions{PixelRatio: 1})
	if err != nil {
		t.Fatalf("ExportRaster() error = %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	if s.Report().Fallback {
		t.Fatalf("layout fell back: %s", s.Report().Reason)
	}
	for _, n := range s.Graph().Nodes {
		if !n.Positioned() {
			t.Fatalf("node %s not positioned after stable", n.ID)
		}
	}
}

func TestExportRasterSkipsDanglingEdges(t *testing.T) {
	g := mindmap.FallbackGraph()
	g.Edges = append(g.Edges, &mindmap.Edge{ID: "ghost", Source: "1", Target: "missing"})

	if _, err := ExportRaster(context.Background(), Positioned(g), ExportOptions{}); err != nil {
		t.Fatalf("ExportRaster() error = %v", err)
	}
}
