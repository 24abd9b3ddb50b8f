package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/zaldivarmena/mindy/pkg/mindmap"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
)

// ErrSurfaceUnavailable is returned when there is nothing to render.
var ErrSurfaceUnavailable = errors.New("rendering surface unavailable")

const maxImageSide = 8192

// ExportOptions configures ExportRaster. Zero fields take defaults.
type ExportOptions struct {
	// PixelRatio scales the canvas; 2 by default.
	PixelRatio float64
	// Padding around the drawing in canvas units; 40 by default.
	Padding float64
	// Background is a hex colour; white by default.
	Background string
}

func (o ExportOptions) withDefaults() ExportOptions {
	if !(o.PixelRatio > 0) || math.IsInf(o.PixelRatio, 0) {
		o.PixelRatio = 2
	}
	if !(o.Padding >= 0) || math.IsInf(o.Padding, 0) {
		o.Padding = 40
	}
	if o.Background == "" {
		o.Background = "#ffffff"
	}
	return o
}

type palette struct {
	fill, stroke string
}

var nodePalette = map[mindmap.NodeType]palette{
	mindmap.TypeMain:      {fill: "#3b82f6", stroke: "#1d4ed8"},
	mindmap.TypePrimary:   {fill: "#10b981", stroke: "#047857"},
	mindmap.TypeSecondary: {fill: "#8b5cf6", stroke: "#6d28d9"},
	mindmap.TypeTertiary:  {fill: "#f59e0b", stroke: "#b45309"},
}

const edgeColour = "#94a3b8"

var monoFont = sync.OnceValues(func() (*truetype.Font, error) {
	return truetype.Parse(gomono.TTF)
})

// ExportRaster waits until the surface reports a stable layout, then draws it
// and returns PNG bytes. Node positions are treated as node centres.
func ExportRaster(ctx context.Context, s Surface, opts ExportOptions) ([]byte, error) {
	if s == nil {
		return nil, ErrSurfaceUnavailable
	}
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for stable layout: %w", ctx.Err())
	case <-s.Stable():
	}

	g := s.Graph()
	if g == nil || g.Len() == 0 {
		return nil, ErrSurfaceUnavailable
	}
	opts = opts.withDefaults()

	c, err := newCanvas(g, opts)
	if err != nil {
		return nil, err
	}
	for _, e := range g.Edges {
		src, dst := g.Node(e.Source), g.Node(e.Target)
		if src == nil || dst == nil {
			continue
		}
		c.drawEdge(src, dst)
	}
	for _, n := range g.Nodes {
		c.drawNode(n)
	}

	var buf bytes.Buffer
	if err := c.dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

type canvas struct {
	dc         *gg.Context
	scale      float64
	offX, offY float64
	label      font.Face
	detail     font.Face
}

func newCanvas(g *mindmap.Graph, opts ExportOptions) (*canvas, error) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, n := range g.Nodes {
		size := mindmap.Footprint(n)
		minX = math.Min(minX, n.Position.X-size.W/2)
		maxX = math.Max(maxX, n.Position.X+size.W/2)
		minY = math.Min(minY, n.Position.Y-size.H/2)
		maxY = math.Max(maxY, n.Position.Y+size.H/2)
	}
	if math.IsInf(minX, 0) || math.IsNaN(minX) || math.IsNaN(minY) {
		return nil, ErrSurfaceUnavailable
	}

	w := maxX - minX + 2*opts.Padding
	h := maxY - minY + 2*opts.Padding
	scale := opts.PixelRatio
	if side := math.Max(w, h) * scale; side > maxImageSide {
		scale *= maxImageSide / side
	}

	f, err := monoFont()
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}

	dc := gg.NewContext(int(math.Ceil(w*scale)), int(math.Ceil(h*scale)))
	dc.SetHexColor(opts.Background)
	dc.Clear()

	return &canvas{
		dc:    dc,
		scale: scale,
		offX:  opts.Padding - minX,
		offY:  opts.Padding - minY,
		label: truetype.NewFace(f, &truetype.Options{
			Size:    13 * scale,
			DPI:     72,
			Hinting: font.HintingFull,
		}),
		detail: truetype.NewFace(f, &truetype.Options{
			Size:    10 * scale,
			DPI:     72,
			Hinting: font.HintingFull,
		}),
	}, nil
}

func (c *canvas) pt(x, y float64) (float64, float64) {
	return (x + c.offX) * c.scale, (y + c.offY) * c.scale
}

// drawEdge draws a step line from the bottom of src to the top of dst with an
// arrow head at dst.
func (c *canvas) drawEdge(src, dst *mindmap.Node) {
	x1, y1 := c.pt(src.Position.X, src.Position.Y+mindmap.Footprint(src).H/2)
	x2, y2 := c.pt(dst.Position.X, dst.Position.Y-mindmap.Footprint(dst).H/2)
	midY := (y1 + y2) / 2

	c.dc.SetHexColor(edgeColour)
	c.dc.SetLineWidth(1.5 * c.scale)
	c.dc.MoveTo(x1, y1)
	c.dc.LineTo(x1, midY)
	c.dc.LineTo(x2, midY)
	c.dc.LineTo(x2, y2)
	c.dc.Stroke()

	// Arrow head pointing along the last segment.
	dir := 1.0
	if y2 < midY {
		dir = -1
	}
	size := 6 * c.scale
	c.dc.MoveTo(x2, y2)
	c.dc.LineTo(x2-size/2, y2-dir*size)
	c.dc.LineTo(x2+size/2, y2-dir*size)
	c.dc.ClosePath()
	c.dc.Fill()
}

func (c *canvas) drawNode(n *mindmap.Node) {
	size := mindmap.Footprint(n)
	colours, ok := nodePalette[n.Type]
	if !ok {
		colours = nodePalette[mindmap.TypeSecondary]
	}

	x, y := c.pt(n.Position.X-size.W/2, n.Position.Y-size.H/2)
	w, h := size.W*c.scale, size.H*c.scale
	c.dc.DrawRoundedRectangle(x, y, w, h, 8*c.scale)
	c.dc.SetHexColor(colours.fill)
	c.dc.FillPreserve()
	c.dc.SetHexColor(colours.stroke)
	c.dc.SetLineWidth(2 * c.scale)
	c.dc.Stroke()

	cx, cy := c.pt(n.Position.X, n.Position.Y)
	inner := w - 16*c.scale
	c.dc.SetHexColor("#ffffff")
	c.dc.SetFontFace(c.label)
	if n.Description == "" {
		c.dc.DrawStringAnchored(c.fit(n.Label, inner), cx, cy, 0.5, 0.5)
		return
	}
	c.dc.DrawStringAnchored(c.fit(n.Label, inner), cx, cy-10*c.scale, 0.5, 0.5)
	c.dc.SetFontFace(c.detail)
	c.dc.DrawStringAnchored(c.fit(n.Description, inner), cx, cy+12*c.scale, 0.5, 0.5)
}

// fit truncates s with an ellipsis until it fits width with the current face.
func (c *canvas) fit(s string, width float64) string {
	if w, _ := c.dc.MeasureString(s); w <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + "…"
		if w, _ := c.dc.MeasureString(candidate); w <= width {
			return candidate
		}
	}
	return ""
}
