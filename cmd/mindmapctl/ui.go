package main

import (
	"github.com/fatih/color"

	"github.com/zaldivarmena/mindy/pkg/mindmap"
)

var (
	brand  = color.New(color.FgHiBlue, color.Bold)
	subtle = color.New(color.FgHiBlack)
	warn   = color.New(color.FgYellow)
	bad    = color.New(color.FgRed, color.Bold)
)

var typeColours = map[mindmap.NodeType]*color.Color{
	mindmap.TypeMain:      color.New(color.FgBlue, color.Bold),
	mindmap.TypePrimary:   color.New(color.FgGreen),
	mindmap.TypeSecondary: color.New(color.FgMagenta),
	mindmap.TypeTertiary:  color.New(color.FgYellow),
}

func typeColour(t mindmap.NodeType) *color.Color {
	if c, ok := typeColours[t]; ok {
		return c
	}
	return subtle
}
