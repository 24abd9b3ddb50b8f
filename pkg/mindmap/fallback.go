package mindmap

// FallbackGraph returns the fixed graph shown whenever a payload cannot be
// turned into a mind map: one main topic with four subtopics laid out as a
// star. Every call returns a fresh copy.
func FallbackGraph() *Graph {
	g := NewGraph()
	g.Nodes = append(g.Nodes, &Node{
		ID:            "1",
		Label:         "Main Topic",
		Type:          TypeMain,
		Level:         0,
		Position:      Position{X: 400, Y: 300},
		explicitType:  true,
		explicitLevel: true,
		positioned:    true,
	})

	corners := []Position{
		{X: 200, Y: 150},
		{X: 600, Y: 150},
		{X: 200, Y: 450},
		{X: 600, Y: 450},
	}
	for i, pos := range corners {
		id := string(rune('2' + i))
		g.Nodes = append(g.Nodes, &Node{
			ID:            id,
			Label:         "Subtopic " + string(rune('1'+i)),
			Type:          TypePrimary,
			Level:         1,
			Position:      pos,
			explicitType:  true,
			explicitLevel: true,
			positioned:    true,
		})
		g.Edges = append(g.Edges, &Edge{
			ID:        edgeID("1", id),
			Source:    "1",
			Target:    id,
			Direction: DirectionDown,
		})
	}
	return g
}

func edgeID(source, target string) string {
	return "e" + source + "-" + target
}
