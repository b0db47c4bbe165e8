package diagram

import (
	"fmt"
	"strings"
)

// RenderASCII renders a DiagramModel as text: the empty state on top, the
// control kinds below it, then the list of transitions.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n\n", model.Title))
	}

	// Render each level.
	for levelIdx, level := range model.Levels {
		var boxes []asciiBox
		for _, nodeID := range level {
			node := findNode(model.Nodes, nodeID)
			if node == nil {
				continue
			}
			boxes = append(boxes, makeBox(node))
		}

		renderBoxRow(&b, boxes)

		if levelIdx < len(model.Levels)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	if len(model.Edges) > 0 {
		b.WriteString("\n--- transitions ---\n")
		for _, edge := range model.Edges {
			b.WriteString(fmt.Sprintf("  %s \u2500\u2192 %s (%s)\n", edge.From, edge.To, edge.Label))
		}
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox draws one box per node, one row per label line.
func makeBox(node *Node) asciiBox {
	content := strings.Split(node.Label, "\n")
	inner := 0
	for _, line := range content {
		inner = max(inner, len(line))
	}
	width := inner + 4

	lines := make([]string, 0, len(content)+2)
	lines = append(lines, "\u250c"+strings.Repeat("\u2500", width-2)+"\u2510")
	for _, line := range content {
		lines = append(lines, "\u2502 "+line+strings.Repeat(" ", inner-len(line))+" \u2502")
	}
	lines = append(lines, "\u2514"+strings.Repeat("\u2500", width-2)+"\u2518")
	return asciiBox{lines: lines, width: width}
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		maxHeight = max(maxHeight, len(box.lines))
	}

	for row := 0; row < maxHeight; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ") // gap between boxes
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// renderConnector draws a vertical connector between levels.
func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       \u2502\n")
	b.WriteString("       \u25bc\n")
}

// findNode looks up a node by ID in the model's node list.
func findNode(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
