package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/YuGuangWang/cwn/pkg/models"
)

// Export formats.
const (
	FormatJSON    = "json"
	FormatDOT     = "dot"
	FormatMermaid = "mermaid"
)

// Export renders a complex in the named format.
func Export(c *models.Complex, format string) (string, error) {
	switch format {
	case FormatJSON:
		return ExportJSON(c)
	case FormatDOT:
		return ExportDOT(c), nil
	case FormatMermaid:
		return ExportMermaid(c), nil
	default:
		return "", fmt.Errorf("unsupported format: %s (use json, dot, or mermaid)", format)
	}
}

// ExportJSON returns the complex as indented JSON.
func ExportJSON(c *models.Complex) (string, error) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ExportDOT returns the complex in Graphviz DOT format. Vertices and edges
// form the 1-skeleton; each ring is a hexagon node tied to its vertices.
func ExportDOT(c *models.Complex) string {
	var b strings.Builder
	b.WriteString("graph complex {\n")
	b.WriteString("  node [shape=circle, style=filled, fillcolor=\"#AED6F1\"];\n\n")

	for _, v := range c.Cells[models.DimVertex] {
		fmt.Fprintf(&b, "  v%d [label=%q];\n", v.ID, cellLabel(v))
	}

	b.WriteString("\n")

	for _, e := range c.Cells[models.DimEdge] {
		fmt.Fprintf(&b, "  v%d -- v%d [label=\"e%d\"];\n", e.Vertices[0], e.Vertices[1], e.ID)
	}

	if len(c.Cells[models.DimRing]) > 0 {
		b.WriteString("\n")
	}
	for _, r := range c.Cells[models.DimRing] {
		fmt.Fprintf(&b, "  r%d [shape=hexagon, fillcolor=\"#F9E79F\", label=\"r%d (%d)\"];\n", r.ID, r.ID, len(r.Vertices))
		for _, v := range r.Vertices {
			fmt.Fprintf(&b, "  r%d -- v%d [style=dashed];\n", r.ID, v)
		}
	}

	b.WriteString("}\n")
	return b.String()
}

// ExportMermaid returns the complex in Mermaid format.
func ExportMermaid(c *models.Complex) string {
	var b strings.Builder
	b.WriteString("graph LR\n")

	for _, v := range c.Cells[models.DimVertex] {
		fmt.Fprintf(&b, "  v%d((\"%s\"))\n", v.ID, cellLabel(v))
	}

	for _, e := range c.Cells[models.DimEdge] {
		fmt.Fprintf(&b, "  v%d ---|e%d| v%d\n", e.Vertices[0], e.ID, e.Vertices[1])
	}

	for _, r := range c.Cells[models.DimRing] {
		fmt.Fprintf(&b, "  r%d{{\"ring %d: %s\"}}\n", r.ID, r.ID, models.Ring(r.Vertices).Key())
		for _, v := range r.Vertices {
			fmt.Fprintf(&b, "  r%d -.- v%d\n", r.ID, v)
		}
	}

	return b.String()
}

func cellLabel(v models.Cell) string {
	if len(v.Features) == 0 {
		return fmt.Sprintf("%d", v.ID)
	}
	return fmt.Sprintf("%d:%d", v.ID, v.Features[0])
}
