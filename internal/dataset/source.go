package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/YuGuangWang/cwn/pkg/models"
	"gopkg.in/yaml.v3"
)

// ErrSplitNotFound is returned when a source has no file for a split.
var ErrSplitNotFound = errors.New("split not found")

// GraphSource supplies the graphs of one dataset, split by split.
type GraphSource interface {
	Load(ctx context.Context, split models.Split) ([]models.Graph, error)
}

// Splits holds the graphs of a dataset. Test is nil when the source has no
// test split.
type Splits struct {
	Train []models.Graph
	Val   []models.Graph
	Test  []models.Graph
}

// HasTest reports whether the source provided a test split.
func (s Splits) HasTest() bool {
	return s.Test != nil
}

// Len returns the total number of graphs.
func (s Splits) Len() int {
	return len(s.Train) + len(s.Val) + len(s.Test)
}

// Of returns the graphs of one split.
func (s Splits) Of(split models.Split) []models.Graph {
	switch split {
	case models.SplitTrain:
		return s.Train
	case models.SplitVal:
		return s.Val
	case models.SplitTest:
		return s.Test
	}
	return nil
}

// LoadSplits reads train, validation, and, when present, test graphs.
// Train and validation splits are required.
func LoadSplits(ctx context.Context, src GraphSource) (Splits, error) {
	var s Splits
	var err error

	if s.Train, err = src.Load(ctx, models.SplitTrain); err != nil {
		return Splits{}, err
	}
	if s.Val, err = src.Load(ctx, models.SplitVal); err != nil {
		return Splits{}, err
	}
	s.Test, err = src.Load(ctx, models.SplitTest)
	if errors.Is(err, ErrSplitNotFound) {
		return s, nil
	}
	if err != nil {
		return Splits{}, err
	}
	if s.Test == nil {
		s.Test = []models.Graph{}
	}
	return s, nil
}

// FileSource reads raw splits from <root>/<name>/raw/<name>_<split>.{yaml,yml,json}.
type FileSource struct {
	dir  string
	name string
}

// NewFileSource creates a FileSource for dataset name under root.
func NewFileSource(root, name string) *FileSource {
	return &FileSource{dir: filepath.Join(root, name, "raw"), name: name}
}

var rawExtensions = []string{".yaml", ".yml", ".json"}

// Path returns the first existing file for split, or ErrSplitNotFound.
func (s *FileSource) Path(split models.Split) (string, error) {
	for _, ext := range rawExtensions {
		p := filepath.Join(s.dir, fmt.Sprintf("%s_%s%s", s.name, split, ext))
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s %s in %s: %w", s.name, split, s.dir, ErrSplitNotFound)
}

// Load reads and validates the graphs of one split.
func (s *FileSource) Load(ctx context.Context, split models.Split) ([]models.Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.Path(split)
	if err != nil {
		return nil, err
	}
	return ReadGraphFile(p)
}

// ReadGraphFile parses a raw graph file. JSON files are read by the same
// YAML decoder.
func ReadGraphFile(path string) ([]models.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	graphs, err := ParseGraphs(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return graphs, nil
}

// ParseGraphs decodes a graph list document:
//
//	graphs:
//	  - num_nodes: 3
//	    edges: [[0, 1], [1, 2], [2, 0]]
//	    node_features: [6, 6, 8]
//
// Edges may instead be given as a two-row edge_index (sources, targets).
func ParseGraphs(data []byte) ([]models.Graph, error) {
	var f rawFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	graphs := make([]models.Graph, len(f.Graphs))
	for i, rg := range f.Graphs {
		g, err := rg.graph()
		if err != nil {
			return nil, fmt.Errorf("graph %d: %w", i, err)
		}
		if err := g.Validate(); err != nil {
			return nil, fmt.Errorf("graph %d: %w", i, err)
		}
		graphs[i] = g
	}
	return graphs, nil
}

type rawFile struct {
	Graphs []rawGraph `yaml:"graphs"`
}

type rawGraph struct {
	NumNodes     *int      `yaml:"num_nodes"`
	Edges        []rawEdge `yaml:"edges"`
	EdgeIndex    [][]int   `yaml:"edge_index"`
	NodeFeatures []int     `yaml:"node_features"`
	EdgeFeatures []int     `yaml:"edge_features"`
	Target       *float64  `yaml:"target"`
}

func (rg rawGraph) graph() (models.Graph, error) {
	g := models.Graph{
		NodeFeatures: rg.NodeFeatures,
		EdgeFeatures: rg.EdgeFeatures,
		Target:       rg.Target,
	}

	switch {
	case len(rg.Edges) > 0 && len(rg.EdgeIndex) > 0:
		return g, fmt.Errorf("%w: both edges and edge_index given", models.ErrInvalidGraph)
	case len(rg.EdgeIndex) > 0:
		if len(rg.EdgeIndex) != 2 || len(rg.EdgeIndex[0]) != len(rg.EdgeIndex[1]) {
			return g, fmt.Errorf("%w: edge_index must have two rows of equal length", models.ErrInvalidGraph)
		}
		for i := range rg.EdgeIndex[0] {
			g.Edges = append(g.Edges, models.Edge{rg.EdgeIndex[0][i], rg.EdgeIndex[1][i]})
		}
	default:
		for _, e := range rg.Edges {
			g.Edges = append(g.Edges, models.Edge{e.U, e.V})
		}
	}

	switch {
	case rg.NumNodes != nil:
		g.NumNodes = *rg.NumNodes
	case len(rg.NodeFeatures) > 0:
		g.NumNodes = len(rg.NodeFeatures)
	default:
		for _, e := range g.Edges {
			g.NumNodes = max(g.NumNodes, e[0]+1, e[1]+1)
		}
	}
	return g, nil
}

// rawEdge accepts both [u, v] and {u: .., v: ..} forms.
type rawEdge struct {
	U, V int
}

func (e *rawEdge) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var pair []int
		if err := node.Decode(&pair); err != nil {
			return err
		}
		if len(pair) != 2 {
			return fmt.Errorf("line %d: edge must have 2 endpoints, got %d", node.Line, len(pair))
		}
		e.U, e.V = pair[0], pair[1]
		return nil
	case yaml.MappingNode:
		var m struct {
			U *int `yaml:"u"`
			V *int `yaml:"v"`
		}
		if err := node.Decode(&m); err != nil {
			return err
		}
		if m.U == nil || m.V == nil {
			return fmt.Errorf("line %d: edge needs both u and v", node.Line)
		}
		e.U, e.V = *m.U, *m.V
		return nil
	default:
		return fmt.Errorf("line %d: unsupported edge type: %v", node.Line, node.Kind)
	}
}
