// Package stats tabulates ring counts per ring length across the graphs of a
// dataset split and reduces them to summary statistics.
//
// Tests here use testify, like the other algorithm packages.
package stats

import (
	"context"
	"fmt"
	"io"
	"slices"

	"go.yaml.in/yaml/v3"

	"github.com/YuGuangWang/cwn/internal/rings"
	"github.com/YuGuangWang/cwn/pkg/models"
)

// Buckets maps a ring length to one ring count per graph.
type Buckets map[int][]int

// NewBuckets returns empty buckets for lengths 3..maxSize.
func NewBuckets(maxSize int) Buckets {
	b := make(Buckets)
	for k := rings.MinRingSize; k <= maxSize; k++ {
		b[k] = []int{}
	}
	return b
}

// Add appends one graph's counts; lengths absent from counts record zero.
func (b Buckets) Add(counts map[int]int) {
	for k := range b {
		b[k] = append(b[k], counts[k])
	}
}

// Keys returns the ring lengths in ascending order.
func (b Buckets) Keys() []int {
	keys := make([]int, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SplitCounts finds the rings of every graph and tallies them per length.
// The first graph that fails aborts the split.
func SplitCounts(ctx context.Context, graphs []models.Graph, finder *rings.Finder) (Buckets, error) {
	b := NewBuckets(finder.MaxSize())
	for i, g := range graphs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rs, err := finder.Find(g)
		if err != nil {
			return nil, fmt.Errorf("graph %d: %w", i, err)
		}
		b.Add(rings.CountByLength(rs))
	}
	return b, nil
}

// Combine concatenates the per-graph counts of several splits.
func Combine(parts ...Buckets) Buckets {
	all := make(Buckets)
	for _, p := range parts {
		for _, k := range p.Keys() {
			all[k] = append(all[k], p[k]...)
		}
	}
	return all
}

// Summary reduces one bucket.
type Summary struct {
	Length  int     `yaml:"length" json:"length"`
	Min     float64 `yaml:"min" json:"min"`
	Max     float64 `yaml:"max" json:"max"`
	Mean    float64 `yaml:"mean" json:"mean"`
	Median  float64 `yaml:"median" json:"median"`
	Sum     int     `yaml:"sum" json:"sum"`
	NonZero int     `yaml:"nonzero" json:"nonzero"`
}

// Summarize computes min, max, mean, median, sum and the non-zero count of
// values. An empty input yields a zero Summary.
func Summarize(values []int) Summary {
	var s Summary
	if len(values) == 0 {
		return s
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)
	for _, v := range sorted {
		s.Sum += v
		if v != 0 {
			s.NonZero++
		}
	}
	n := len(sorted)
	s.Min = float64(sorted[0])
	s.Max = float64(sorted[n-1])
	s.Mean = float64(s.Sum) / float64(n)
	if n%2 == 1 {
		s.Median = float64(sorted[n/2])
	} else {
		s.Median = float64(sorted[n/2-1]+sorted[n/2]) / 2
	}
	return s
}

// Summaries returns one Summary per bucket, by ascending ring length.
func (b Buckets) Summaries() []Summary {
	out := make([]Summary, 0, len(b))
	for _, k := range b.Keys() {
		s := Summarize(b[k])
		s.Length = k
		out = append(out, s)
	}
	return out
}

// Report writes one line per ring length.
func Report(w io.Writer, b Buckets) error {
	for _, s := range b.Summaries() {
		_, err := fmt.Fprintf(w, "Ring %02d => Min: %.3f, Max: %.3f, Mean:%.3f, Median: %.3f, Sum: %d, Non-zero: %d\n",
			s.Length, s.Min, s.Max, s.Mean, s.Median, s.Sum, s.NonZero)
		if err != nil {
			return err
		}
	}
	return nil
}

// Section is a named group of summaries, typically one split.
type Section struct {
	Name      string    `yaml:"name"`
	Graphs    int       `yaml:"graphs"`
	Summaries []Summary `yaml:"rings"`
}

// NewSection summarizes b under name.
func NewSection(name string, b Buckets) Section {
	sec := Section{Name: name, Summaries: b.Summaries()}
	if keys := b.Keys(); len(keys) > 0 {
		sec.Graphs = len(b[keys[0]])
	}
	return sec
}

// WriteYAML encodes sections as a YAML document.
func WriteYAML(w io.Writer, sections []Section) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string][]Section{"splits": sections}); err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	return enc.Close()
}
