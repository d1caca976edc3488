// Package rings enumerates the simple cycles ("rings") of an undirected graph
// whose length lies within a configured bound.
//
// Every qualifying cycle is reported, not just a cycle basis: a fused
// bicyclic system such as naphthalene yields both six-rings and, given a
// large enough bound, the ten-ring around their perimeter.
//
// The algorithm and dataset packages (rings, cellcomplex, stats, dataset)
// test with testify; storage, transport, config and CLI packages use plain
// testing.
package rings

import (
	"errors"
	"fmt"
	"slices"

	"github.com/YuGuangWang/cwn/pkg/models"
)

// MinRingSize is the length of the shortest ring (a triangle).
const MinRingSize = 3

// ErrRingLimit is returned when a graph holds more rings than the configured cap.
var ErrRingLimit = errors.New("ring limit exceeded")

// Option configures a Finder.
type Option func(*Finder)

// WithMaxRings makes Find fail with ErrRingLimit once more than n rings have
// been found. n <= 0 disables the cap.
func WithMaxRings(n int) Option {
	return func(f *Finder) {
		f.maxRings = n
	}
}

// Finder enumerates rings of length in [3, MaxSize].
type Finder struct {
	maxSize  int
	maxRings int
}

// New returns a Finder for rings of at most maxSize vertices.
func New(maxSize int, opts ...Option) (*Finder, error) {
	if maxSize < MinRingSize {
		return nil, fmt.Errorf("%w: max ring size %d is below %d", models.ErrInvalidConfig, maxSize, MinRingSize)
	}
	f := &Finder{maxSize: maxSize}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// MaxSize returns the inclusive ring length bound.
func (f *Finder) MaxSize() int {
	return f.maxSize
}

// FindRings returns every simple cycle of g with length in [3, maxSize],
// canonicalized and sorted by length, then lexicographically.
func FindRings(g models.Graph, maxSize int) ([]models.Ring, error) {
	f, err := New(maxSize)
	if err != nil {
		return nil, err
	}
	return f.Find(g)
}

// Find returns every simple cycle of g with length in [3, f.MaxSize()].
// g is not modified.
func (f *Finder) Find(g models.Graph) ([]models.Ring, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	w := &walker{
		adj:      g.Adjacency(),
		maxSize:  f.maxSize,
		maxRings: f.maxRings,
		onPath:   make([]bool, g.NumNodes),
		path:     make([]int, 0, f.maxSize),
		seen:     make(map[string]struct{}),
	}
	for start := range g.NumNodes {
		if err := w.from(start); err != nil {
			return nil, err
		}
	}

	Sort(w.rings)
	return w.rings, nil
}

// walker holds the state of the bounded DFS. Paths only visit vertices with
// ids above the start vertex, so every ring is discovered from its minimum
// vertex, once per traversal direction.
type walker struct {
	adj      [][]int
	maxSize  int
	maxRings int
	onPath   []bool
	path     []int
	seen     map[string]struct{}
	rings    []models.Ring
}

func (w *walker) from(start int) error {
	w.path = append(w.path[:0], start)
	w.onPath[start] = true
	err := w.extend(start, start)
	w.onPath[start] = false
	return err
}

func (w *walker) extend(start, v int) error {
	for _, u := range w.adj[v] {
		if u == start {
			if len(w.path) >= MinRingSize {
				if err := w.record(); err != nil {
					return err
				}
			}
			continue
		}
		if u < start || w.onPath[u] || len(w.path) == w.maxSize {
			continue
		}

		w.path = append(w.path, u)
		w.onPath[u] = true
		if err := w.extend(start, u); err != nil {
			return err
		}
		w.path = w.path[:len(w.path)-1]
		w.onPath[u] = false
	}
	return nil
}

func (w *walker) record() error {
	ring := Canonical(w.path)
	key := ring.Key()
	if _, ok := w.seen[key]; ok {
		return nil
	}
	w.seen[key] = struct{}{}
	w.rings = append(w.rings, ring)

	if w.maxRings > 0 && len(w.rings) > w.maxRings {
		return fmt.Errorf("%w: more than %d rings", ErrRingLimit, w.maxRings)
	}
	return nil
}

// Canonical returns a copy of r rotated to start at its minimum vertex and
// traversed in whichever direction is lexicographically smaller. Rings equal
// up to rotation and reflection share one canonical form.
func Canonical(r models.Ring) models.Ring {
	n := len(r)
	if n == 0 {
		return nil
	}

	m := 0
	for i, v := range r {
		if v < r[m] {
			m = i
		}
	}

	fwd := make(models.Ring, n)
	bwd := make(models.Ring, n)
	for i := range n {
		fwd[i] = r[(m+i)%n]
		bwd[i] = r[(m-i+n)%n]
	}
	if slices.Compare(bwd, fwd) < 0 {
		return bwd
	}
	return fwd
}

// Sort orders rings by length, then lexicographically.
func Sort(rs []models.Ring) {
	slices.SortFunc(rs, Compare)
}

// Compare orders two rings by length, then lexicographically.
func Compare(a, b models.Ring) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return slices.Compare(a, b)
}

// CountByLength tallies rings per vertex count.
func CountByLength(rs []models.Ring) map[int]int {
	counts := make(map[int]int)
	for _, r := range rs {
		counts[len(r)]++
	}
	return counts
}
