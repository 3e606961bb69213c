// Package index holds the normalized embedding matrix of canonical KG node names and answers
// nearest-neighbour queries by cosine similarity.
package index

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrNotLoaded reports that no embedding matrix is available.
	ErrNotLoaded = errors.New("embedding index not loaded")

	ErrDimMismatch = errors.New("embedding dimension mismatch")
)

// Row is one canonical node with its raw (unnormalized) embedding.
type Row struct {
	ID     string
	Name   string
	Vector []float32
}

// Hit is the best row for a query.
type Hit struct {
	Row   int
	ID    string
	Name  string
	Score float64
}

// Index is immutable after construction and safe for concurrent reads.
type Index struct {
	ids    []string
	names  []string
	byName map[string]int
	mat    []float32 // row-major, len = rows*dim, rows L2-normalized
	dim    int
	source string
}

// New normalizes every row. Rows must share one non-zero dimension.
func New(rows []Row, source string) (*Index, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows from %s", ErrNotLoaded, source)
	}
	dim := len(rows[0].Vector)
	if dim == 0 {
		return nil, fmt.Errorf("%w: empty vector for %q", ErrNotLoaded, rows[0].Name)
	}

	ix := &Index{
		ids:    make([]string, len(rows)),
		names:  make([]string, len(rows)),
		byName: make(map[string]int, len(rows)),
		mat:    make([]float32, 0, len(rows)*dim),
		dim:    dim,
		source: source,
	}
	for i, r := range rows {
		if len(r.Vector) != dim {
			return nil, fmt.Errorf("%w: row %d (%q) has %d dims, want %d", ErrDimMismatch, i, r.Name, len(r.Vector), dim)
		}
		ix.ids[i] = r.ID
		ix.names[i] = r.Name
		key := strings.ToLower(strings.TrimSpace(r.Name))
		if _, seen := ix.byName[key]; !seen {
			ix.byName[key] = i
		}
		ix.mat = append(ix.mat, Normalize(r.Vector)...)
	}
	return ix, nil
}

func (ix *Index) Len() int       { return len(ix.ids) }
func (ix *Index) Dim() int       { return ix.dim }
func (ix *Index) Source() string { return ix.source }

// LookupName finds a row by case-insensitive exact name.
func (ix *Index) LookupName(name string) (Hit, bool) {
	i, ok := ix.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Hit{}, false
	}
	return Hit{Row: i, ID: ix.ids[i], Name: ix.names[i], Score: 1}, true
}

// Nearest returns the row with maximal cosine similarity to q. Ties resolve to the lowest row.
// q need not be normalized.
func (ix *Index) Nearest(q []float32) (Hit, error) {
	if len(q) != ix.dim {
		return Hit{}, fmt.Errorf("%w: query has %d dims, index has %d", ErrDimMismatch, len(q), ix.dim)
	}
	qn := Normalize(q)

	best, bestScore := 0, dot(qn, ix.mat[:ix.dim])
	for i := 1; i < len(ix.ids); i++ {
		s := dot(qn, ix.mat[i*ix.dim:(i+1)*ix.dim])
		if s > bestScore {
			best, bestScore = i, s
		}
	}
	return Hit{Row: best, ID: ix.ids[best], Name: ix.names[best], Score: bestScore}, nil
}

// Normalize returns v scaled to unit L2 norm. A zero vector is returned as a zero vector.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
