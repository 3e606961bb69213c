// Package kg holds the knowledge-graph domain types shared by the resolver, subgraph builder,
// recommendation space and agent, plus the read-only Store capability they query.
package kg

import (
	"errors"
	"sort"
	"strings"
)

// ErrStoreUnavailable marks connectivity failures of the graph store. Empty results are never
// reported through it.
var ErrStoreUnavailable = errors.New("knowledge graph store unavailable")

type Category string

const (
	CategorySupplement Category = "Dietary Supplement"
	CategoryDrugs      Category = "Drugs"
	CategoryDisease    Category = "Disease"
	CategorySymptom    Category = "Symptom"
	CategoryGene       Category = "Gene"
	CategoryUngrouped  Category = "Ungrouped"

	// CategoryNotFound labels placeholder nodes for mentions with no KG match.
	CategoryNotFound Category = "NotFind"
)

var categoryAliases = map[string]Category{
	"dietary supplement":  CategorySupplement,
	"dietary supplements": CategorySupplement,
	"supplement":          CategorySupplement,
	"supplements":         CategorySupplement,
	"drug":                CategoryDrugs,
	"drugs":               CategoryDrugs,
	"disease":             CategoryDisease,
	"diseases":            CategoryDisease,
	"disorder":            CategoryDisease,
	"disorders":           CategoryDisease,
	"symptom":             CategorySymptom,
	"symptoms":            CategorySymptom,
	"gene":                CategoryGene,
	"genes":               CategoryGene,
	"ungrouped":           CategoryUngrouped,
	"notfind":             CategoryNotFound,
}

// ParseCategory maps a raw label onto the fixed enumeration. Labels outside it are kept verbatim
// so KG-specific groupings still reach the UI; blank labels become Ungrouped.
func ParseCategory(raw string) Category {
	s := strings.TrimSpace(raw)
	if s == "" {
		return CategoryUngrouped
	}
	if c, ok := categoryAliases[strings.ToLower(s)]; ok {
		return c
	}
	return Category(s)
}

// Labels returns the lower-cased raw KG labels that ParseCategory maps onto c, so queries can
// match the stored label rather than the parsed one. Ungrouped includes the blank label.
func Labels(c Category) []string {
	out := []string{strings.ToLower(strings.TrimSpace(string(c)))}
	for alias, target := range categoryAliases {
		if target == c && alias != out[0] {
			out = append(out, alias)
		}
	}
	if c == CategoryUngrouped {
		out = append(out, "")
	}
	sort.Strings(out[1:])
	return out
}

type Node struct {
	ID       string
	Name     string
	Category Category
}

// Relation is one relationship instance as read from the store. Source/Target order reflects
// traversal only; relations are undirected.
type Relation struct {
	SourceID string
	TargetID string
	Type     string
	Evidence string
}

type Path struct {
	Nodes     []Node
	Relations []Relation
}

// Entity is a resolved KG identity as consumed by the builder and recommendation space.
type Entity struct {
	ID   string
	Name string
}

type Triple struct {
	Head     string `json:"head"`
	Relation string `json:"relation"`
	Tail     string `json:"tail"`
}

// Complete reports whether both ends are present. The relation may be blank.
func (t Triple) Complete() bool {
	return strings.TrimSpace(t.Head) != "" && strings.TrimSpace(t.Tail) != ""
}

// NeighborRow is one ranked (head, relation, tail) aggregate used for suggestions.
type NeighborRow struct {
	HeadID       string
	HeadName     string
	TailID       string
	TailName     string
	TailCategory Category
	Relation     string
	Evidence     int
}

type NeighborQuery struct {
	Whitelist []string
	Exclude   []string
	Limit     int
}
