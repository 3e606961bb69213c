package neo4jstore

import (
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/kgchat-backend/internal/kg"
)

func pathsFromRecords(recs []*neo4j.Record) []kg.Path {
	out := make([]kg.Path, 0, len(recs))
	for _, rec := range recs {
		v, ok := rec.Get("path")
		if !ok {
			continue
		}
		p, ok := v.(neo4j.Path)
		if !ok {
			continue
		}
		out = append(out, convertPath(p))
	}
	return out
}

func convertPath(p neo4j.Path) kg.Path {
	byElement := make(map[string]string, len(p.Nodes))
	nodes := make([]kg.Node, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		node := convertNode(n)
		byElement[n.ElementId] = node.ID
		nodes = append(nodes, node)
	}
	rels := make([]kg.Relation, 0, len(p.Relationships))
	for _, r := range p.Relationships {
		typ := propString(r.Props, "Type", "type")
		if typ == "" {
			typ = r.Type
		}
		rels = append(rels, kg.Relation{
			SourceID: byElement[r.StartElementId],
			TargetID: byElement[r.EndElementId],
			Type:     typ,
			Evidence: propString(r.Props, "PubMed_ID", "pubmed_id", "evidence"),
		})
	}
	return kg.Path{Nodes: nodes, Relations: rels}
}

func convertNode(n neo4j.Node) kg.Node {
	id := propString(n.Props, "CUI", "cui", "id")
	if id == "" {
		id = n.ElementId
	}
	return kg.Node{
		ID:       id,
		Name:     propString(n.Props, "Name", "name", "name_lc"),
		Category: kg.ParseCategory(propString(n.Props, "Label", "label")),
	}
}

func neighborRowFromRecord(rec *neo4j.Record) kg.NeighborRow {
	get := func(key string) any {
		v, _ := rec.Get(key)
		return v
	}
	evidence := 0
	switch v := get("evidence").(type) {
	case int64:
		evidence = int(v)
	case int:
		evidence = v
	case float64:
		evidence = int(v)
	}
	return kg.NeighborRow{
		HeadID:       anyString(get("head_id")),
		HeadName:     anyString(get("head_name")),
		TailID:       anyString(get("tail_id")),
		TailName:     anyString(get("tail_name")),
		TailCategory: kg.ParseCategory(anyString(get("tail_label"))),
		Relation:     anyString(get("relation")),
		Evidence:     evidence,
	}
}

func distinctCategories(labels []string) []kg.Category {
	seen := make(map[kg.Category]struct{}, len(labels))
	out := make([]kg.Category, 0, len(labels))
	for _, l := range labels {
		c := kg.ParseCategory(l)
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func propString(props map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := props[k]; ok {
			if s := anyString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func anyString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
