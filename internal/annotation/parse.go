// Package annotation extracts entities and triples from assistant replies written in the
// bracket markup the chat prompt asks for:
//
//	[Fish Oil|Dietary Supplement]($N1) may [reduce]($R1, $N1, $N2) [inflammation]($N2) || ["Fish Oil"]
package annotation

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/yungbote/kgchat-backend/internal/kg"
)

var markRe = regexp.MustCompile(`\[([^\[\]]+)\]\(\s*(\$[^()]*)\)`)

type Entity struct {
	Ref      string      `json:"ref"`
	Name     string      `json:"name"`
	Category kg.Category `json:"category,omitempty"`
}

type Parsed struct {
	// Text is the reply with markup replaced by the bracketed display text.
	Text     string      `json:"text"`
	Entities []Entity    `json:"entities"`
	Triples  []kg.Triple `json:"triples"`
	// Question lists entities the model identified in the user's question.
	Question []string `json:"question"`
}

// Parse never fails: unknown refs and malformed groups are skipped.
func Parse(reply string) Parsed {
	body, question := splitQuestion(reply)

	out := Parsed{Entities: []Entity{}, Triples: []kg.Triple{}, Question: question}
	matches := markRe.FindAllStringSubmatchIndex(body, -1)

	byRef := map[string]int{}
	for _, m := range matches {
		inner, refs := body[m[2]:m[3]], body[m[4]:m[5]]
		ref := strings.TrimSpace(refs)
		if !strings.HasPrefix(ref, "$N") || strings.ContainsAny(ref, ",;") {
			continue
		}
		if _, ok := byRef[ref]; ok {
			continue
		}
		name, cat := splitCategory(inner)
		if name == "" {
			continue
		}
		byRef[ref] = len(out.Entities)
		out.Entities = append(out.Entities, Entity{Ref: ref, Name: name, Category: cat})
	}

	seen := map[kg.Triple]bool{}
	for _, m := range matches {
		label, refs := strings.TrimSpace(body[m[2]:m[3]]), body[m[4]:m[5]]
		if !strings.HasPrefix(strings.TrimSpace(refs), "$R") {
			continue
		}
		for _, group := range strings.Split(refs, ";") {
			parts := splitRefs(group)
			if len(parts) != 3 || !strings.HasPrefix(parts[0], "$R") {
				continue
			}
			hi, okH := byRef[parts[1]]
			ti, okT := byRef[parts[2]]
			if !okH || !okT {
				continue
			}
			t := kg.Triple{Head: out.Entities[hi].Name, Relation: label, Tail: out.Entities[ti].Name}
			if seen[t] {
				continue
			}
			seen[t] = true
			out.Triples = append(out.Triples, t)
		}
	}

	out.Text = markRe.ReplaceAllStringFunc(body, func(s string) string {
		sub := markRe.FindStringSubmatch(s)
		name, _ := splitCategory(sub[1])
		return name
	})
	return out
}

// Mentions returns the distinct entity names in order of first annotation.
func (p Parsed) Mentions() []string {
	out := make([]string, 0, len(p.Entities))
	seen := map[string]bool{}
	for _, e := range p.Entities {
		k := strings.ToLower(e.Name)
		if !seen[k] {
			seen[k] = true
			out = append(out, e.Name)
		}
	}
	return out
}

func splitQuestion(reply string) (string, []string) {
	i := strings.LastIndex(reply, "||")
	if i < 0 {
		return strings.TrimSpace(reply), []string{}
	}
	var q []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(reply[i+2:])), &q); err != nil {
		return strings.TrimSpace(reply), []string{}
	}
	cleaned := make([]string, 0, len(q))
	for _, s := range q {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return strings.TrimSpace(reply[:i]), cleaned
}

func splitCategory(inner string) (string, kg.Category) {
	name, cat, ok := strings.Cut(inner, "|")
	name = strings.Join(strings.Fields(name), " ")
	if !ok {
		return name, ""
	}
	return name, kg.ParseCategory(cat)
}

func splitRefs(group string) []string {
	var out []string
	for _, p := range strings.Split(group, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
