package handlers

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/yungbote/kgchat-backend/internal/kg"
)

// wireTriple accepts either ["head", "relation", "tail"] or {"head","relation","tail"}.
// Anything else decodes to the zero triple, which downstream treats as incomplete.
type wireTriple kg.Triple

func (w *wireTriple) UnmarshalJSON(b []byte) error {
	*w = wireTriple{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '[':
		var parts []any
		if err := json.Unmarshal(b, &parts); err != nil || len(parts) != 3 {
			return nil
		}
		var s [3]string
		for i, p := range parts {
			v, ok := p.(string)
			if !ok {
				return nil
			}
			s[i] = v
		}
		*w = wireTriple{Head: s[0], Relation: s[1], Tail: s[2]}
	case '{':
		var t kg.Triple
		if err := json.Unmarshal(b, &t); err == nil {
			*w = wireTriple(t)
		}
	}
	return nil
}

func toTriples(in []wireTriple) []kg.Triple {
	out := make([]kg.Triple, len(in))
	for i, w := range in {
		out[i] = kg.Triple{
			Head:     strings.TrimSpace(w.Head),
			Relation: strings.TrimSpace(w.Relation),
			Tail:     strings.TrimSpace(w.Tail),
		}
	}
	return out
}

// optionalInt accepts a JSON number or a numeric string; null and "" leave it unset.
type optionalInt struct {
	Set   bool
	Value int
}

func (o *optionalInt) UnmarshalJSON(b []byte) error {
	*o = optionalInt{}
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*o = optionalInt{Set: true, Value: n}
	return nil
}

func (o optionalInt) Ptr() *int {
	if !o.Set {
		return nil
	}
	v := o.Value
	return &v
}
