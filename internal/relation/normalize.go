// Package relation canonicalizes free-text relation phrases into the KG relation taxonomy.
package relation

import (
	"strings"
	"unicode"
)

const (
	InteractsWith  = "INTERACTS_WITH"
	Affects        = "AFFECTS"
	Augments       = "AUGMENTS"
	Stimulates     = "STIMULATES"
	Inhibits       = "INHIBITS"
	Disrupts       = "DISRUPTS"
	Treats         = "TREATS"
	Prevents       = "PREVENTS"
	Causes         = "CAUSES"
	Predisposes    = "PREDISPOSES"
	Complicates    = "COMPLICATES"
	Produces       = "PRODUCES"
	CoexistsWith   = "COEXISTS_WITH"
	AssociatedWith = "ASSOCIATED_WITH"
)

// Canonical lists the fixed taxonomy in a stable order.
var Canonical = []string{
	InteractsWith, Affects, Augments, Stimulates, Inhibits, Disrupts, Treats,
	Prevents, Causes, Predisposes, Complicates, Produces, CoexistsWith, AssociatedWith,
}

var synonyms = map[string]string{
	"interact": InteractsWith, "interacts": InteractsWith, "interacts with": InteractsWith,
	"binds": InteractsWith, "binding": InteractsWith, "complexes with": InteractsWith,
	"affect": Affects, "affects": Affects, "impact": Affects, "impacts": Affects,
	"improve": Affects, "improves": Affects, "help": Affects, "helps": Affects,
	"increase": Augments, "increases": Augments, "enhance": Augments, "enhances": Augments,
	"stimulate": Stimulates, "stimulates": Stimulates, "activate": Stimulates, "activates": Stimulates,
	"inhibit": Inhibits, "inhibits": Inhibits, "suppress": Inhibits, "suppresses": Inhibits,
	"reduce": Inhibits, "reduces": Inhibits, "decrease": Inhibits, "decreases": Inhibits,
	"lower": Inhibits, "lowers": Inhibits, "slow": Inhibits, "slows": Inhibits, "fight": Inhibits,
	"disrupt": Disrupts, "disrupts": Disrupts, "impair": Disrupts, "impairs": Disrupts,
	"treat": Treats, "treats": Treats,
	"prevent": Prevents, "prevents": Prevents, "protect": Prevents, "protects": Prevents,
	"cause": Causes, "causes": Causes,
	"predispose": Predisposes, "predisposes": Predisposes,
	"complicate": Complicates, "complicates": Complicates,
	"produce": Produces, "produces": Produces,
	"coexists with": CoexistsWith,
	"associated with": AssociatedWith, "associate": AssociatedWith, "associates with": AssociatedWith,
}

func init() {
	// Canonical labels are fixed points: their cleaned form maps back to themselves.
	for _, c := range Canonical {
		synonyms[clean(c)] = c
	}
}

// Normalize maps a relation phrase to an UPPER_SNAKE label. Unknown phrases are accepted and
// canonicalized verbatim; empty input yields "".
func Normalize(text string) string {
	s := clean(text)
	if s == "" {
		return ""
	}
	if c, ok := synonyms[s]; ok {
		return c
	}
	for _, suffix := range []string{"ing", "ed", "s"} {
		stem, ok := strings.CutSuffix(s, suffix)
		if !ok || stem == "" {
			continue
		}
		if c, ok := synonyms[stem]; ok {
			return c
		}
		if suffix != "s" {
			if c, ok := synonyms[stem+"e"]; ok {
				return c
			}
		}
	}
	return strings.ToUpper(strings.ReplaceAll(s, " ", "_"))
}

// clean case-folds, drops punctuation other than hyphens, folds runs of whitespace and
// underscores into single spaces and trims hyphens at the edges. Folding goes through upper case
// first so that the fallback label cleans back to the same key (e.g. "ſ" -> "S" -> "s").
func clean(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range strings.ToLower(strings.ToUpper(text)) {
		switch {
		case r == '_' || unicode.IsSpace(r):
			space = true
		case r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return strings.TrimFunc(b.String(), func(r rune) bool { return r == '-' || r == ' ' })
}
