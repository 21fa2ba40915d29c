// Package filter selects feed items worth alerting on.
package filter

import (
	"slices"
	"sort"
	"strings"
	"time"

	"DisclosureMonitor/internal/domain"
)

// Field names an item attribute a rule inspects.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldLink        Field = "link"
)

// Rule is a named keyword set. Keywords are matched case-insensitively as
// substrings; an item hit by any Exclude keyword never matches the rule.
type Rule struct {
	Name     string
	Keywords []string
	Exclude  []string
	Fields   []Field
	Priority int
}

var presets = map[string]Rule{
	"awards": {
		Name:     "awards",
		Keywords: []string{"award", "bagging", "bags", "bagged"},
		Fields:   []Field{FieldTitle, FieldDescription},
		Priority: 30,
	},
	"contracts": {
		Name:     "contracts",
		Keywords: []string{"contract"},
		Fields:   []Field{FieldTitle, FieldDescription},
		Priority: 20,
	},
	"regulation-30": {
		Name:     "regulation-30",
		Keywords: []string{"regulation 30"},
		Fields:   []Field{FieldTitle, FieldDescription},
		Priority: 10,
	},
}

// Preset returns a built-in rule by name.
func Preset(name string) (Rule, bool) {
	rule, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	return rule, ok
}

// PresetNames lists the built-in rules.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Custom builds the catch-all rule from free-form configured keywords.
func Custom(keywords []string) Rule {
	return Rule{
		Name:     "custom",
		Keywords: keywords,
		Fields:   []Field{FieldTitle, FieldDescription},
	}
}

// Engine applies an ordered rule set. It holds no mutable state.
type Engine struct {
	rules []Rule
}

// New normalizes the rules and orders them by descending priority; rules of
// equal priority keep the given order.
func New(rules ...Rule) *Engine {
	normalized := make([]Rule, 0, len(rules))
	for _, r := range rules {
		r.Keywords = normalizeWords(r.Keywords)
		r.Exclude = normalizeWords(r.Exclude)
		if len(r.Keywords) == 0 {
			continue
		}
		if len(r.Fields) == 0 {
			r.Fields = []Field{FieldTitle}
		}
		normalized = append(normalized, r)
	}
	slices.SortStableFunc(normalized, func(a, b Rule) int {
		return b.Priority - a.Priority
	})
	return &Engine{rules: normalized}
}

// Rules returns the effective rule order.
func (e *Engine) Rules() []Rule {
	return slices.Clone(e.rules)
}

// Apply returns the items that match at least one rule and were published
// within window of now, annotated with their matched keywords and rule. A
// zero window disables the date cut. Input order is preserved.
func (e *Engine) Apply(items []domain.Item, window time.Duration, now time.Time) []domain.Item {
	var cutoff time.Time
	if window > 0 {
		cutoff = now.Add(-window)
	}

	matched := make([]domain.Item, 0)
	for _, item := range items {
		if !cutoff.IsZero() {
			if ts := item.Timestamp(); !ts.IsZero() && ts.Before(cutoff) {
				continue
			}
		}
		keywords, rule, ok := e.Match(item)
		if !ok {
			continue
		}
		item.MatchedKeywords = keywords
		item.MatchedRule = rule
		matched = append(matched, item)
	}
	return matched
}

// Match reports the sorted, unique keywords found in item across all rules
// and the name of the highest-priority rule that matched.
func (e *Engine) Match(item domain.Item) ([]string, string, bool) {
	found := make(map[string]struct{})
	var first string

	for _, rule := range e.rules {
		hits := rule.hits(item)
		if len(hits) == 0 {
			continue
		}
		if first == "" {
			first = rule.Name
		}
		for _, kw := range hits {
			found[kw] = struct{}{}
		}
	}
	if len(found) == 0 {
		return nil, "", false
	}

	keywords := make([]string, 0, len(found))
	for kw := range found {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)
	return keywords, first, true
}

func (r Rule) hits(item domain.Item) []string {
	text := r.text(item)
	for _, ex := range r.Exclude {
		if strings.Contains(text, ex) {
			return nil
		}
	}

	var hits []string
	for _, kw := range r.Keywords {
		if strings.Contains(text, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}

func (r Rule) text(item domain.Item) string {
	parts := make([]string, 0, len(r.Fields))
	for _, f := range r.Fields {
		switch f {
		case FieldTitle:
			parts = append(parts, item.Title)
		case FieldDescription:
			parts = append(parts, item.Description)
		case FieldLink:
			parts = append(parts, item.Link)
		}
	}
	return strings.ToLower(strings.Join(parts, "\n"))
}

func normalizeWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" && !slices.Contains(out, w) {
			out = append(out, w)
		}
	}
	return out
}

// applyKeywords is the single-rule form: items whose title or description
// contains any keyword, within window of now.
func applyKeywords(items []domain.Item, keywords []string, window time.Duration, now time.Time) []domain.Item {
	return New(Custom(keywords)).Apply(items, window, now)
}
