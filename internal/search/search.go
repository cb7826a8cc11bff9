// Package search ranks and filters todos in memory.
package search

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	dom "mdtodo/internal/domain"
)

const (
	titleWeight   = 0.6
	contentWeight = 0.3
	tagWeight     = 0.1

	minTermLength = 2
)

// Filter narrows a todo list. Zero values disable the corresponding check.
type Filter struct {
	Query         string
	Tags          []string // any-of
	Priorities    []dom.Priority
	Section       dom.Section
	HideCompleted bool
}

// Result is a matching todo with its relevance score and a content excerpt.
type Result struct {
	Todo    dom.Todo
	Score   float64
	Snippet string
}

// Apply returns the todos matching f. With a query the results are ordered by
// score, otherwise they keep the input order.
func Apply(todos []dom.Todo, f Filter) []Result {
	terms := tokenize(f.Query)
	tags := toSet(f.Tags)
	priorities := make(map[dom.Priority]bool, len(f.Priorities))
	for _, p := range f.Priorities {
		priorities[p] = true
	}

	out := make([]Result, 0, len(todos))
	for _, t := range todos {
		if f.HideCompleted && t.Completed {
			continue
		}
		if f.Section != "" && t.Section != f.Section {
			continue
		}
		if len(priorities) > 0 && !priorities[t.Priority] {
			continue
		}
		if len(tags) > 0 && !hasAnyTag(t, tags) {
			continue
		}
		score, ok := rank(t, terms)
		if !ok {
			continue
		}
		out = append(out, Result{Todo: t, Score: score, Snippet: buildSnippet(t.Content, terms)})
	}

	if len(terms) > 0 {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	}
	return out
}

// Todos is Apply without the scores.
func Todos(todos []dom.Todo, f Filter) []dom.Todo {
	results := Apply(todos, f)
	out := make([]dom.Todo, len(results))
	for i, r := range results {
		out[i] = r.Todo
	}
	return out
}

// Tags returns every distinct tag, sorted.
func Tags(todos []dom.Todo) []string {
	set := make(map[string]struct{})
	for _, t := range todos {
		for _, tag := range t.Tags {
			set[tag] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for tag := range set {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func tokenize(q string) []string {
	var terms []string
	for _, f := range strings.FieldsFunc(strings.ToLower(q), unicode.IsSpace) {
		f = strings.Trim(f, "\"'")
		if utf8.RuneCountInString(f) >= minTermLength {
			terms = append(terms, f)
		}
	}
	return terms
}

// rank scores t against every term. All terms must match some field.
func rank(t dom.Todo, terms []string) (float64, bool) {
	if len(terms) == 0 {
		return 0, true
	}
	title := strings.ToLower(t.Title)
	content := strings.ToLower(t.Content)

	var total float64
	for _, term := range terms {
		best := 0.0
		if sc, ok := fieldScore(term, title, titleWeight, true); ok {
			best = max(best, sc)
		}
		if sc, ok := fieldScore(term, content, contentWeight, false); ok {
			best = max(best, sc)
		}
		for _, tag := range t.Tags {
			if sc, ok := fieldScore(term, strings.ToLower(tag), tagWeight, true); ok {
				best = max(best, sc)
			}
		}
		if best == 0 {
			return 0, false
		}
		total += best
	}
	return total, true
}

// fieldScore grades a match: exact > prefix > word prefix > substring > subsequence.
func fieldScore(term, field string, weight float64, fuzzy bool) (float64, bool) {
	if field == "" || term == "" {
		return 0, false
	}
	switch {
	case field == term:
		return weight * 5, true
	case strings.HasPrefix(field, term):
		return weight * 4, true
	case strings.Contains(field, " "+term):
		return weight * 3.5, true
	case strings.Contains(field, term):
		return weight * 3, true
	case fuzzy && isSubsequence(term, field):
		return weight * 2, true
	}
	return 0, false
}

func isSubsequence(term, field string) bool {
	runes := []rune(term)
	i := 0
	for _, r := range field {
		if i < len(runes) && r == runes[i] {
			i++
		}
	}
	return i == len(runes)
}

func buildSnippet(text string, terms []string) string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return ""
	}
	lower := strings.ToLower(clean)
	for _, term := range terms {
		idx := strings.Index(lower, term)
		if idx < 0 || len(lower) != len(clean) {
			continue
		}
		start := max(0, idx-40)
		end := min(len(clean), idx+len(term)+40)
		for start > 0 && !utf8.RuneStart(clean[start]) {
			start--
		}
		for end < len(clean) && !utf8.RuneStart(clean[end]) {
			end++
		}
		snippet := strings.TrimSpace(clean[start:end])
		if start > 0 {
			snippet = "…" + snippet
		}
		if end < len(clean) {
			snippet += "…"
		}
		return snippet
	}
	if r := []rune(clean); len(r) > 120 {
		return strings.TrimSpace(string(r[:120])) + "…"
	}
	return clean
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = true
		}
	}
	return set
}

func hasAnyTag(t dom.Todo, want map[string]bool) bool {
	for _, tag := range t.Tags {
		if want[tag] {
			return true
		}
	}
	return false
}
