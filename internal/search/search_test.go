package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dom "mdtodo/internal/domain"
)

func fixtures() []dom.Todo {
	return []dom.Todo{
		{ID: "1", Title: "Buy milk", Content: "whole milk from the corner shop", Tags: []string{"home", "errand"}, Priority: dom.PriorityLow, Section: dom.SectionToday},
		{ID: "2", Title: "Quarterly report", Content: "include milk sales figures", Tags: []string{"work"}, Priority: dom.PriorityHigh, Section: dom.SectionWeek},
		{ID: "3", Title: "Renew passport", Content: "", Tags: []string{"errand"}, Priority: dom.PriorityMedium, Section: dom.SectionLongterm, Completed: true},
	}
}

func ids(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Todo.ID
	}
	return out
}

func TestApply_NoFilterKeepsOrder(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "3"}, ids(Apply(fixtures(), Filter{})))
}

func TestApply_TitleOutranksContent(t *testing.T) {
	got := Apply(fixtures(), Filter{Query: "milk"})
	require.Len(t, got, 2)
	assert.Equal(t, []string{"1", "2"}, ids(got))
	assert.Greater(t, got[0].Score, got[1].Score)
	assert.Contains(t, got[1].Snippet, "milk")
}

func TestApply_AllTermsMustMatch(t *testing.T) {
	assert.Equal(t, []string{"1"}, ids(Apply(fixtures(), Filter{Query: "milk shop"})))
	assert.Empty(t, Apply(fixtures(), Filter{Query: "milk passport"}))
}

func TestApply_FuzzyTitle(t *testing.T) {
	assert.Equal(t, []string{"3"}, ids(Apply(fixtures(), Filter{Query: "rnwpsp"})))
}

func TestApply_ShortTermsIgnored(t *testing.T) {
	assert.Len(t, Apply(fixtures(), Filter{Query: "a"}), 3)
}

func TestApply_TagMatch(t *testing.T) {
	assert.Equal(t, []string{"2"}, ids(Apply(fixtures(), Filter{Query: "work"})))
}

func TestApply_Filters(t *testing.T) {
	todos := fixtures()

	assert.Equal(t, []string{"1", "3"}, ids(Apply(todos, Filter{Tags: []string{"errand"}})))
	assert.Equal(t, []string{"1", "2"}, ids(Apply(todos, Filter{Tags: []string{"home", "work"}})))
	assert.Equal(t, []string{"2", "3"}, ids(Apply(todos, Filter{Priorities: []dom.Priority{dom.PriorityHigh, dom.PriorityMedium}})))
	assert.Equal(t, []string{"1", "2"}, ids(Apply(todos, Filter{HideCompleted: true})))
	assert.Equal(t, []string{"2"}, ids(Apply(todos, Filter{Section: dom.SectionWeek})))
	assert.Equal(t, []string{"1"}, ids(Apply(todos, Filter{Query: "milk", Tags: []string{"errand"}})))
}

func TestTags(t *testing.T) {
	assert.Equal(t, []string{"errand", "home", "work"}, Tags(fixtures()))
	assert.Empty(t, Tags(nil))
}

func TestBuildSnippet(t *testing.T) {
	long := strings.Repeat("lorem ipsum ", 20) + "needle" + strings.Repeat(" dolor sit", 20)
	s := buildSnippet(long, []string{"needle"})
	assert.True(t, strings.HasPrefix(s, "…"))
	assert.True(t, strings.HasSuffix(s, "…"))
	assert.Contains(t, s, "needle")

	assert.Equal(t, "short", buildSnippet("short", []string{"zzz"}))
	assert.Equal(t, "", buildSnippet("   ", []string{"x"}))
}
