package domain

import (
	"strings"
	"time"
)

// Domain entity: the task as the rest of the app sees it.
// Does not know about gin, files or Redis.
type Todo struct {
	ID        string
	Title     string
	Slug      string
	Content   string
	Completed bool
	Priority  Priority
	Tags      []string
	Section   Section
	Order     int
	DueDate   string // YYYY-MM-DD, empty when unset

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Section partitions todos into three independently ordered lists.
type Section string

const (
	SectionToday    Section = "today"
	SectionWeek     Section = "week"
	SectionLongterm Section = "longterm"
)

// Sections lists every section in display order.
var Sections = []Section{SectionToday, SectionWeek, SectionLongterm}

func (s Section) Valid() bool {
	return s.Rank() >= 0
}

// Rank is the display position of the section, -1 if unknown.
func (s Section) Rank() int {
	for i, v := range Sections {
		if v == s {
			return i
		}
	}
	return -1
}

// IsOverdue reports whether an open todo's due date is before today (YYYY-MM-DD compare).
func (t Todo) IsOverdue(today string) bool {
	return !t.Completed && t.DueDate != "" && t.DueDate < today
}

// NormalizeTags trims, drops empties and duplicates, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
