package repo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	dom "mdtodo/internal/domain"
)

const (
	metaSuffix    = ".meta.json"
	contentSuffix = ".md"
	tmpSuffix     = ".tmp"
	stashSuffix   = ".stash"
	dateLayout    = "2006-01-02"
)

// metaFile is the on-disk shape of <base>.meta.json.
type metaFile struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Slug      string    `json:"slug,omitempty"`
	Completed bool      `json:"completed"`
	Priority  string    `json:"priority"`
	Tags      []string  `json:"tags"`
	Section   string    `json:"section"`
	Order     int       `json:"order"`
	DueDate   string    `json:"dueDate,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const metaSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id"],
  "properties": {
    "id":        {"type": "string", "minLength": 1},
    "title":     {"type": "string"},
    "slug":      {"type": "string"},
    "completed": {"type": "boolean"},
    "priority":  {"enum": ["high", "medium", "low", ""]},
    "tags":      {"type": ["array", "null"], "items": {"type": "string"}},
    "section":   {"enum": ["today", "week", "longterm", ""]},
    "order":     {"type": "integer"},
    "dueDate":   {"type": ["string", "null"]},
    "createdAt": {"type": "string"},
    "updatedAt": {"type": "string"}
  }
}`

var metaSchema = jsonschema.MustCompileString("meta.schema.json", metaSchemaJSON)

// decodeMeta validates and parses a metadata document.
func decodeMeta(data []byte) (metaFile, error) {
	var doc any
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return metaFile{}, fmt.Errorf("parse metadata: %w", err)
	}
	if err := metaSchema.Validate(doc); err != nil {
		return metaFile{}, fmt.Errorf("invalid metadata: %w", err)
	}
	var m metaFile
	if err := json.Unmarshal(data, &m); err != nil {
		return metaFile{}, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}

func encodeMeta(t dom.Todo) ([]byte, error) {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return json.MarshalIndent(metaFile{
		ID:        t.ID,
		Title:     t.Title,
		Slug:      t.Slug,
		Completed: t.Completed,
		Priority:  string(t.Priority),
		Tags:      tags,
		Section:   string(t.Section),
		Order:     t.Order,
		DueDate:   t.DueDate,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}, "", "  ")
}

func (m metaFile) toDomain(content string) dom.Todo {
	t := dom.Todo{
		ID:        m.ID,
		Title:     m.Title,
		Slug:      m.Slug,
		Content:   content,
		Completed: m.Completed,
		Priority:  dom.Priority(m.Priority),
		Tags:      m.Tags,
		Section:   dom.Section(m.Section),
		Order:     m.Order,
		DueDate:   normalizeDueDate(m.DueDate),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if !t.Priority.Valid() {
		t.Priority = dom.PriorityMedium
	}
	if !t.Section.Valid() {
		t.Section = dom.SectionToday
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return t
}

// normalizeDueDate accepts date-only or RFC3339 values and keeps the date part.
func normalizeDueDate(s string) string {
	if s == "" {
		return ""
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.Format(dateLayout)
	}
	if len(s) >= len(dateLayout) {
		if _, err := time.Parse(dateLayout, s[:len(dateLayout)]); err == nil {
			return s[:len(dateLayout)]
		}
	}
	return s
}
