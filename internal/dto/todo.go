package dto

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

const dateLayout = "2006-01-02"

var (
	dueParser = newDueParser()
	// now anchors relative dates like "tomorrow".
	now = time.Now
)

func newDueParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// DueDate parses dueDate from JSON as a date ("2006-01-02"), an RFC3339 datetime
// or a phrase like "next friday", and keeps only the date. "" or null clears it.
type DueDate string

func (d *DueDate) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*d = ""
		return nil
	}
	v, err := ParseDueDate(*raw)
	if err != nil {
		return err
	}
	*d = DueDate(v)
	return nil
}

// ParseDueDate normalizes s to YYYY-MM-DD.
func ParseDueDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.Format(dateLayout), nil
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(dateLayout), nil
		}
	}
	r, err := dueParser.Parse(s, now())
	if err == nil && r != nil {
		return r.Time.Format(dateLayout), nil
	}
	return "", fmt.Errorf("dueDate: use a date (YYYY-MM-DD), an RFC3339 datetime or a phrase like \"tomorrow\"")
}

type CreateTodoRequest struct {
	Title    string   `json:"title" binding:"required,max=200"`
	Content  string   `json:"content"`
	Priority string   `json:"priority" binding:"omitempty,oneof=high medium low"`
	Tags     []string `json:"tags"`
	Section  string   `json:"section" binding:"omitempty,oneof=today week longterm"`
	DueDate  DueDate  `json:"dueDate"` // optional: "2026-02-19", RFC3339 or "tomorrow"
}

type UpdateTodoRequest struct {
	Title     *string   `json:"title" binding:"omitempty,max=200"`
	Content   *string   `json:"content"`
	Completed *bool     `json:"completed"`
	Priority  *string   `json:"priority" binding:"omitempty,oneof=high medium low"`
	Tags      *[]string `json:"tags"`
	Section   *string   `json:"section" binding:"omitempty,oneof=today week longterm"`
	DueDate   *DueDate  `json:"dueDate"` // nil = keep, "" = clear
}

// ReorderRequest accepts either the positional shape
// {sourceIndex, destinationIndex, sourceSection, destinationSection}
// or the adjacency shape {sourceId, destinationId, section}.
type ReorderRequest struct {
	SourceIndex        *int   `json:"sourceIndex"`
	DestinationIndex   *int   `json:"destinationIndex"`
	SourceSection      string `json:"sourceSection" binding:"omitempty,oneof=today week longterm"`
	DestinationSection string `json:"destinationSection" binding:"omitempty,oneof=today week longterm"`

	SourceID      string  `json:"sourceId"`
	DestinationID *string `json:"destinationId"`
	Section       string  `json:"section" binding:"omitempty,oneof=today week longterm"`
}

func (r ReorderRequest) ByPosition() bool {
	return r.SourceIndex != nil && r.DestinationIndex != nil
}

func (r ReorderRequest) ByID() bool {
	return r.SourceID != ""
}

type TodoMeta struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug,omitempty"`
	Completed bool      `json:"completed"`
	Priority  string    `json:"priority"`
	Tags      []string  `json:"tags"`
	Section   string    `json:"section"`
	Order     int       `json:"order"`
	DueDate   *string   `json:"dueDate,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type TodoResponse struct {
	Meta    TodoMeta `json:"meta"`
	Content string   `json:"content"`
}

type ListTodosResponse struct {
	Items []TodoResponse `json:"items"`
}

type TagsResponse struct {
	Tags []string `json:"tags"`
}

type HTMLResponse struct {
	ID   string `json:"id"`
	HTML string `json:"html"`
}

type DeleteResponse struct {
	Success bool `json:"success"`
}
