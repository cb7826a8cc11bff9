package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	dom "mdtodo/internal/domain"
	"mdtodo/internal/search"
)

const maxReadableWidth = 100

var (
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"})
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"})
	overdueStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"})
)

var sectionTitles = map[dom.Section]string{
	dom.SectionToday:    "Today",
	dom.SectionWeek:     "This week",
	dom.SectionLongterm: "Long term",
}

// listItem is the machine-readable shape of a todo for json and yaml output.
type listItem struct {
	ID        string   `json:"id" yaml:"id"`
	Title     string   `json:"title" yaml:"title"`
	Slug      string   `json:"slug,omitempty" yaml:"slug,omitempty"`
	Completed bool     `json:"completed" yaml:"completed"`
	Priority  string   `json:"priority" yaml:"priority"`
	Tags      []string `json:"tags" yaml:"tags"`
	Section   string   `json:"section" yaml:"section"`
	Order     int      `json:"order" yaml:"order"`
	DueDate   string   `json:"dueDate,omitempty" yaml:"dueDate,omitempty"`
}

func (c *cli) listCmd() *cobra.Command {
	var (
		format  string
		section string
		query   string
		open    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print todos grouped by section",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := search.Filter{Query: query, Section: dom.Section(section), HideCompleted: open}
			if f.Section != "" && !f.Section.Valid() {
				return fmt.Errorf("unknown section %q", section)
			}
			svc, err := c.service()
			if err != nil {
				return err
			}
			todos, err := svc.List(cmd.Context(), f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(toItems(todos))
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(toItems(todos)); err != nil {
					return err
				}
				return enc.Close()
			case "text", "":
				writeText(out, todos, svc.Today())
				return nil
			default:
				return fmt.Errorf("unknown format %q (text, json, yaml)", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json or yaml")
	cmd.Flags().StringVarP(&section, "section", "s", "", "only this section (today, week, longterm)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "fuzzy search")
	cmd.Flags().BoolVar(&open, "open", false, "hide completed todos")
	return cmd
}

func toItems(todos []dom.Todo) []listItem {
	out := make([]listItem, len(todos))
	for i, t := range todos {
		tags := t.Tags
		if tags == nil {
			tags = []string{}
		}
		out[i] = listItem{
			ID:        t.ID,
			Title:     t.Title,
			Slug:      t.Slug,
			Completed: t.Completed,
			Priority:  string(t.Priority),
			Tags:      tags,
			Section:   string(t.Section),
			Order:     t.Order,
			DueDate:   t.DueDate,
		}
	}
	return out
}

func writeText(w io.Writer, todos []dom.Todo, today string) {
	if len(todos) == 0 {
		printf(w, "%s\n", mutedStyle.Render("no todos"))
		return
	}
	var current dom.Section
	for i, t := range todos {
		if i == 0 || t.Section != current {
			if i > 0 {
				printf(w, "\n")
			}
			current = t.Section
			printf(w, "%s\n", sectionStyle.Render(sectionTitles[current]))
		}
		printf(w, "%s\n", formatLine(t, today))
	}
}

func formatLine(t dom.Todo, today string) string {
	box := "[ ]"
	if t.Completed {
		box = "[x]"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%3d. %s %s", t.Order, box, t.Title)
	if t.Priority != dom.PriorityMedium {
		b.WriteString(" " + mutedStyle.Render("("+string(t.Priority)+")"))
	}
	for _, tag := range t.Tags {
		b.WriteString(" " + mutedStyle.Render("#"+tag))
	}
	if t.DueDate != "" {
		due := "due " + t.DueDate
		if t.IsOverdue(today) {
			b.WriteString(" " + overdueStyle.Render(due))
		} else {
			b.WriteString(" " + mutedStyle.Render(due))
		}
	}
	b.WriteString(" " + mutedStyle.Render(shortID(t.ID)))
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (c *cli) showCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Render one todo as markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service()
			if err != nil {
				return err
			}
			t, err := svc.GetByID(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			doc := toMarkdown(t)
			if !raw {
				doc = renderMarkdown(doc)
			}
			printf(cmd.OutOrStdout(), "%s", doc)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown without terminal rendering")
	return cmd
}

func toMarkdown(t dom.Todo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", t.Title)
	fmt.Fprintf(&b, "- **id:** %s\n", t.ID)
	fmt.Fprintf(&b, "- **section:** %s (#%d)\n", t.Section, t.Order)
	fmt.Fprintf(&b, "- **priority:** %s\n", t.Priority)
	if t.Completed {
		b.WriteString("- **status:** done\n")
	}
	if len(t.Tags) > 0 {
		fmt.Fprintf(&b, "- **tags:** %s\n", strings.Join(t.Tags, ", "))
	}
	if t.DueDate != "" {
		fmt.Fprintf(&b, "- **due:** %s\n", t.DueDate)
	}
	if body := strings.TrimSpace(t.Content); body != "" {
		b.WriteString("\n" + body + "\n")
	}
	return b.String()
}

// renderMarkdown falls back to the raw text when stdout is not a terminal or
// glamour fails.
func renderMarkdown(md string) string {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return md
	}
	width := 80
	if w, _, err := term.GetSize(fd); err == nil && w > 0 {
		width = w
	}
	if width > maxReadableWidth {
		width = maxReadableWidth
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
