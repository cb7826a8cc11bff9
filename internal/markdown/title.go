package markdown

import "strings"

const UntitledTitle = "Untitled"

// ExtractTitle returns the text of the first "# " heading, or "" if there is none.
func ExtractTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}

// StripTitle removes a leading "# " heading line and the blank lines right after it.
// Content that does not start with a heading is returned unchanged.
func StripTitle(content string) string {
	lines := strings.Split(content, "\n")
	if !strings.HasPrefix(lines[0], "# ") {
		return content
	}
	rest := lines[1:]
	for len(rest) > 0 && strings.TrimSpace(rest[0]) == "" {
		rest = rest[1:]
	}
	return strings.Join(rest, "\n")
}
