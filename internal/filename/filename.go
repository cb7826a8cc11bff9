// Package filename derives filesystem-safe base names and URL slugs from todo titles.
package filename

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

const (
	MaxLength     = 200
	MaxSlugLength = 50
)

var (
	ErrEmpty        = errors.New("filename is empty")
	ErrTooLong      = errors.New("filename is too long")
	ErrInvalidChars = errors.New("filename contains invalid characters")
	ErrReserved     = errors.New("filename is a reserved name")
)

const invalidChars = `<>:"/\|?*`

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	hyphenRun     = regexp.MustCompile(`-+`)
	reservedName  = regexp.MustCompile(`(?i)^(con|prn|aux|nul|com[1-9]|lpt[1-9])(\..*)?$`)
)

// IsReserved reports whether name is a Windows device name, with or without extension.
func IsReserved(name string) bool {
	return reservedName.MatchString(name)
}

// FromTitle turns a title into a base file name. Returns "" when nothing usable is left.
func FromTitle(title string) string {
	s := strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidChars, r) || (unicode.IsControl(r) && !unicode.IsSpace(r)) {
			return -1
		}
		return r
	}, strings.TrimSpace(title))

	s = whitespaceRun.ReplaceAllString(s, "-")
	s = trimEdges(s)
	s = truncate(s, MaxLength)
	s = trimEdges(s)

	if s != "" && IsReserved(s) {
		s += "-todo"
	}
	return s
}

// Slug produces a lowercase URL-safe identifier from a title.
func Slug(title string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			return r
		case unicode.IsSpace(r):
			return ' '
		}
		return -1
	}, strings.ToLower(strings.TrimSpace(title)))

	s = whitespaceRun.ReplaceAllString(s, "-")
	s = hyphenRun.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	s = strings.Trim(truncate(s, MaxSlugLength), "-")

	if s != "" && IsReserved(s) {
		s += "-todo"
	}
	return s
}

// Validate checks that name can be used as a base file name as-is.
func Validate(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return ErrEmpty
	case len([]rune(name)) > MaxLength:
		return ErrTooLong
	case strings.ContainsAny(name, invalidChars) || strings.IndexFunc(name, unicode.IsControl) >= 0:
		return ErrInvalidChars
	case IsReserved(name):
		return ErrReserved
	}
	return nil
}

// Candidates lists the names tried in turn when base is already taken.
func Candidates(base string) []string {
	out := make([]string, 0, 10)
	out = append(out, base)
	for i := 2; i <= 10; i++ {
		out = append(out, fmt.Sprintf("%s-%d", base, i))
	}
	return out
}

// Fallback is the timestamp name used when every candidate collides.
func Fallback(now time.Time) string {
	ts := now.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05")
	return "todo-" + strings.NewReplacer(":", "-", ".", "-").Replace(ts)
}

func trimEdges(s string) string {
	return strings.Trim(s, ".-")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
