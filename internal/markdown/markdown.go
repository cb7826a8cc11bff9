// Package markdown converts todo bodies between the markdown stored on disk and
// the HTML used by the rich-text editor.
package markdown

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	htmltomd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	mdhtml "github.com/yuin/goldmark/renderer/html"
)

type Converter struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
	h2m    *htmltomd.Converter
}

func NewConverter() *Converter {
	return &Converter{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.Strikethrough),
			goldmark.WithRendererOptions(mdhtml.WithUnsafe()),
		),
		policy: bluemonday.UGCPolicy(),
		h2m: htmltomd.NewConverter("", true, &htmltomd.Options{
			HeadingStyle:     "atx",
			BulletListMarker: "-",
			CodeBlockStyle:   "fenced",
		}),
	}
}

// ToHTML renders markdown and sanitizes the result.
func (c *Converter) ToHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := c.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return string(c.policy.SanitizeBytes(buf.Bytes())), nil
}

// ToMarkdown converts editor HTML to markdown, falling back to a tag rewriter
// when the converter rejects the input.
func (c *Converter) ToMarkdown(html string) string {
	out, err := c.h2m.ConvertString(html)
	if err != nil {
		return basicToMarkdown(html)
	}
	return out
}

// ForEditor returns HTML suitable for the editor. HTML content passes through.
func (c *Converter) ForEditor(content string) (string, error) {
	if IsHTML(content) {
		return content, nil
	}
	return c.ToHTML(content)
}

// ForStorage returns markdown suitable for the .md file. Markdown passes through.
func (c *Converter) ForStorage(content string) string {
	if IsHTML(content) {
		return c.ToMarkdown(content)
	}
	return content
}

var htmlTag = regexp.MustCompile(`<[^>]+>`)

// IsHTML reports whether content contains anything that looks like a tag.
func IsHTML(content string) bool {
	return htmlTag.MatchString(content)
}

type rewrite struct {
	re   *regexp.Regexp
	repl string
}

var (
	inlineRewrites = []rewrite{
		{regexp.MustCompile(`(?i)<strong[^>]*>(.*?)</strong>`), "**$1**"},
		{regexp.MustCompile(`(?i)<b(?:\s[^>]*)?>(.*?)</b>`), "**$1**"},
		{regexp.MustCompile(`(?i)<em[^>]*>(.*?)</em>`), "*$1*"},
		{regexp.MustCompile(`(?i)<i(?:\s[^>]*)?>(.*?)</i>`), "*$1*"},
		{regexp.MustCompile(`(?i)<(?:s|del|strike)(?:\s[^>]*)?>(.*?)</(?:s|del|strike)>`), "~~$1~~"},
	}
	headingTag = regexp.MustCompile(`(?i)<h([1-6])[^>]*>(.*?)</h[1-6]>`)
	listTag    = regexp.MustCompile(`(?is)<(ul|ol)[^>]*>(.*?)</(?:ul|ol)>`)
	itemTag    = regexp.MustCompile(`(?is)<li[^>]*>(.*?)</li>`)
	paraTag    = regexp.MustCompile(`(?is)<p[^>]*>(.*?)</p>`)
	breakTag   = regexp.MustCompile(`(?i)<br[^>]*/?>`)
	blankRun   = regexp.MustCompile(`\n{3,}`)
)

func basicToMarkdown(html string) string {
	s := headingTag.ReplaceAllStringFunc(html, func(m string) string {
		sub := headingTag.FindStringSubmatch(m)
		level, _ := strconv.Atoi(sub[1])
		return strings.Repeat("#", level) + " " + sub[2] + "\n\n"
	})
	for _, rw := range inlineRewrites {
		s = rw.re.ReplaceAllString(s, rw.repl)
	}
	s = listTag.ReplaceAllStringFunc(s, func(m string) string {
		sub := listTag.FindStringSubmatch(m)
		ordered := strings.EqualFold(sub[1], "ol")
		var lines []string
		for i, item := range itemTag.FindAllStringSubmatch(sub[2], -1) {
			marker := "- "
			if ordered {
				marker = strconv.Itoa(i+1) + ". "
			}
			lines = append(lines, marker+strings.TrimSpace(item[1]))
		}
		return strings.Join(lines, "\n") + "\n\n"
	})
	s = paraTag.ReplaceAllString(s, "$1\n\n")
	s = breakTag.ReplaceAllString(s, "\n")
	s = htmlTag.ReplaceAllString(s, "")
	s = blankRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
