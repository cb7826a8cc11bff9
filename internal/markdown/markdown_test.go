package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsHTML(t *testing.T) {
	assert.True(t, IsHTML("<p>hello</p>"))
	assert.True(t, IsHTML("text <br/> more"))
	assert.False(t, IsHTML("# heading\n\n- item"))
	assert.False(t, IsHTML("2 < 3"))
}

func TestToHTML(t *testing.T) {
	c := NewConverter()

	out, err := c.ToHTML("# Title\n\n- one\n- two\n\n~~gone~~")
	require.NoError(t, err)
	assert.Contains(t, out, "<h1>Title</h1>")
	assert.Contains(t, out, "<li>one</li>")
	assert.Contains(t, out, "<del>gone</del>")
}

func TestToHTML_Sanitizes(t *testing.T) {
	c := NewConverter()

	out, err := c.ToHTML("hello <script>alert(1)</script>")
	require.NoError(t, err)
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "hello")
}

func TestToMarkdown(t *testing.T) {
	c := NewConverter()

	out := c.ToMarkdown("<h2>Plan</h2><ul><li>milk</li><li>eggs</li></ul><p><strong>soon</strong></p>")
	assert.Contains(t, out, "## Plan")
	assert.Contains(t, out, "- milk")
	assert.Contains(t, out, "- eggs")
	assert.Contains(t, out, "**soon**")
}

func TestForStorageAndEditor(t *testing.T) {
	c := NewConverter()

	assert.Equal(t, "plain *md*", c.ForStorage("plain *md*"))
	assert.Equal(t, "# Hi", c.ForStorage("<h1>Hi</h1>"))

	html, err := c.ForEditor("<p>already html</p>")
	require.NoError(t, err)
	assert.Equal(t, "<p>already html</p>", html)
}

func TestBasicToMarkdown(t *testing.T) {
	in := `<h1>Title</h1><p>a <b>bold</b> and <em>it</em></p><ol><li>x</li><li>y</li></ol><p>line<br/>break</p>`
	want := "# Title\n\na **bold** and *it*\n\n1. x\n2. y\n\nline\nbreak"
	assert.Equal(t, want, basicToMarkdown(in))
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "Shopping", ExtractTitle("# Shopping\n\n- milk"))
	assert.Equal(t, "Later", ExtractTitle("intro\n# Later\nbody"))
	assert.Equal(t, "", ExtractTitle("## not a title\nbody"))
}

func TestStripTitle(t *testing.T) {
	assert.Equal(t, "- milk", StripTitle("# Shopping\n\n- milk"))
	assert.Equal(t, "intro\n# Later\nbody", StripTitle("intro\n# Later\nbody"))
	assert.Equal(t, "\n# Late\nbody", StripTitle("\n# Late\nbody"))
	assert.Equal(t, "", StripTitle("# Only"))
	assert.Equal(t, "no heading", StripTitle("no heading"))
}
