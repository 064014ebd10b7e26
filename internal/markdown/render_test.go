// ABOUTME: Tests for the terminal markdown renderer
// ABOUTME: Runs with colors disabled so output compares as plain text

package markdown

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	m.Run()
}

func TestRender_Paragraph(t *testing.T) {
	got := Render("Your application has been received.")
	assert.Equal(t, "Your application has been received.\n", got)
}

func TestRender_SoftBreakJoinsLines(t *testing.T) {
	got := Render("first line\nsecond line")
	assert.Equal(t, "first line second line\n", got)
}

func TestRender_Heading(t *testing.T) {
	got := Render("## Required documents")
	assert.Equal(t, "## Required documents\n", got)
}

func TestRender_EmphasisAndCode(t *testing.T) {
	got := Render("Use **bold** and *italic* and `code` here.")
	assert.Equal(t, "Use bold and italic and code here.\n", got)
}

func TestRender_UnorderedList(t *testing.T) {
	got := Render("- passport\n- photo\n- bank statement")
	assert.Equal(t, "- passport\n- photo\n- bank statement\n", got)
}

func TestRender_OrderedList(t *testing.T) {
	got := Render("1. fill the form\n2. pay the fee")
	assert.Equal(t, "1. fill the form\n2. pay the fee\n", got)
}

func TestRender_FencedCodeBlock(t *testing.T) {
	got := Render("```\ncurl -X POST /threads\n```")
	assert.Equal(t, "    curl -X POST /threads\n", got)
}

func TestRender_Blockquote(t *testing.T) {
	got := Render("> processing times vary")
	assert.Equal(t, "| processing times vary\n", got)
}

func TestRender_Link(t *testing.T) {
	got := Render("See [the portal](https://example.com/apply) for details.")
	assert.Equal(t, "See the portal (https://example.com/apply) for details.\n", got)
}

func TestRender_BlankLineBetweenBlocks(t *testing.T) {
	got := Render("first paragraph\n\nsecond paragraph")
	assert.Equal(t, "first paragraph\n\nsecond paragraph\n", got)
}

func TestRender_Empty(t *testing.T) {
	assert.Equal(t, "\n", Render(""))
}
