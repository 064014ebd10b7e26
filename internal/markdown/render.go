// ABOUTME: Terminal renderer for assistant markdown replies
// ABOUTME: Walks the goldmark AST and emits ANSI-styled text via fatih/color

package markdown

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var (
	headingStyle = color.New(color.Bold, color.FgHiWhite)
	boldStyle    = color.New(color.Bold)
	italicStyle  = color.New(color.Italic)
	codeStyle    = color.New(color.FgCyan)
	linkStyle    = color.New(color.FgBlue, color.Underline)
	quoteStyle   = color.New(color.Faint)
)

// Render converts assistant markdown into styled text for the terminal.
// Unknown constructs degrade to their plain inline text rather than erroring.
func Render(source string) string {
	src := []byte(source)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	r := &renderer{src: src}
	var out strings.Builder
	r.blocks(&out, doc, "")

	return strings.TrimRight(out.String(), "\n") + "\n"
}

type renderer struct {
	src []byte
}

// blocks renders the children of parent, separating block elements with a
// blank line.
func (r *renderer) blocks(out *strings.Builder, parent ast.Node, indent string) {
	first := true
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		if !first {
			out.WriteString("\n")
		}
		first = false
		r.block(out, n, indent)
	}
}

func (r *renderer) block(out *strings.Builder, n ast.Node, indent string) {
	switch n := n.(type) {
	case *ast.Heading:
		marker := strings.Repeat("#", n.Level)
		out.WriteString(indent + headingStyle.Sprint(marker+" "+r.inline(n)) + "\n")

	case *ast.Paragraph, *ast.TextBlock:
		out.WriteString(indent + r.inline(n) + "\n")

	case *ast.Blockquote:
		var inner strings.Builder
		r.blocks(&inner, n, "")
		for _, line := range strings.Split(strings.TrimRight(inner.String(), "\n"), "\n") {
			out.WriteString(indent + quoteStyle.Sprint("| "+line) + "\n")
		}

	case *ast.List:
		r.list(out, n, indent)

	case *ast.FencedCodeBlock:
		r.codeLines(out, n, indent)

	case *ast.CodeBlock:
		r.codeLines(out, n, indent)

	case *ast.ThematicBreak:
		out.WriteString(indent + strings.Repeat("-", 40) + "\n")

	default:
		out.WriteString(indent + r.inline(n) + "\n")
	}
}

func (r *renderer) list(out *strings.Builder, list *ast.List, indent string) {
	index := list.Start
	if index == 0 {
		index = 1
	}

	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "- "
		if list.IsOrdered() {
			marker = fmt.Sprintf("%d. ", index)
			index++
		}

		itemIndent := indent + strings.Repeat(" ", len(marker))
		first := true
		for child := item.FirstChild(); child != nil; child = child.NextSibling() {
			if first {
				var line strings.Builder
				r.block(&line, child, "")
				out.WriteString(indent + marker + line.String())
				first = false
				continue
			}
			r.block(out, child, itemIndent)
		}
	}
}

func (r *renderer) codeLines(out *strings.Builder, n ast.Node, indent string) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		line := strings.TrimRight(string(seg.Value(r.src)), "\n")
		out.WriteString(indent + "    " + codeStyle.Sprint(line) + "\n")
	}
}

// inline renders the inline children of n as a single line of styled text.
func (r *renderer) inline(parent ast.Node) string {
	var out strings.Builder
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		switch n := n.(type) {
		case *ast.Text:
			out.Write(n.Segment.Value(r.src))
			if n.HardLineBreak() {
				out.WriteString("\n")
			} else if n.SoftLineBreak() {
				out.WriteString(" ")
			}

		case *ast.String:
			out.Write(n.Value)

		case *ast.CodeSpan:
			out.WriteString(codeStyle.Sprint(r.inline(n)))

		case *ast.Emphasis:
			if n.Level >= 2 {
				out.WriteString(boldStyle.Sprint(r.inline(n)))
			} else {
				out.WriteString(italicStyle.Sprint(r.inline(n)))
			}

		case *ast.Link:
			label := r.inline(n)
			dest := string(n.Destination)
			if label == dest || label == "" {
				out.WriteString(linkStyle.Sprint(dest))
			} else {
				out.WriteString(linkStyle.Sprint(label) + " (" + dest + ")")
			}

		case *ast.AutoLink:
			out.WriteString(linkStyle.Sprint(string(n.URL(r.src))))

		case *ast.Image:
			out.WriteString("[image: " + r.inline(n) + "]")

		default:
			out.WriteString(r.inline(n))
		}
	}
	return out.String()
}
