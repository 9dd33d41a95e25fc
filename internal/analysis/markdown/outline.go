// Package markdown parses the heading/list subset of markdown that dream
// interpretations are written in.
package markdown

import "strings"

// Kind identifies a block type.
type Kind string

const (
	Heading   Kind = "heading"
	List      Kind = "list"
	Paragraph Kind = "paragraph"
)

// Block is one top-level element of an interpretation.
type Block struct {
	Kind  Kind     `json:"kind"`
	Level int      `json:"level,omitempty"`
	Text  string   `json:"text,omitempty"`
	Items []string `json:"items,omitempty"`
}

// Outline is the parsed interpretation.
type Outline struct {
	Title  string  `json:"title,omitempty"`
	Blocks []Block `json:"blocks"`
}

var headingPrefixes = []struct {
	prefix string
	level  int
}{
	{"### ", 3},
	{"## ", 2},
	{"# ", 1},
}

// Parse splits text into blocks. Anything that is not a heading or list item
// degrades to a paragraph.
func Parse(text string) Outline {
	outline := Outline{Blocks: make([]Block, 0, 16)}
	var items []string

	flush := func() {
		if len(items) == 0 {
			return
		}
		outline.Blocks = append(outline.Blocks, Block{Kind: List, Items: items})
		items = nil
	}

	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line := strings.TrimRight(raw, " \t")

		if level, heading, ok := parseHeading(line); ok {
			flush()
			outline.Blocks = append(outline.Blocks, Block{Kind: Heading, Level: level, Text: heading})
			if level == 1 && outline.Title == "" {
				outline.Title = heading
			}
			continue
		}

		if item, ok := parseListItem(line); ok {
			items = append(items, item)
			continue
		}

		flush()
		if strings.TrimSpace(line) != "" {
			outline.Blocks = append(outline.Blocks, Block{Kind: Paragraph, Text: strings.TrimSpace(line)})
		}
	}
	flush()

	return outline
}

func parseHeading(line string) (int, string, bool) {
	for _, h := range headingPrefixes {
		if strings.HasPrefix(line, h.prefix) {
			return h.level, strings.TrimSpace(line[len(h.prefix):]), true
		}
	}
	return 0, "", false
}

// parseListItem accepts only unindented "- " items.
func parseListItem(line string) (string, bool) {
	if !strings.HasPrefix(line, "- ") {
		return "", false
	}
	return stripEmphasis(strings.TrimSpace(line[2:])), true
}

// stripEmphasis removes bold markers, which the model uses for symbol names.
func stripEmphasis(text string) string {
	return strings.ReplaceAll(text, "**", "")
}

// PlainText flattens the outline into sentences suitable for narration.
func PlainText(text string) string {
	outline := Parse(text)

	var b strings.Builder
	for _, block := range outline.Blocks {
		switch block.Kind {
		case Heading:
			writeSentence(&b, block.Text)
		case List:
			for _, item := range block.Items {
				writeSentence(&b, item)
			}
		default:
			writeSentence(&b, stripEmphasis(block.Text))
		}
	}
	return strings.TrimSpace(b.String())
}

func writeSentence(b *strings.Builder, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(text)
	switch text[len(text)-1] {
	case '.', '!', '?', ':':
	default:
		b.WriteString(".")
	}
}
