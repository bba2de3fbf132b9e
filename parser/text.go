package parser

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// textLineHeight is the nominal height, in points, given to each line of a
// plain text page.
const textLineHeight = 12.0

// TextLoader handles plain text (.txt) files. Pages are separated by form
// feeds; each non-blank line becomes its own block, positioned by its line
// number. Text files carry no images.
type TextLoader struct{}

func (l *TextLoader) Name() string { return "text" }

func (l *TextLoader) Load(ctx context.Context, path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := ParseText(string(data))
	doc.Path = path
	return doc, nil
}

// ParseText builds a Document from in-memory text.
func ParseText(content string) *Document {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	doc := &Document{Method: "text"}
	if content == "" {
		return doc
	}

	for i, raw := range strings.Split(content, "\f") {
		lines := strings.Split(raw, "\n")
		page := Page{
			Index:  i,
			Width:  595,
			Height: float64(len(lines)) * textLineHeight,
		}
		for k, line := range lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			top := float64(k) * textLineHeight
			page.Blocks = append(page.Blocks, Block{
				Page:   i,
				Top:    top,
				Bottom: top + textLineHeight,
				Text:   strings.TrimRight(line, " \t"),
			})
		}
		doc.Pages = append(doc.Pages, page)
	}
	return doc
}
