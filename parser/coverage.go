package parser

import "strings"

// Coverage summarises how much of a document carries a text layer.
type Coverage struct {
	Pages     int
	TextPages int
	// ImageOnly lists pages with images but no text: usually scanned
	// pages, which no backend can read without OCR.
	ImageOnly []int
}

// Coverage inspects the loaded pages.
func (d *Document) Coverage() Coverage {
	c := Coverage{Pages: len(d.Pages)}
	for _, p := range d.Pages {
		hasText := false
		for _, b := range p.Blocks {
			if strings.TrimSpace(b.Text) != "" {
				hasText = true
				break
			}
		}
		switch {
		case hasText:
			c.TextPages++
		case len(p.Images) > 0:
			c.ImageOnly = append(c.ImageOnly, p.Index)
		}
	}
	return c
}

// Scanned reports whether the document has pages but no text at all while
// some pages hold images.
func (c Coverage) Scanned() bool {
	return c.Pages > 0 && c.TextPages == 0 && len(c.ImageOnly) > 0
}
