package parser

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// blockGapFactor is the largest vertical gap, as a fraction of the previous
// line height, that still joins two lines into the same block.
const blockGapFactor = 0.6

// SplitFunc reports whether a line must open a new block whatever its
// spacing, e.g. a question anchor on an evenly spaced page.
type SplitFunc func(line string) bool

// textLine is one positioned line of text produced by a backend.
type textLine struct {
	top, bottom float64
	text        string
}

// groupLines joins consecutive lines into blocks. Lines must already be in
// reading order; a new block starts whenever the gap to the previous line is
// larger than blockGapFactor times that line's height, the line starts
// above the previous one (column change) or split accepts it. split may be nil.
func groupLines(page int, lines []textLine, split SplitFunc) []Block {
	var blocks []Block
	var cur *Block
	var prev textLine

	for _, ln := range lines {
		text := strings.TrimRight(ln.text, " \t")
		if strings.TrimSpace(text) == "" {
			continue
		}
		if cur != nil {
			height := prev.bottom - prev.top
			if height <= 0 {
				height = 1
			}
			gap := ln.top - prev.bottom
			joined := gap <= blockGapFactor*height && ln.top >= prev.top
			if joined && split != nil && split(strings.TrimSpace(text)) {
				joined = false
			}
			if joined {
				cur.Text += "\n" + text
				if ln.bottom > cur.Bottom {
					cur.Bottom = ln.bottom
				}
				prev = ln
				continue
			}
			blocks = append(blocks, *cur)
		}
		cur = &Block{Page: page, Top: ln.top, Bottom: ln.bottom, Text: text}
		prev = ln
	}
	if cur != nil {
		blocks = append(blocks, *cur)
	}
	return blocks
}

// imageSize sniffs the format and pixel size of encoded image bytes.
func imageSize(data []byte) (width, height int, format string, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("decoding image header: %w", err)
	}
	return cfg.Width, cfg.Height, format, nil
}

// ImageFormat returns the format name of encoded image bytes ("png",
// "jpeg", "gif", "bmp", "tiff", "webp") or "" when unknown.
func ImageFormat(data []byte) string {
	_, _, format, err := imageSize(data)
	if err != nil {
		return ""
	}
	return format
}
