package parser

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/net/html"
)

// FitzLoader loads PDFs through MuPDF. Each page is rendered to MuPDF's
// positioned HTML, which carries absolute coordinates for every text line and
// inlines every image as a data URI.
type FitzLoader struct {
	// SplitBefore, when set, starts a new block at every line it accepts.
	SplitBefore SplitFunc
}

func (l *FitzLoader) Name() string { return "fitz" }

func (l *FitzLoader) Load(ctx context.Context, path string) (*Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	out := &Document{Path: path, Method: l.Name(), Pages: make([]Page, 0, n)}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := Page{Index: i}
		if rect, err := doc.Bound(i); err == nil {
			page.Width = float64(rect.Dx())
			page.Height = float64(rect.Dy())
		}
		out.Pages = append(out.Pages, page)

		markup, err := doc.HTML(i, false)
		if err != nil {
			// Keep the page so page indices stay aligned with the PDF.
			slog.Warn("fitz: page html failed", "page", i, "error", err)
			continue
		}
		if err := out.readPageHTML(i, strings.NewReader(markup), l.SplitBefore); err != nil {
			slog.Warn("fitz: page html unreadable", "page", i, "error", err)
		}
	}

	return out, nil
}

// readPageHTML fills page i from MuPDF HTML output.
func (d *Document) readPageHTML(i int, r io.Reader, split SplitFunc) error {
	root, err := html.Parse(r)
	if err != nil {
		return err
	}

	var lines []textLine
	imgCount := 0

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			style := parseStyle(attr(n, "style"))
			switch n.Data {
			case "div":
				if strings.HasPrefix(attr(n, "id"), "page") {
					if w, ok := style.pt("width"); ok && d.Pages[i].Width == 0 {
						d.Pages[i].Width = w
					}
					if h, ok := style.pt("height"); ok && d.Pages[i].Height == 0 {
						d.Pages[i].Height = h
					}
				}
			case "p":
				top, _ := style.pt("top")
				height, ok := style.pt("line-height")
				if !ok {
					height = 12
				}
				lines = append(lines, textLine{top: top, bottom: top + height, text: nodeText(n)})
				return
			case "img":
				d.addHTMLImage(i, imgCount, style, attr(n, "src"))
				imgCount++
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	d.Pages[i].Blocks = groupLines(i, lines, split)
	return nil
}

func (d *Document) addHTMLImage(page, k int, style cssStyle, src string) {
	img := Image{ID: fmt.Sprintf("p%d-img%d", page, k), Page: page}

	top, okTop := style.pt("top")
	left, _ := style.pt("left")
	w, okW := style.pt("width")
	h, okH := style.pt("height")
	if okTop && okW && okH {
		img.BBox = &Rect{X0: left, Y0: top, X1: left + w, Y1: top + h}
	}

	data, err := decodeDataURI(src)
	if err == nil {
		img.Width, img.Height, _, err = imageSize(data)
	}
	d.AddImage(img, data, err)
}

// decodeDataURI decodes a base64 "data:" URI.
func decodeDataURI(src string) ([]byte, error) {
	if !strings.HasPrefix(src, "data:") {
		return nil, fmt.Errorf("image source is not a data uri")
	}
	comma := strings.IndexByte(src, ',')
	if comma < 0 || !strings.Contains(src[:comma], ";base64") {
		return nil, fmt.Errorf("image data uri is not base64")
	}
	return base64.StdEncoding.DecodeString(src[comma+1:])
}

// cssStyle is a parsed inline style attribute.
type cssStyle map[string]string

func parseStyle(s string) cssStyle {
	st := make(cssStyle)
	for _, decl := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		st[strings.TrimSpace(strings.ToLower(k))] = strings.TrimSpace(v)
	}
	return st
}

// pt reads a length in points ("12.5pt" or a bare number).
func (s cssStyle) pt(key string) (float64, bool) {
	v, ok := s[key]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "pt"), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// nodeText concatenates the text below n; <br> becomes a newline.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
		case n.Type == html.ElementNode && n.Data == "br":
			sb.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
