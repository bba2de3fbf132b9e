package segment

import (
	"log/slog"
	"strings"

	"github.com/brunobiangulo/gosimulado/parser"
)

// contains applies the page boundary rules: on the start page only y at or
// below start counts, on the end page only y strictly above end, interior
// pages take everything.
func (s Segment) contains(page int, y float64) bool {
	switch {
	case s.SinglePage():
		return y >= s.Start.Y && y < s.End.Y
	case page == s.Start.Page:
		return y >= s.Start.Y
	case page == s.End.Page:
		return y < s.End.Y
	default:
		return true
	}
}

// pages clamps the segment's page range to the document.
func (s Segment) pages(doc *parser.Document) (int, int) {
	first, last := s.Start.Page, s.End.Page
	if first < 0 {
		first = 0
	}
	if last > doc.LastPage() {
		last = doc.LastPage()
	}
	return first, last
}

// CollectText returns the text of every block whose top falls inside the
// segment, joined with newlines in page and block order.
func CollectText(doc *parser.Document, seg Segment) string {
	var parts []string
	first, last := seg.pages(doc)
	for p := first; p <= last; p++ {
		for _, b := range doc.Pages[p].Blocks {
			if strings.TrimSpace(b.Text) == "" {
				continue
			}
			if seg.contains(p, b.Top) {
				parts = append(parts, b.Text)
			}
		}
	}
	return strings.Join(parts, "\n")
}

// ImageFilter holds the thresholds that separate content images from page
// decoration.
type ImageFilter struct {
	// FooterRatio rejects images whose vertical centre lies below this
	// fraction of the page height.
	FooterRatio float64 `json:"footer_ratio" yaml:"footer_ratio"`
	// SquareMin and SquareMax bound the width/height ratio treated as
	// near-square.
	SquareMin float64 `json:"square_min" yaml:"square_min"`
	SquareMax float64 `json:"square_max" yaml:"square_max"`
	// SquareMaxSide is the largest shorter side of a near-square image that
	// is still rejected as a QR code or barcode.
	SquareMaxSide int `json:"square_max_side" yaml:"square_max_side"`
}

// DefaultImageFilter rejects the bottom 15% of the page and small
// near-square images.
func DefaultImageFilter() ImageFilter {
	return ImageFilter{
		FooterRatio:   0.85,
		SquareMin:     0.85,
		SquareMax:     1.15,
		SquareMaxSide: 500,
	}
}

// Footer reports whether a centre at y on a page of the given height is in
// the footer band.
func (f ImageFilter) Footer(y, pageHeight float64) bool {
	if pageHeight <= 0 {
		return false
	}
	return y/pageHeight > f.FooterRatio
}

// QRCodeLike reports whether an image of the given pixel size looks like a
// QR code or barcode.
func (f ImageFilter) QRCodeLike(width, height int) bool {
	h := height
	if h == 0 {
		h = 1
	}
	ratio := float64(width) / float64(h)
	return ratio >= f.SquareMin && ratio <= f.SquareMax && min(width, height) <= f.SquareMaxSide
}

// Keep combines both rules.
func (f ImageFilter) Keep(img parser.Image, centerY, pageHeight float64) bool {
	return !f.Footer(centerY, pageHeight) && !f.QRCodeLike(img.Width, img.Height)
}

// Collected is an image retained for a segment, with its encoded bytes.
type Collected struct {
	Page   int
	ID     string
	Data   []byte
	Width  int
	Height int
}

// CollectImages returns the images of the segment that pass the filter.
// Images without a position are only considered when the segment spans a
// single page, and are then placed at the page's vertical midpoint. Images
// whose bytes cannot be extracted are skipped; their count is returned.
func CollectImages(doc *parser.Document, seg Segment, f ImageFilter) ([]Collected, int) {
	var found []Collected
	failed := 0

	first, last := seg.pages(doc)
	for p := first; p <= last; p++ {
		page := doc.Pages[p]
		for _, img := range page.Images {
			var center float64
			if img.BBox == nil {
				if !seg.SinglePage() {
					continue
				}
				center = page.Height / 2
			} else {
				center = img.BBox.CenterY()
			}

			if !seg.contains(p, center) || !f.Keep(img, center, page.Height) {
				continue
			}

			data, err := doc.ExtractImage(img.ID)
			if err != nil {
				slog.Warn("segment: image extraction failed",
					"segment", seg.Index, "page", p, "image", img.ID, "error", err)
				failed++
				continue
			}
			found = append(found, Collected{
				Page:   p,
				ID:     img.ID,
				Data:   data,
				Width:  img.Width,
				Height: img.Height,
			})
		}
	}
	return found, failed
}
