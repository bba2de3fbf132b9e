package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrImageNotFound is returned by ExtractImage for an unknown image ID.
var ErrImageNotFound = errors.New("parser: image not found")

// Rect is an axis-aligned box in top-down page coordinates (points).
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// CenterY returns the vertical centre of the box.
func (r Rect) CenterY() float64 {
	return (r.Y0 + r.Y1) / 2
}

// Block is a region of text on one page. Top and Bottom grow downwards from
// the top edge of the page, whatever the backend's native coordinate system.
type Block struct {
	Page   int
	Top    float64
	Bottom float64
	Text   string
}

// Image describes an embedded image. BBox is nil when the backend cannot
// place the image on the page. Width and Height are the intrinsic pixel
// dimensions of the image, not its rendered size.
type Image struct {
	ID     string
	Page   int
	BBox   *Rect
	Width  int
	Height int
}

// Page holds the blocks and images of one page, in reading order.
type Page struct {
	Index  int
	Width  float64
	Height float64
	Blocks []Block
	Images []Image
}

// Document is a fully materialised document. It is read-only once a loader
// returns it, so it can be shared between goroutines.
type Document struct {
	Path   string
	Method string // "fitz", "native", "text", "static"
	Pages  []Page

	images map[string]imageData
}

type imageData struct {
	data []byte
	err  error
}

// NewDocument creates an empty document with n pages of the given size.
func NewDocument(method string, n int, width, height float64) *Document {
	d := &Document{Method: method, Pages: make([]Page, n)}
	for i := range d.Pages {
		d.Pages[i] = Page{Index: i, Width: width, Height: height}
	}
	return d
}

// AddBlock appends a text block to its page.
func (d *Document) AddBlock(b Block) {
	d.Pages[b.Page].Blocks = append(d.Pages[b.Page].Blocks, b)
}

// AddImage appends an image to its page and records the bytes (or the error
// that prevented reading them) for ExtractImage.
func (d *Document) AddImage(img Image, data []byte, err error) {
	if d.images == nil {
		d.images = make(map[string]imageData)
	}
	d.Pages[img.Page].Images = append(d.Pages[img.Page].Images, img)
	d.images[img.ID] = imageData{data: data, err: err}
}

// NumPage returns the number of pages.
func (d *Document) NumPage() int {
	return len(d.Pages)
}

// LastPage returns the index of the last page, or -1 for an empty document.
func (d *Document) LastPage() int {
	return len(d.Pages) - 1
}

// ExtractImage returns the encoded bytes of an embedded image.
func (d *Document) ExtractImage(id string) ([]byte, error) {
	img, ok := d.images[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, id)
	}
	if img.err != nil {
		return nil, img.err
	}
	if len(img.data) == 0 {
		return nil, fmt.Errorf("image %s: empty stream", id)
	}
	return img.data, nil
}

// Lines returns every line of text of the document in page and block order.
func (d *Document) Lines() []string {
	var lines []string
	for _, p := range d.Pages {
		for _, b := range p.Blocks {
			lines = append(lines, strings.Split(b.Text, "\n")...)
		}
	}
	return lines
}

// Loader turns a file into a Document.
type Loader interface {
	Load(ctx context.Context, path string) (*Document, error)
	Name() string
}
