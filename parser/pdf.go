package parser

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// defaultPageHeight is used when a page carries no readable MediaBox (A4).
const defaultPageHeight = 842.0

// NativeLoader loads PDFs with the pure Go reader. Text is rebuilt from glyph
// positions; images are listed from the page XObjects and therefore have no
// position on the page.
type NativeLoader struct {
	// RowTolerance is the Y distance within which glyphs share a line.
	// Defaults to 2pt.
	RowTolerance float64

	// SplitBefore, when set, starts a new block at every line it accepts.
	SplitBefore SplitFunc
}

func (l *NativeLoader) Name() string { return "native" }

func (l *NativeLoader) Load(ctx context.Context, path string) (*Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	tol := l.RowTolerance
	if tol <= 0 {
		tol = 2
	}

	jpegs := &jpegStreams{path: path}
	total := reader.NumPage()
	out := &Document{Path: path, Method: l.Name(), Pages: make([]Page, 0, total)}

	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx := i - 1
		out.Pages = append(out.Pages, Page{Index: idx, Height: defaultPageHeight})

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		w, h := pageSize(page)
		out.Pages[idx].Width, out.Pages[idx].Height = w, h

		lines, err := pageLines(page, h, tol)
		if err != nil {
			// Skip pages that fail to extract
			slog.Warn("native: page text failed", "page", i, "error", err)
		}
		out.Pages[idx].Blocks = groupLines(idx, lines, l.SplitBefore)
		out.addXObjectImages(idx, page, jpegs)
	}

	return out, nil
}

// pageLines rebuilds text lines from glyphs. PDF user space grows upwards,
// so positions are flipped against the page height.
func pageLines(page pdf.Page, height, tol float64) (lines []textLine, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed content stream: %v", r)
		}
	}()

	var glyphs []pdf.Text
	for _, t := range page.Content().Text {
		if strings.TrimSpace(t.S) != "" || t.S == " " {
			glyphs = append(glyphs, t)
		}
	}
	if len(glyphs) == 0 {
		return nil, nil
	}

	sort.SliceStable(glyphs, func(a, b int) bool {
		if math.Abs(glyphs[a].Y-glyphs[b].Y) > tol {
			return glyphs[a].Y > glyphs[b].Y
		}
		return glyphs[a].X < glyphs[b].X
	})

	var row []pdf.Text
	flush := func() {
		if len(row) == 0 {
			return
		}
		lines = append(lines, rowLine(row, height))
		row = row[:0]
	}
	for _, g := range glyphs {
		if len(row) > 0 && math.Abs(g.Y-row[0].Y) > tol {
			flush()
		}
		row = append(row, g)
	}
	flush()
	return lines, nil
}

// rowLine joins one row of glyphs, inserting a space where the horizontal gap
// exceeds 30% of the font size.
func rowLine(row []pdf.Text, height float64) textLine {
	sort.SliceStable(row, func(a, b int) bool { return row[a].X < row[b].X })

	var sb strings.Builder
	size := 0.0
	baseline := row[0].Y
	for k, g := range row {
		if g.FontSize > size {
			size = g.FontSize
		}
		if k > 0 {
			prev := row[k-1]
			gap := g.X - (prev.X + prev.W)
			if gap > 0.3*g.FontSize && !strings.HasSuffix(prev.S, " ") && !strings.HasPrefix(g.S, " ") {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(g.S)
	}
	if size <= 0 {
		size = 10
	}
	return textLine{
		top:    height - (baseline + size),
		bottom: height - baseline,
		text:   sb.String(),
	}
}

// pageSize reads the MediaBox, following Parent links for inherited boxes.
func pageSize(page pdf.Page) (float64, float64) {
	node := page.V
	for depth := 0; depth < 32 && !node.IsNull(); depth++ {
		box := node.Key("MediaBox")
		if box.Kind() == pdf.Array && box.Len() == 4 {
			x0, y0 := box.Index(0).Float64(), box.Index(1).Float64()
			x1, y1 := box.Index(2).Float64(), box.Index(3).Float64()
			if y1-y0 > 0 {
				return x1 - x0, y1 - y0
			}
		}
		node = node.Key("Parent")
	}
	return 595, defaultPageHeight
}

// addXObjectImages lists the image XObjects of a page. Each object is read
// under its own recover so one malformed stream does not hide its siblings.
func (d *Document) addXObjectImages(idx int, page pdf.Page, jpegs *jpegStreams) {
	xobjs := page.V.Key("Resources").Key("XObject")
	if xobjs.Kind() != pdf.Dict {
		return
	}
	for _, key := range xobjs.Keys() {
		obj := xobjs.Key(key)
		if obj.Key("Subtype").Name() != "Image" {
			continue
		}
		img := Image{
			ID:     fmt.Sprintf("p%d-%s", idx, key),
			Page:   idx,
			Width:  int(obj.Key("Width").Int64()),
			Height: int(obj.Key("Height").Int64()),
		}
		data, err := encodeXObject(obj, img.Width, img.Height, jpegs)
		d.AddImage(img, data, err)
	}
}

// filterNames lists the stream filters of obj in application order. A
// single name and a one-element array give the same result.
func filterNames(obj pdf.Value) []string {
	f := obj.Key("Filter")
	switch f.Kind() {
	case pdf.Name:
		return []string{f.Name()}
	case pdf.Array:
		names := make([]string, f.Len())
		for i := range names {
			names[i] = f.Index(i).Name()
		}
		return names
	}
	return nil
}

// encodeXObject returns the bytes of an image XObject. JPEG streams are
// passed through; Flate (optionally ASCII85 armoured) or unfiltered 8-bit
// RGB and gray images are re-encoded as PNG. Other encodings are reported
// as unsupported.
func encodeXObject(obj pdf.Value, w, h int, jpegs *jpegStreams) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading image stream: %v", r)
		}
	}()

	filters := filterNames(obj)
	if len(filters) == 1 && filters[0] == "DCTDecode" {
		return jpegs.take(w, h)
	}
	for _, f := range filters {
		if f != "FlateDecode" && f != "ASCII85Decode" {
			return nil, fmt.Errorf("unsupported image filter %q", strings.Join(filters, ","))
		}
	}
	if bpc := obj.Key("BitsPerComponent").Int64(); bpc != 8 {
		return nil, fmt.Errorf("unsupported bits per component: %d", bpc)
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", w, h)
	}

	rc := obj.Reader()
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	var img image.Image
	switch cs := obj.Key("ColorSpace").Name(); cs {
	case "DeviceRGB":
		if len(raw) < w*h*3 {
			return nil, fmt.Errorf("short RGB stream: %d bytes", len(raw))
		}
		rgba := image.NewNRGBA(image.Rect(0, 0, w, h))
		for p := 0; p < w*h; p++ {
			copy(rgba.Pix[p*4:p*4+3], raw[p*3:p*3+3])
			rgba.Pix[p*4+3] = 0xff
		}
		img = rgba
	case "DeviceGray":
		if len(raw) < w*h {
			return nil, fmt.Errorf("short gray stream: %d bytes", len(raw))
		}
		gray := image.NewGray(image.Rect(0, 0, w, h))
		copy(gray.Pix, raw)
		img = gray
	default:
		return nil, fmt.Errorf("unsupported color space %q", cs)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// jpegStreams gives access to the raw DCTDecode streams of a PDF file, which
// the pdf package cannot read. The file is scanned on first use and each
// stream is matched to an XObject by its decoded pixel size; streams of the
// same size are handed out in file order.
type jpegStreams struct {
	path   string
	loaded bool
	err    error
	bySize map[[2]int][][]byte
}

func (j *jpegStreams) take(w, h int) ([]byte, error) {
	if !j.loaded {
		j.loaded = true
		data, err := os.ReadFile(j.path)
		if err != nil {
			j.err = fmt.Errorf("reading PDF for JPEG streams: %w", err)
		} else {
			j.bySize = indexJPEGStreams(data)
		}
	}
	if j.err != nil {
		return nil, j.err
	}
	key := [2]int{w, h}
	queue := j.bySize[key]
	if len(queue) == 0 {
		return nil, fmt.Errorf("no raw JPEG stream of %dx%d", w, h)
	}
	j.bySize[key] = queue[1:]
	return queue[0], nil
}

// indexJPEGStreams finds every stream whose dictionary names DCTDecode and
// whose payload decodes as a JPEG header, keyed by pixel size.
func indexJPEGStreams(data []byte) map[[2]int][][]byte {
	var (
		dct       = []byte("/DCTDecode")
		streamKW  = []byte("stream")
		endstream = []byte("endstream")
	)
	out := make(map[[2]int][][]byte)
	for pos := 0; pos < len(data); {
		i := bytes.Index(data[pos:], dct)
		if i < 0 {
			break
		}
		start := pos + i + len(dct)
		s := bytes.Index(data[start:], streamKW)
		if s < 0 {
			break
		}
		start += s + len(streamKW)
		if bytes.HasPrefix(data[start:], []byte("\r\n")) {
			start += 2
		} else if start < len(data) && data[start] == '\n' {
			start++
		}
		e := bytes.Index(data[start:], endstream)
		if e < 0 {
			break
		}
		payload := bytes.TrimRight(data[start:start+e], "\r\n")
		pos = start + e + len(endstream)

		cfg, format, err := image.DecodeConfig(bytes.NewReader(payload))
		if err != nil || format != "jpeg" {
			continue
		}
		key := [2]int{cfg.Width, cfg.Height}
		out[key] = append(out[key], payload)
	}
	return out
}
