package parser

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

// writePDF serialises objs as objects 1..n with a valid xref table.
// Object 1 must be the catalog.
func writePDF(t *testing.T, path string, objs [][]byte) {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n", i+1)
		buf.Write(o)
		buf.WriteString("\nendobj\n")
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func streamObject(dict string, data []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "<< %s /Length %d >>\nstream\n", dict, len(data))
	b.Write(data)
	b.WriteString("\nendstream")
	return b.Bytes()
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatalf("encoding jpeg: %v", err)
	}
	return buf.Bytes()
}

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// ---------------------------------------------------------------------------
// Native loader images
// ---------------------------------------------------------------------------

func TestNativeLoaderImageFilters(t *testing.T) {
	photo := testJPEG(t, 40, 20)
	gray := deflate(t, make([]byte, 30*10))
	content := []byte("BT /F1 12 Tf 56 780 Td (1 [X1] Qual) Tj ET")

	path := filepath.Join(t.TempDir(), "images.pdf")
	writePDF(t, path, [][]byte{
		[]byte("<< /Type /Catalog /Pages 2 0 R >>"),
		[]byte("<< /Type /Pages /Kids [3 0 R] /Count 1 >>"),
		[]byte("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] " +
			"/Resources << /Font << /F1 5 0 R >> /XObject << /Im1 6 0 R /Im2 7 0 R >> >> /Contents 4 0 R >>"),
		streamObject("", content),
		[]byte("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>"),
		streamObject("/Type /XObject /Subtype /Image /Width 40 /Height 20 "+
			"/ColorSpace /DeviceGray /BitsPerComponent 8 /Filter /DCTDecode", photo),
		streamObject("/Type /XObject /Subtype /Image /Width 30 /Height 10 "+
			"/ColorSpace /DeviceGray /BitsPerComponent 8 /Filter [/FlateDecode]", gray),
	})

	doc, err := (&NativeLoader{}).Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	images := doc.Pages[0].Images
	if len(images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(images))
	}

	want := map[string]struct {
		format string
		w, h   int
	}{
		"p0-Im1": {"jpeg", 40, 20},
		"p0-Im2": {"png", 30, 10},
	}
	for _, img := range images {
		exp, ok := want[img.ID]
		if !ok {
			t.Errorf("unexpected image %q", img.ID)
			continue
		}
		data, err := doc.ExtractImage(img.ID)
		if err != nil {
			t.Errorf("%s: ExtractImage: %v", img.ID, err)
			continue
		}
		w, h, format, err := imageSize(data)
		if err != nil || format != exp.format || w != exp.w || h != exp.h {
			t.Errorf("%s: got %s %dx%d (%v), want %s %dx%d", img.ID, format, w, h, err, exp.format, exp.w, exp.h)
		}
	}
	if !bytes.Equal(mustExtract(t, doc, "p0-Im1"), photo) {
		t.Error("JPEG stream was not passed through unchanged")
	}
}

func mustExtract(t *testing.T, doc *Document, id string) []byte {
	t.Helper()
	data, err := doc.ExtractImage(id)
	if err != nil {
		t.Fatalf("ExtractImage(%s): %v", id, err)
	}
	return data
}

func TestIndexJPEGStreams(t *testing.T) {
	a, b := testJPEG(t, 8, 8), testJPEG(t, 16, 4)
	var file bytes.Buffer
	file.Write(streamObject("/Filter /DCTDecode", a))
	file.Write(streamObject("/Filter /FlateDecode", []byte("not an image")))
	file.Write(streamObject("/Filter /DCTDecode", b))
	file.Write(streamObject("/Filter /DCTDecode", []byte("corrupt")))
	file.Write(streamObject("/Filter /DCTDecode", a))

	idx := indexJPEGStreams(file.Bytes())
	if n := len(idx[[2]int{8, 8}]); n != 2 {
		t.Errorf("8x8 streams = %d, want 2", n)
	}
	if n := len(idx[[2]int{16, 4}]); n != 1 {
		t.Errorf("16x4 streams = %d, want 1", n)
	}
	if len(idx) != 2 {
		t.Errorf("sizes indexed = %d, want 2", len(idx))
	}

	j := &jpegStreams{loaded: true, bySize: idx}
	for i := 0; i < 2; i++ {
		if _, err := j.take(8, 8); err != nil {
			t.Fatalf("take %d: %v", i, err)
		}
	}
	if _, err := j.take(8, 8); err == nil {
		t.Error("expected error once the 8x8 streams are used up")
	}
}
