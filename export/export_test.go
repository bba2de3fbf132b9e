package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/brunobiangulo/gosimulado/question"
)

func sampleRows() []question.Row {
	return []question.Row{
		{
			ID: 1, SourceID: "[CEA-01]", Theme: "Renda Fixa",
			Statement: "Qual o indexador, em geral, das LTN?",
			A:         "Nenhum, são prefixadas", B: "IPCA", C: "Selic", D: "CDI",
			CorrectAnswer: "A", HasImage: true, ExamNumber: 1,
		},
		{
			ID: 2, SourceID: "[CEA-02]", Theme: "Produtos e Investimentos",
			Statement: "Texto com \"aspas\"\ne quebra",
			A:         "a", B: "b", C: "c", D: "d",
			ExamNumber: 1,
		},
	}
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

func TestRecord(t *testing.T) {
	rec := Record(sampleRows()[0])
	if len(rec) != len(Header) {
		t.Fatalf("len = %d, want %d", len(rec), len(Header))
	}
	if rec[0] != "1" || rec[1] != "[CEA-01]" || rec[9] != "SIM" || rec[11] != "1" {
		t.Errorf("record = %q", rec)
	}
	if got := Record(sampleRows()[1])[9]; got != "NAO" {
		t.Errorf("ha_imagem = %q, want NAO", got)
	}
}

func TestFromRecordErrors(t *testing.T) {
	tests := []struct {
		name string
		rec  []string
	}{
		{"short", []string{"1", "x"}},
		{"bad id", []string{"x", "", "", "", "", "", "", "", "", "NAO", "", "1"}},
		{"bad exam", []string{"1", "", "", "", "", "", "", "", "", "NAO", "", "?"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromRecord(tt.rec); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// CSV
// ---------------------------------------------------------------------------

func TestCSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleRows()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "id,id_questao_origem,tema,enunciado,") {
		t.Errorf("unexpected header line: %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}

	rows, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	want := sampleRows()
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for i := range want {
		w := want[i]
		w.Images = nil
		if !reflect.DeepEqual(rows[i], w) {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], w)
		}
	}
}

func TestReadCSVBadHeader(t *testing.T) {
	in := "id,tema\n1,x\n"
	if _, err := ReadCSV(strings.NewReader(in)); err == nil {
		t.Error("expected error for short header")
	}
}

func TestReadCSVBOM(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("\ufeff")
	if err := WriteCSV(&buf, sampleRows()[:1]); err != nil {
		t.Fatal(err)
	}
	rows, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(rows) != 1 || rows[0].SourceID != "[CEA-01]" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestWriteCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	if err := WriteCSVFile(path, sampleRows()); err != nil {
		t.Fatal(err)
	}
	rows, err := ReadCSVFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Errorf("got %d rows", len(rows))
	}
}

// ---------------------------------------------------------------------------
// XLSX
// ---------------------------------------------------------------------------

func TestXLSXRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	if err := WriteXLSX(path, sampleRows()); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}
	rows, err := ReadXLSX(path)
	if err != nil {
		t.Fatalf("ReadXLSX: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].SourceID != "[CEA-01]" || !rows[0].HasImage || rows[0].CorrectAnswer != "A" {
		t.Errorf("row 0 = %+v", rows[0])
	}
	// Empty trailing cells (comentario) must not break parsing.
	if rows[1].HasImage || rows[1].CorrectAnswer != "" || rows[1].ExamNumber != 1 {
		t.Errorf("row 1 = %+v", rows[1])
	}
}

func TestReadXLSXMissing(t *testing.T) {
	if _, err := ReadXLSX(filepath.Join(t.TempDir(), "nope.xlsx")); err == nil {
		t.Error("expected error")
	}
}

// ---------------------------------------------------------------------------
// Images
// ---------------------------------------------------------------------------

func TestWriteImages(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "imagens")
	assets := []question.ImageAsset{
		{Name: "CEA-01", Format: "png", Data: []byte("one")},
		{Name: "CEA-01_1", Format: "jpeg", Data: []byte("two")},
		{Name: "empty"},
	}
	paths, err := WriteImages(dir, assets)
	if err != nil {
		t.Fatalf("WriteImages: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("wrote %d files, want 2", len(paths))
	}
	data, err := os.ReadFile(filepath.Join(dir, "CEA-01_1.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "two" {
		t.Errorf("content = %q", data)
	}
}

func TestWriteImagesStorageKeys(t *testing.T) {
	dir := t.TempDir()
	assets := []question.ImageAsset{{Name: "CEA-07_1", Format: "png", Data: []byte("img")}}
	paths, err := WriteImages(dir, assets, WithStorageKeys())
	if err != nil {
		t.Fatalf("WriteImages: %v", err)
	}
	want := filepath.Join(dir, "CEA_07_1.png")
	if len(paths) != 1 || paths[0] != want {
		t.Errorf("paths = %v, want [%s]", paths, want)
	}
	if assets[0].Name != "CEA-07_1" {
		t.Errorf("caller's asset renamed to %q", assets[0].Name)
	}
}

func TestWriteImagesNone(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "unused")
	if _, err := WriteImages(dir, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("directory should not be created without images")
	}
}

// ---------------------------------------------------------------------------
// Postgres
// ---------------------------------------------------------------------------

func TestInsertStatement(t *testing.T) {
	q, args := insertStatement("questoes", sampleRows())
	if !strings.HasPrefix(q, "INSERT INTO questoes (id, id_questao_origem,") {
		t.Errorf("query = %q", q)
	}
	if !strings.Contains(q, "($13,$14,") || !strings.HasSuffix(q, "$24)") {
		t.Errorf("placeholders wrong: %q", q)
	}
	if len(args) != 2*len(Header) {
		t.Fatalf("args = %d", len(args))
	}
	if b, ok := args[9].(bool); !ok || !b {
		t.Errorf("ha_imagem arg = %#v, want true", args[9])
	}
}

func TestOpenPostgresRejectsTable(t *testing.T) {
	for _, name := range []string{"", "questoes; drop", "1abc", "a.b.c"} {
		if _, err := OpenPostgres(context.Background(), "postgres://localhost/x", name, 0); err == nil {
			t.Errorf("table %q accepted", name)
		}
	}
}

func TestPostgresReplace(t *testing.T) {
	dsn := os.Getenv("GOSIMULADO_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("GOSIMULADO_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	sink, err := OpenPostgres(ctx, dsn, "questoes_test", 1)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()
	// Temp tables live per connection.
	sink.DB.SetMaxOpenConns(1)

	_, err = sink.DB.ExecContext(ctx, `CREATE TEMP TABLE questoes_test (
		id integer, id_questao_origem text, tema text, enunciado text,
		alternativa_a text, alternativa_b text, alternativa_c text, alternativa_d text,
		resposta_correta text, ha_imagem boolean, comentario text, simulado_numero integer)`)
	if err != nil {
		t.Fatal(err)
	}

	for range 2 {
		if err := sink.Replace(ctx, sampleRows()); err != nil {
			t.Fatalf("Replace: %v", err)
		}
	}
	var n int
	if err := sink.DB.QueryRowContext(ctx, "SELECT count(*) FROM questoes_test").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}
