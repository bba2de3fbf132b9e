package gosimulado

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/gosimulado/export"
)

const examText = "CEA: SIMULADO (1)\n1. C\n2. A\n" +
	"1 [CEA-01] Qual o indexador das LTN?\n" +
	"a) Nenhum\nb) IPCA\nc) Selic\nd) CDI\n" +
	"2 [CEA-02] O COPOM define a meta da taxa Selic\n" +
	"a) Verdadeiro\nb) Falso\nc) Depende\nd) Nenhuma\n"

func writeExam(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func noStoreConfig(dir string) Config {
	cfg := DefaultConfig()
	cfg.StorageDir = "none"
	cfg.Output = OutputConfig{
		CSV:      filepath.Join(dir, "simulados.csv"),
		XLSX:     filepath.Join(dir, "simulados.xlsx"),
		ImageDir: filepath.Join(dir, "imagens"),
	}
	return cfg
}

func TestEngineExtract(t *testing.T) {
	dir := t.TempDir()
	eng, err := New(noStoreConfig(dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer eng.Close()

	if eng.Store() != nil {
		t.Error("store should be disabled")
	}

	res, err := eng.Extract(context.Background(), writeExam(t, dir, "exam.txt", examText))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(res.Rows))
	}
	if res.Rows[0].CorrectAnswer != "C" || res.Rows[1].CorrectAnswer != "A" {
		t.Errorf("answers = %q, %q", res.Rows[0].CorrectAnswer, res.Rows[1].CorrectAnswer)
	}
	if _, err := os.Stat(filepath.Join(dir, "simulados.csv")); !os.IsNotExist(err) {
		t.Error("Extract must not write outputs")
	}
}

func TestEngineProcess(t *testing.T) {
	dir := t.TempDir()
	cfg := noStoreConfig(dir)
	eng, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close()

	if _, err := eng.Process(context.Background(), writeExam(t, dir, "exam.txt", examText)); err != nil {
		t.Fatalf("Process: %v", err)
	}

	rows, err := export.ReadCSVFile(cfg.Output.CSV)
	if err != nil {
		t.Fatalf("reading CSV: %v", err)
	}
	if len(rows) != 2 || rows[1].SourceID != "[CEA-02]" || rows[1].Theme != "Sistema Financeiro e Regulação" {
		t.Errorf("csv rows = %+v", rows)
	}

	xrows, err := export.ReadXLSX(cfg.Output.XLSX)
	if err != nil {
		t.Fatalf("reading XLSX: %v", err)
	}
	if len(xrows) != 2 {
		t.Errorf("xlsx rows = %d", len(xrows))
	}

	// Text documents carry no images, so no directory is created.
	if _, err := os.Stat(cfg.Output.ImageDir); !os.IsNotExist(err) {
		t.Error("image dir should not exist")
	}
}

func TestEngineErrors(t *testing.T) {
	dir := t.TempDir()
	eng, err := New(noStoreConfig(dir))
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close()
	ctx := context.Background()

	if _, err := eng.Extract(ctx, writeExam(t, dir, "exam.docx", "x")); !errors.Is(err, ErrUnsupportedBackend) {
		t.Errorf("docx: expected ErrUnsupportedBackend, got %v", err)
	}
	if _, err := eng.Extract(ctx, filepath.Join(dir, "missing.txt")); !errors.Is(err, ErrLoadFailed) {
		t.Errorf("missing: expected ErrLoadFailed, got %v", err)
	}
	if _, err := eng.Extract(ctx, writeExam(t, dir, "a.pdf", "x"), WithBackend("ocr")); !errors.Is(err, ErrUnsupportedBackend) {
		t.Errorf("backend: expected ErrUnsupportedBackend, got %v", err)
	}

	if _, err := eng.Ingest(ctx, writeExam(t, dir, "exam.txt", examText)); !errors.Is(err, ErrStoreDisabled) {
		t.Errorf("ingest: expected ErrStoreDisabled, got %v", err)
	}
	if _, err := eng.Process(ctx, writeExam(t, dir, "exam.txt", examText), WithIngest()); !errors.Is(err, ErrStoreDisabled) {
		t.Errorf("process with ingest: expected ErrStoreDisabled, got %v", err)
	}
	if _, err := eng.ListDocuments(ctx); !errors.Is(err, ErrStoreDisabled) {
		t.Errorf("list: expected ErrStoreDisabled, got %v", err)
	}
	if _, err := eng.Similar(ctx, 1, 3); !errors.Is(err, ErrStoreDisabled) {
		t.Errorf("similar: expected ErrStoreDisabled, got %v", err)
	}
}

func TestNewInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "ocr"
	if _, err := New(cfg); !errors.Is(err, ErrUnsupportedBackend) {
		t.Errorf("expected ErrUnsupportedBackend, got %v", err)
	}
}
