//go:build cgo

package gosimulado

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/gosimulado/store"
)

func newStoreEngine(t *testing.T) (Engine, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(dir, "test.db")
	cfg.Output = OutputConfig{}
	eng, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng, dir
}

func TestEngineIngest(t *testing.T) {
	eng, dir := newStoreEngine(t)
	ctx := context.Background()
	path := writeExam(t, dir, "exam.txt", examText)

	docID, err := eng.Ingest(ctx, path, WithMetadata(map[string]string{"banca": "CEA"}))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	// Unchanged content is skipped and keeps the ID.
	again, err := eng.Ingest(ctx, path)
	if err != nil || again != docID {
		t.Errorf("re-ingest = (%d, %v), want (%d, nil)", again, err, docID)
	}

	docs, err := eng.ListDocuments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d documents", len(docs))
	}
	d := docs[0]
	if d.Status != "ready" || d.ParseMethod != "text" || d.Segments != 2 || d.Dropped != 0 {
		t.Errorf("document = %+v", d)
	}
	if d.Metadata["banca"] != "CEA" {
		t.Errorf("metadata = %v", d.Metadata)
	}

	qs, err := eng.ListQuestions(ctx, store.QuestionFilter{DocumentID: docID})
	if err != nil {
		t.Fatal(err)
	}
	if len(qs) != 2 {
		t.Fatalf("got %d questions", len(qs))
	}
	if qs[0].SourceID != "[CEA-01]" || qs[0].CorrectAnswer != "C" || qs[0].ExamNumber != 1 {
		t.Errorf("question 1 = %+v", qs[0])
	}

	q, err := eng.GetQuestion(ctx, qs[1].ID)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if q.ChoiceA != "Verdadeiro" || len(q.Images) != 0 {
		t.Errorf("question 2 = %+v", q)
	}
	if _, err := eng.GetQuestion(ctx, 9999); !errors.Is(err, ErrQuestionNotFound) {
		t.Errorf("expected ErrQuestionNotFound, got %v", err)
	}

	hits, err := eng.Search(ctx, "copom", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 || hits[0].SourceID != "[CEA-02]" {
		t.Errorf("search hits = %+v", hits)
	}
	if hits, err := eng.Search(ctx, "   ", 10); err != nil || len(hits) != 0 {
		t.Errorf("blank search = %v, %v", hits, err)
	}

	similar, err := eng.Similar(ctx, qs[0].ID, 5)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(similar) != 1 || similar[0].ID != qs[1].ID {
		t.Errorf("similar = %+v", similar)
	}
}

// Process WithIngest writes the files and stores the rows from one
// extraction.
func TestEngineProcessWithIngest(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(dir, "test.db")
	cfg.Output = OutputConfig{CSV: filepath.Join(dir, "simulados.csv")}
	eng, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer eng.Close()

	ctx := context.Background()
	path := writeExam(t, dir, "exam.txt", examText)

	res, err := eng.Process(ctx, path, WithIngest())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.DocumentID == 0 || len(res.Rows) != 2 {
		t.Fatalf("result: document %d, %d rows", res.DocumentID, len(res.Rows))
	}
	if _, err := os.Stat(cfg.Output.CSV); err != nil {
		t.Errorf("csv not written: %v", err)
	}

	docs, err := eng.ListDocuments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].ID != res.DocumentID || docs[0].Status != "ready" || docs[0].ParseMethod != "text" {
		t.Errorf("documents = %+v", docs)
	}
	qs, err := eng.ListQuestions(ctx, store.QuestionFilter{DocumentID: res.DocumentID})
	if err != nil {
		t.Fatal(err)
	}
	if len(qs) != 2 {
		t.Errorf("stored %d questions, want 2", len(qs))
	}

	// Unchanged content keeps the stored document.
	again, err := eng.Process(ctx, path, WithIngest())
	if err != nil || again.DocumentID != res.DocumentID {
		t.Errorf("second process = %v, %v", again, err)
	}

	// Without WithIngest nothing is stored.
	plain, err := eng.Process(ctx, path)
	if err != nil || plain.DocumentID != 0 {
		t.Errorf("plain process = %v, %v", plain, err)
	}
}

func TestEngineUpdateAndDelete(t *testing.T) {
	eng, dir := newStoreEngine(t)
	ctx := context.Background()
	path := writeExam(t, dir, "exam.txt", examText)

	if _, err := eng.Update(ctx, path); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("update before ingest: expected ErrDocumentNotFound, got %v", err)
	}

	docID, err := eng.Ingest(ctx, path)
	if err != nil {
		t.Fatal(err)
	}

	changed, err := eng.Update(ctx, path)
	if err != nil || changed {
		t.Errorf("unchanged update = (%v, %v)", changed, err)
	}

	extra := examText + "3 [CEA-03] Nova questão\na) 1\nb) 2\nc) 3\nd) 4\n"
	if err := os.WriteFile(path, []byte(extra), 0o644); err != nil {
		t.Fatal(err)
	}
	results, err := eng.UpdateAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || !results[0].Changed || results[0].Error != nil {
		t.Errorf("update results = %+v", results)
	}

	qs, err := eng.ListQuestions(ctx, store.QuestionFilter{DocumentID: docID})
	if err != nil {
		t.Fatal(err)
	}
	if len(qs) != 3 {
		t.Errorf("after update: %d questions, want 3", len(qs))
	}

	if err := eng.Delete(ctx, docID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := eng.Delete(ctx, docID); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("second delete: expected ErrDocumentNotFound, got %v", err)
	}
}

func TestEngineIngestNoQuestions(t *testing.T) {
	eng, dir := newStoreEngine(t)
	path := writeExam(t, dir, "empty.txt", "apenas texto\nsem questões\n")

	if _, err := eng.Ingest(context.Background(), path); !errors.Is(err, ErrNoQuestions) {
		t.Errorf("expected ErrNoQuestions, got %v", err)
	}
}
