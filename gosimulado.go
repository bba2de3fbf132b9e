package gosimulado

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brunobiangulo/gosimulado/export"
	"github.com/brunobiangulo/gosimulado/parser"
	"github.com/brunobiangulo/gosimulado/question"
	"github.com/brunobiangulo/gosimulado/retrieval"
	"github.com/brunobiangulo/gosimulado/segment"
	"github.com/brunobiangulo/gosimulado/store"
)

// Engine is the main entry point: it loads exam documents, runs the
// extraction pipeline and writes or stores the resulting rows.
type Engine interface {
	// Extract loads a document and returns its rows without side effects.
	Extract(ctx context.Context, path string, opts ...Option) (*Result, error)

	// Process extracts a document and writes the configured outputs (CSV,
	// XLSX, image directory, Postgres table). WithIngest also stores the
	// rows of the same pass.
	Process(ctx context.Context, path string, opts ...Option) (*Result, error)

	// Ingest extracts a document and stores its questions in the database.
	// Returns the document ID. Skips if the content hash is unchanged.
	Ingest(ctx context.Context, path string, opts ...Option) (int64, error)

	// Update re-checks a document by hash. Re-ingests if changed.
	Update(ctx context.Context, path string) (bool, error)

	// UpdateAll checks all ingested documents for changes.
	UpdateAll(ctx context.Context) ([]UpdateResult, error)

	// Delete removes a document and all its questions.
	Delete(ctx context.Context, documentID int64) error

	// ListDocuments returns all ingested documents.
	ListDocuments(ctx context.Context) ([]Document, error)

	// ListQuestions returns stored questions matching the filter.
	ListQuestions(ctx context.Context, f store.QuestionFilter) ([]store.Question, error)

	// GetQuestion returns one stored question with its images.
	GetQuestion(ctx context.Context, id int64) (*Question, error)

	// Search ranks stored questions against free text, fusing full-text
	// and fingerprint matches.
	Search(ctx context.Context, query string, limit int) ([]store.SearchResult, error)

	// Similar returns the k stored questions closest to the given one.
	Similar(ctx context.Context, id int64, k int) ([]store.SearchResult, error)

	// Store returns the underlying store, nil when the database is disabled.
	Store() *store.Store

	// Close cleanly shuts down the engine.
	Close() error
}

// Document represents an ingested document.
type Document struct {
	ID          int64             `json:"id"`
	Path        string            `json:"path"`
	Filename    string            `json:"filename"`
	Format      string            `json:"format"`
	ContentHash string            `json:"content_hash"`
	ParseMethod string            `json:"parse_method"`
	Status      string            `json:"status"`
	Segments    int               `json:"segments"`
	Dropped     int               `json:"dropped"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
}

// Question is a stored question together with its image metadata.
type Question struct {
	store.Question
	Images []store.QuestionImage `json:"images,omitempty"`
}

// UpdateResult reports the outcome of a document update check.
type UpdateResult struct {
	DocumentID int64  `json:"document_id"`
	Path       string `json:"path"`
	Changed    bool   `json:"changed"`
	Error      error  `json:"error,omitempty"`
}

// Option configures a single Extract, Process or Ingest call.
type Option func(*options)

type options struct {
	backend      string
	forceReparse bool
	ingest       bool
	metadata     map[string]string
}

// WithBackend overrides the configured PDF backend for this call.
func WithBackend(name string) Option {
	return func(o *options) { o.backend = name }
}

// WithForceReparse forces re-ingestion even if the hash hasn't changed.
func WithForceReparse() Option {
	return func(o *options) { o.forceReparse = true }
}

// WithIngest makes Process store the extracted rows as Ingest would, without
// loading the document a second time.
func WithIngest() Option {
	return func(o *options) { o.ingest = true }
}

// WithMetadata attaches custom metadata to the ingested document.
func WithMetadata(metadata map[string]string) Option {
	return func(o *options) { o.metadata = metadata }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg      Config
	store    *store.Store
	searcher *retrieval.Engine
	loaders  *parser.Registry
	pipeline *Pipeline
}

// New creates an engine with the given configuration. The database is
// opened unless StorageDir is "none" and DBPath is empty.
func New(cfg Config) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	p, err := NewPipeline(cfg)
	if err != nil {
		return nil, err
	}

	e := &engine{
		cfg:      cfg,
		loaders:  parser.NewRegistry(parser.WithSplitBefore(segment.IsAnchorLine)),
		pipeline: p,
	}

	if dbPath := cfg.resolveDBPath(); dbPath != "" {
		s, err := store.New(dbPath, cfg.FingerprintDim)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		e.store = s
		e.searcher = retrieval.New(s, cfg.Search)
		slog.Debug("engine: store opened", "path", dbPath)
	}
	return e, nil
}

func collectOptions(opts []Option) *options {
	o := &options{}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// load picks the loader for path and reads the document.
func (e *engine) load(ctx context.Context, path string, o *options) (*parser.Document, error) {
	backend := o.backend
	if backend == "" {
		backend = e.cfg.Backend
	}
	l, err := e.loaders.ForPath(path, backend)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedBackend, err)
	}

	start := time.Now()
	doc, err := l.Load(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	cov := doc.Coverage()
	if cov.Scanned() {
		return nil, fmt.Errorf("%w: %s has no text layer (scanned pages need OCR)", ErrLoadFailed, filepath.Base(path))
	}
	if len(cov.ImageOnly) > 0 {
		slog.Warn("extract: pages without text layer", "file", filepath.Base(path), "pages", cov.ImageOnly)
	}
	slog.Info("extract: document loaded",
		"file", filepath.Base(path), "backend", l.Name(), "pages", doc.NumPage(),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return doc, nil
}

// Extract loads path and runs the pipeline.
func (e *engine) Extract(ctx context.Context, path string, opts ...Option) (*Result, error) {
	_, res, err := e.extract(ctx, path, collectOptions(opts))
	return res, err
}

func (e *engine) extract(ctx context.Context, path string, o *options) (*parser.Document, *Result, error) {
	doc, err := e.load(ctx, path, o)
	if err != nil {
		return nil, nil, err
	}
	res, err := e.pipeline.Run(ctx, doc)
	if err != nil {
		return nil, nil, err
	}
	return doc, res, nil
}

// Process extracts path and writes every configured output. Output failures
// are returned; rows already extracted are returned with them.
func (e *engine) Process(ctx context.Context, path string, opts ...Option) (*Result, error) {
	o := collectOptions(opts)
	if o.ingest && e.store == nil {
		return nil, ErrStoreDisabled
	}
	doc, res, err := e.extract(ctx, path, o)
	if err != nil {
		return nil, err
	}
	if err := e.writeOutputs(ctx, res); err != nil {
		return res, err
	}
	if !o.ingest {
		return res, nil
	}

	target, err := e.ingestTarget(ctx, path, o)
	if err != nil {
		return res, err
	}
	if target.unchanged {
		res.DocumentID = target.docID
		return res, nil
	}
	e.store.UpdateDocumentParseMethod(ctx, target.docID, doc.Method)
	if err := e.storeResult(ctx, target, res); err != nil {
		return res, err
	}
	res.DocumentID = target.docID
	return res, nil
}

func (e *engine) writeOutputs(ctx context.Context, res *Result) error {
	out := e.cfg.Output
	if out.CSV != "" {
		if err := export.WriteCSVFile(out.CSV, res.Rows); err != nil {
			return fmt.Errorf("writing CSV: %w", err)
		}
		slog.Info("process: csv written", "path", out.CSV, "rows", len(res.Rows))
	}
	if out.XLSX != "" {
		if err := export.WriteXLSX(out.XLSX, res.Rows); err != nil {
			return fmt.Errorf("writing XLSX: %w", err)
		}
		slog.Info("process: xlsx written", "path", out.XLSX, "rows", len(res.Rows))
	}
	if out.ImageDir != "" {
		var imgOpts []export.ImageOption
		if out.StorageKeys {
			imgOpts = append(imgOpts, export.WithStorageKeys())
		}
		written, err := export.WriteImages(out.ImageDir, res.Images, imgOpts...)
		if err != nil {
			return fmt.Errorf("writing images: %w", err)
		}
		slog.Info("process: images written", "dir", out.ImageDir, "files", len(written))
	}

	if pg := e.cfg.Postgres; pg.DSN != "" {
		sink, err := export.OpenPostgres(ctx, pg.DSN, pg.Table, pg.BatchSize)
		if err != nil {
			return err
		}
		defer sink.Close()
		if err := sink.Replace(ctx, res.Rows); err != nil {
			return fmt.Errorf("uploading rows: %w", err)
		}
	}
	return nil
}

// ingestTarget is the stored document an extraction is written to.
type ingestTarget struct {
	docID     int64
	path      string
	unchanged bool // same hash, already ready: nothing to store
}

// ingestTarget hashes path and upserts its document row with status
// "processing", unless the stored copy is current and o does not force.
func (e *engine) ingestTarget(ctx context.Context, path string, o *options) (ingestTarget, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return ingestTarget{}, fmt.Errorf("resolving path: %w", err)
	}
	hash, err := fileHash(absPath)
	if err != nil {
		return ingestTarget{}, fmt.Errorf("hashing file: %w", err)
	}

	if !o.forceReparse {
		existing, err := e.store.GetDocumentByPath(ctx, absPath)
		if err == nil && existing.ContentHash == hash && existing.Status == "ready" {
			return ingestTarget{docID: existing.ID, path: absPath, unchanged: true}, nil
		}
	}

	var metadataJSON string
	if o.metadata != nil {
		data, _ := json.Marshal(o.metadata)
		metadataJSON = string(data)
	}

	docID, err := e.store.UpsertDocument(ctx, store.Document{
		Path:        absPath,
		Filename:    filepath.Base(absPath),
		Format:      strings.ToLower(strings.TrimPrefix(filepath.Ext(absPath), ".")),
		ContentHash: hash,
		ParseMethod: "pending",
		Status:      "processing",
		Metadata:    metadataJSON,
	})
	if err != nil {
		return ingestTarget{}, fmt.Errorf("upserting document: %w", err)
	}
	return ingestTarget{docID: docID, path: absPath}, nil
}

// Ingest runs the pipeline and replaces the document's stored questions.
func (e *engine) Ingest(ctx context.Context, path string, opts ...Option) (int64, error) {
	if e.store == nil {
		return 0, ErrStoreDisabled
	}
	o := collectOptions(opts)

	target, err := e.ingestTarget(ctx, path, o)
	if err != nil {
		return 0, err
	}
	if target.unchanged {
		return target.docID, nil
	}
	slog.Info("ingest: extracting document", "file", filepath.Base(target.path), "doc_id", target.docID)

	doc, res, err := e.extract(ctx, target.path, o)
	if err != nil {
		e.store.UpdateDocumentStatus(ctx, target.docID, "error")
		return 0, err
	}
	e.store.UpdateDocumentParseMethod(ctx, target.docID, doc.Method)

	if err := e.storeResult(ctx, target, res); err != nil {
		return 0, err
	}
	return target.docID, nil
}

// storeResult replaces the stored questions, images and fingerprints of the
// target document with res and marks it ready.
func (e *engine) storeResult(ctx context.Context, target ingestTarget, res *Result) error {
	start := time.Now()
	docID, filename := target.docID, filepath.Base(target.path)

	if err := e.store.UpdateDocumentCounts(ctx, docID, res.Segments, res.Dropped); err != nil {
		slog.Warn("ingest: storing counts failed", "doc_id", docID, "error", err)
	}
	if len(res.Rows) == 0 {
		e.store.UpdateDocumentStatus(ctx, docID, "error")
		return fmt.Errorf("%w: %s", ErrNoQuestions, filename)
	}

	if err := e.store.DeleteDocumentData(ctx, docID); err != nil {
		return fmt.Errorf("cleaning old data: %w", err)
	}

	ids, err := e.store.InsertQuestions(ctx, toStoreQuestions(docID, res.Rows))
	if err != nil {
		e.store.UpdateDocumentStatus(ctx, docID, "error")
		return fmt.Errorf("inserting questions: %w", err)
	}

	var failed int
	for i, row := range res.Rows {
		if len(row.Images) > 0 {
			if err := e.store.InsertImages(ctx, ids[i], toStoreImages(row.Images)); err != nil {
				slog.Warn("ingest: storing images failed", "question_id", ids[i], "error", err)
				failed++
			}
		}
		vec := question.Fingerprint(row.Text(), e.store.FingerprintDim())
		if err := e.store.InsertFingerprint(ctx, ids[i], vec); err != nil {
			slog.Warn("ingest: storing fingerprint failed", "question_id", ids[i], "error", err)
			failed++
		}
	}
	if failed > 0 {
		slog.Warn("ingest: some question data failed", "failed", failed, "questions", len(ids))
	}

	e.store.UpdateDocumentStatus(ctx, docID, "ready")
	slog.Info("ingest: document ready",
		"file", filename, "doc_id", docID, "questions", len(ids),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func toStoreQuestions(docID int64, rows []question.Row) []store.Question {
	out := make([]store.Question, len(rows))
	for i, r := range rows {
		out[i] = store.Question{
			DocumentID:    docID,
			Number:        r.ID,
			SourceID:      r.SourceID,
			Theme:         r.Theme,
			Statement:     r.Statement,
			ChoiceA:       r.A,
			ChoiceB:       r.B,
			ChoiceC:       r.C,
			ChoiceD:       r.D,
			CorrectAnswer: r.CorrectAnswer,
			HasImage:      r.HasImage,
			Comment:       r.Comment,
			ExamNumber:    r.ExamNumber,
			LocalNumber:   r.LocalNumber,
		}
	}
	return out
}

func toStoreImages(assets []question.ImageAsset) []store.QuestionImage {
	out := make([]store.QuestionImage, len(assets))
	for i, a := range assets {
		out[i] = store.QuestionImage{
			Name:   a.Name,
			Format: a.Format,
			Page:   a.Page,
			Width:  a.Width,
			Height: a.Height,
			Data:   a.Data,
		}
	}
	return out
}

// Update checks if a document has changed and re-ingests if needed.
func (e *engine) Update(ctx context.Context, path string) (bool, error) {
	if e.store == nil {
		return false, ErrStoreDisabled
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("resolving path: %w", err)
	}

	doc, err := e.store.GetDocumentByPath(ctx, absPath)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrDocumentNotFound, absPath)
	}

	hash, err := fileHash(absPath)
	if err != nil {
		return false, fmt.Errorf("hashing file: %w", err)
	}
	if hash == doc.ContentHash {
		return false, nil
	}

	if _, err := e.Ingest(ctx, absPath, WithForceReparse()); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateAll checks all documents for changes.
func (e *engine) UpdateAll(ctx context.Context) ([]UpdateResult, error) {
	if e.store == nil {
		return nil, ErrStoreDisabled
	}
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]UpdateResult, 0, len(docs))
	for _, doc := range docs {
		changed, err := e.Update(ctx, doc.Path)
		results = append(results, UpdateResult{
			DocumentID: doc.ID,
			Path:       doc.Path,
			Changed:    changed,
			Error:      err,
		})
	}
	return results, nil
}

// Delete removes a document and all its associated data.
func (e *engine) Delete(ctx context.Context, documentID int64) error {
	if e.store == nil {
		return ErrStoreDisabled
	}
	err := e.store.DeleteDocument(ctx, documentID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}
	return err
}

// ListDocuments returns all ingested documents.
func (e *engine) ListDocuments(ctx context.Context) ([]Document, error) {
	if e.store == nil {
		return nil, ErrStoreDisabled
	}
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Document, len(docs))
	for i, d := range docs {
		result[i] = Document{
			ID:          d.ID,
			Path:        d.Path,
			Filename:    d.Filename,
			Format:      d.Format,
			ContentHash: d.ContentHash,
			ParseMethod: d.ParseMethod,
			Status:      d.Status,
			Segments:    d.Segments,
			Dropped:     d.Dropped,
			CreatedAt:   d.CreatedAt,
			UpdatedAt:   d.UpdatedAt,
		}
		if d.Metadata != "" {
			_ = json.Unmarshal([]byte(d.Metadata), &result[i].Metadata)
		}
	}
	return result, nil
}

// ListQuestions returns stored questions matching f.
func (e *engine) ListQuestions(ctx context.Context, f store.QuestionFilter) ([]store.Question, error) {
	if e.store == nil {
		return nil, ErrStoreDisabled
	}
	return e.store.ListQuestions(ctx, f)
}

// GetQuestion returns a stored question and its images.
func (e *engine) GetQuestion(ctx context.Context, id int64) (*Question, error) {
	if e.store == nil {
		return nil, ErrStoreDisabled
	}
	q, err := e.store.GetQuestion(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrQuestionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	imgs, err := e.store.QuestionImages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading images: %w", err)
	}
	return &Question{Question: *q, Images: imgs}, nil
}

// Search runs the hybrid keyword and fingerprint search.
func (e *engine) Search(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	if e.store == nil {
		return nil, ErrStoreDisabled
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	results, trace, err := e.searcher.Search(ctx, query, retrieval.SearchOptions{MaxResults: limit})
	if err != nil {
		return nil, err
	}
	slog.Debug("search: done", "query", query, "fts_query", trace.FTSQuery,
		"fts", trace.FTSResults, "vector", trace.VecResults, "elapsed_ms", trace.ElapsedMs)
	return results, nil
}

// Similar returns the k nearest questions to id by fingerprint.
func (e *engine) Similar(ctx context.Context, id int64, k int) ([]store.SearchResult, error) {
	if e.store == nil {
		return nil, ErrStoreDisabled
	}
	vec, err := e.store.QuestionFingerprint(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrQuestionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 5
	}
	return e.store.SimilarQuestions(ctx, vec, k, id)
}

// Store returns the underlying store for diagnostic access.
func (e *engine) Store() *store.Store {
	return e.store
}

// Close shuts down the engine.
func (e *engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// fileHash computes the SHA-256 hash of a file's content.
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
