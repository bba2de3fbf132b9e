package gosimulado

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/gosimulado/answerkey"
	"github.com/brunobiangulo/gosimulado/parser"
	"github.com/brunobiangulo/gosimulado/question"
	"github.com/brunobiangulo/gosimulado/segment"
	"github.com/brunobiangulo/gosimulado/theme"
)

// Result is the output of one pipeline pass.
type Result struct {
	Rows   []question.Row        `json:"rows"`
	Images []question.ImageAsset `json:"-"`

	// Segments is the number of anchors found; Dropped counts segments that
	// produced no row.
	Segments int `json:"segments"`
	Dropped  int `json:"dropped"`

	// ImageErrors counts images skipped because their bytes could not be
	// extracted.
	ImageErrors int `json:"image_errors"`

	AnswerKey answerkey.Table `json:"-"`

	// DocumentID is set by Process called WithIngest.
	DocumentID int64 `json:"document_id,omitempty"`
}

// Pipeline turns a loaded document into question rows. It is safe for
// concurrent use: Run keeps all state on its own stack.
type Pipeline struct {
	examSize int
	workers  int
	rules    *theme.RuleSet
	key      *answerkey.Extractor
	filter   segment.ImageFilter
}

// NewPipeline builds a pipeline from the extraction fields of cfg.
func NewPipeline(cfg Config) (*Pipeline, error) {
	cfg.applyDefaults()

	rules, err := cfg.themeRules()
	if err != nil {
		return nil, err
	}
	key, err := answerkey.New(cfg.AnswerKeyHeading)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &Pipeline{
		examSize: cfg.ExamSize,
		workers:  cfg.Workers,
		rules:    rules,
		key:      key,
		filter:   cfg.ImageFilter,
	}, nil
}

// ExamNumber maps a 1-based global question id to its exam and its 1-based
// position within that exam, for exams of size questions.
func ExamNumber(id, size int) (exam, local int) {
	if size <= 0 {
		size = DefaultExamSize
	}
	return (id-1)/size + 1, (id-1)%size + 1
}

// segmentResult is the per-segment work done off the main goroutine.
type segmentResult struct {
	parsed      question.Parsed
	ok          bool
	theme       string
	images      []segment.Collected
	imageErrors int
}

// Run executes anchor detection, segmentation, per-segment parsing and row
// assembly. Only context cancellation makes it fail: a segment that panics
// or has no anchor is logged and counted in Result.Dropped.
func (p *Pipeline) Run(ctx context.Context, doc *parser.Document) (*Result, error) {
	start := time.Now()

	anchors := segment.DetectAnchors(doc)
	segs := segment.Build(anchors, doc.LastPage())
	slog.Info("extract: segments built",
		"file", doc.Path, "pages", doc.NumPage(), "segments", len(segs))

	// The key is complete before any row is assembled.
	key := p.key.Extract(doc.Lines())
	slog.Debug("extract: answer key", "exams", len(key), "answers", key.Len())

	results := make([]segmentResult, len(segs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.workers, 1))
	for i, seg := range segs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = p.processSegment(doc, seg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Segments: len(segs), AnswerKey: key}
	for i, sr := range results {
		res.ImageErrors += sr.imageErrors
		if !sr.ok {
			res.Dropped++
			slog.Warn("extract: segment dropped", "segment", i, "page", segs[i].Start.Page)
			continue
		}
		row := p.assemble(len(res.Rows)+1, sr, key)
		res.Rows = append(res.Rows, row)
		res.Images = append(res.Images, row.Images...)
	}

	slog.Info("extract: rows assembled",
		"file", doc.Path, "rows", len(res.Rows), "dropped", res.Dropped,
		"images", len(res.Images), "image_errors", res.ImageErrors,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}

// processSegment collects, parses and classifies one segment. Panics are
// contained so one malformed segment cannot take down the pass.
func (p *Pipeline) processSegment(doc *parser.Document, seg segment.Segment) (sr segmentResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("extract: segment panicked", "segment", seg.Index, "panic", r)
			sr = segmentResult{}
		}
	}()

	text := segment.CollectText(doc, seg)
	parsed, ok := question.Parse(text)
	if !ok {
		return segmentResult{}
	}

	sr.parsed = parsed
	sr.ok = true
	sr.theme = p.rules.Classify(question.JoinText(parsed.Statement, parsed.A, parsed.B, parsed.C, parsed.D))
	sr.images, sr.imageErrors = segment.CollectImages(doc, seg, p.filter)
	return sr
}

// assemble builds the row with the given global id.
func (p *Pipeline) assemble(id int, sr segmentResult, key answerkey.Table) question.Row {
	exam, local := ExamNumber(id, p.examSize)
	row := question.Row{
		ID:            id,
		SourceID:      sr.parsed.Identifier,
		Theme:         sr.theme,
		Statement:     sr.parsed.Statement,
		A:             sr.parsed.A,
		B:             sr.parsed.B,
		C:             sr.parsed.C,
		D:             sr.parsed.D,
		CorrectAnswer: key.Lookup(exam, local),
		HasImage:      len(sr.images) > 0,
		ExamNumber:    exam,
		LocalNumber:   local,
	}

	base := question.StripBrackets(sr.parsed.Identifier)
	for k, img := range sr.images {
		name := base
		if k > 0 {
			name = fmt.Sprintf("%s_%d", base, k)
		}
		row.Images = append(row.Images, question.ImageAsset{
			Name:   name,
			Format: parser.ImageFormat(img.Data),
			Page:   img.Page,
			Width:  img.Width,
			Height: img.Height,
			Data:   img.Data,
		})
	}
	return row
}
