// Package retrieval implements hybrid question search: FTS5 keyword matches
// and fingerprint nearest neighbours fused with Reciprocal Rank Fusion.
package retrieval

import (
	"context"
	"log/slog"
	"time"

	"github.com/brunobiangulo/gosimulado/question"
	"github.com/brunobiangulo/gosimulado/store"
)

// Config holds the default fusion weights.
type Config struct {
	WeightVector float64 `json:"weight_vector" yaml:"weight_vector"`
	WeightFTS    float64 `json:"weight_fts" yaml:"weight_fts"`

	// MinSimilarity drops fingerprint neighbours below this cosine
	// similarity. KNN always returns k rows, related or not.
	MinSimilarity float64 `json:"min_similarity" yaml:"min_similarity"`
}

// DefaultConfig favours keyword matches: a short query shares few hashed
// features with a full statement, so its fingerprint ranks are noisier.
func DefaultConfig() Config {
	return Config{WeightVector: 0.5, WeightFTS: 1.0, MinSimilarity: 0.1}
}

// SearchOptions configures one search. Zero weights use the Config values.
type SearchOptions struct {
	MaxResults int
	WeightVec  float64
	WeightFTS  float64
}

// SearchTrace records what each method contributed.
type SearchTrace struct {
	FTSQuery     string                    `json:"fts_query"`
	FTSResults   int                       `json:"fts_results"`
	VecResults   int                       `json:"vec_results"`
	FusedResults int                       `json:"fused_results"`
	Methods      map[int64]FusedResultInfo `json:"methods,omitempty"`
	ElapsedMs    int64                     `json:"elapsed_ms"`
}

// Engine searches the questions of a store.
type Engine struct {
	store *store.Store
	cfg   Config
}

// New creates a search engine over s. Zero fields take DefaultConfig values.
func New(s *store.Store, cfg Config) *Engine {
	d := DefaultConfig()
	if cfg.WeightVector == 0 {
		cfg.WeightVector = d.WeightVector
	}
	if cfg.WeightFTS == 0 {
		cfg.WeightFTS = d.WeightFTS
	}
	if cfg.MinSimilarity == 0 {
		cfg.MinSimilarity = d.MinSimilarity
	}
	return &Engine{store: s, cfg: cfg}
}

// Search runs both methods with twice the requested depth and fuses them.
// A failing method is logged and the other one still contributes.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]store.SearchResult, *SearchTrace, error) {
	start := time.Now()
	if opts.MaxResults <= 0 {
		opts.MaxResults = 20
	}
	if opts.WeightVec == 0 {
		opts.WeightVec = e.cfg.WeightVector
	}
	if opts.WeightFTS == 0 {
		opts.WeightFTS = e.cfg.WeightFTS
	}
	depth := opts.MaxResults * 2
	trace := &SearchTrace{FTSQuery: buildFTSQuery(query)}

	var ftsResults []store.SearchResult
	if trace.FTSQuery != "" {
		var err error
		ftsResults, err = e.store.FTSSearch(ctx, trace.FTSQuery, depth)
		if err != nil {
			slog.Warn("retrieval: fts search failed", "query", trace.FTSQuery, "error", err)
		}
	}

	var vecResults []store.SearchResult
	vec := question.Fingerprint(query, e.store.FingerprintDim())
	if question.Cosine(vec, vec) > 0 {
		var err error
		vecResults, err = e.store.SimilarQuestions(ctx, vec, depth, 0)
		if err != nil {
			slog.Warn("retrieval: fingerprint search failed", "error", err)
		}
		vecResults = aboveSimilarity(vecResults, e.cfg.MinSimilarity)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	results, info := fuseRRF(vecResults, ftsResults, opts.WeightVec, opts.WeightFTS, opts.MaxResults)
	trace.FTSResults = len(ftsResults)
	trace.VecResults = len(vecResults)
	trace.FusedResults = len(results)
	trace.Methods = info
	trace.ElapsedMs = time.Since(start).Milliseconds()

	slog.Debug("retrieval: search complete",
		"fts", trace.FTSResults, "vector", trace.VecResults, "fused", trace.FusedResults)
	return results, trace, nil
}

// aboveSimilarity keeps the results scoring at least floor. Input is sorted by
// descending similarity, so the cut is a prefix.
func aboveSimilarity(results []store.SearchResult, floor float64) []store.SearchResult {
	for i, r := range results {
		if r.Score < floor {
			return results[:i]
		}
	}
	return results
}
