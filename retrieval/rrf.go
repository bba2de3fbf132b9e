package retrieval

import (
	"sort"

	"github.com/brunobiangulo/gosimulado/store"
)

const rrfK = 60 // RRF constant (standard value from literature)

// FusedResultInfo holds per-result method contribution metadata.
type FusedResultInfo struct {
	Methods []string `json:"methods"`
	VecRank int      `json:"vec_rank,omitempty"` // 1-based, 0 = not present
	FTSRank int      `json:"fts_rank,omitempty"` // 1-based, 0 = not present
}

// fuseRRF combines the fingerprint and FTS rankings with Reciprocal Rank
// Fusion: score = sum(weight_i / (k + rank_i)). Results are keyed by
// question ID; the returned map records which methods found each one.
func fuseRRF(
	vecResults, ftsResults []store.SearchResult,
	weightVec, weightFTS float64,
	maxResults int,
) ([]store.SearchResult, map[int64]FusedResultInfo) {
	type fusedEntry struct {
		result store.SearchResult
		score  float64
		info   FusedResultInfo
	}

	fused := make(map[int64]*fusedEntry)
	add := func(results []store.SearchResult, weight float64, method string) {
		for rank, r := range results {
			entry, ok := fused[r.ID]
			if !ok {
				entry = &fusedEntry{result: r}
				fused[r.ID] = entry
			}
			entry.score += weight / float64(rrfK+rank+1)
			entry.info.Methods = append(entry.info.Methods, method)
			if method == "vector" {
				entry.info.VecRank = rank + 1
			} else {
				entry.info.FTSRank = rank + 1
			}
		}
	}
	add(vecResults, weightVec, "vector")
	add(ftsResults, weightFTS, "fts")

	entries := make([]*fusedEntry, 0, len(fused))
	for _, e := range fused {
		entries = append(entries, e)
	}

	// Ties fall back to question ID so results are deterministic.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].result.ID < entries[j].result.ID
	})

	if maxResults > 0 && len(entries) > maxResults {
		entries = entries[:maxResults]
	}

	results := make([]store.SearchResult, len(entries))
	infoMap := make(map[int64]FusedResultInfo, len(entries))
	for i, e := range entries {
		results[i] = e.result
		results[i].Score = e.score
		infoMap[e.result.ID] = e.info
	}
	return results, infoMap
}
