package search

import (
	"context"
	"sort"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/huduma-ai/civicqa/internal/index"
	"github.com/huduma-ai/civicqa/internal/model"
)

type RerankerConfig struct {
	Enabled bool
	// Blend mixes the first-stage fused score with the pointwise
	// relevance score: rerank = blend*fused + (1-blend)*pointwise.
	// Both inputs live on an absolute [0,1] scale so the grounding
	// threshold downstream keeps its meaning.
	Blend float64
}

// Reranker re-scores the small candidate set with a pointwise lexical
// relevance model (query-term coverage, phrase adjacency, match
// position). When disabled it passes the fused ordering through.
type Reranker struct {
	cfg RerankerConfig
}

func NewReranker(cfg RerankerConfig) *Reranker {
	return &Reranker{cfg: cfg}
}

func (r *Reranker) Rerank(ctx context.Context, query model.Query, candidates []model.RetrievalResult, topK int) []model.RetrievalResult {
	out := make([]model.RetrievalResult, len(candidates))
	copy(out, candidates)

	if !r.cfg.Enabled {
		for i := range out {
			out[i].RerankScore = out[i].FusedScore
		}
		return truncate(out, topK)
	}

	queryTokens := index.Tokenize(query.Text)
	for i := range out {
		pointwise := relevance(queryTokens, index.Tokenize(out[i].Text))
		out[i].RerankScore = r.cfg.Blend*out[i].FusedScore + (1-r.cfg.Blend)*pointwise
		out[i].Reranked = true
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RerankScore != out[j].RerankScore {
			return out[i].RerankScore > out[j].RerankScore
		}
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	logutil.GetLogger(ctx).Debug("rerank finished",
		zap.Int("candidates", len(out)), zap.Int("top_k", topK))
	return truncate(out, topK)
}

// relevance scores a candidate in [0,1]: how many distinct query terms
// it covers, whether query bigrams appear adjacent, and how early the
// first match occurs.
func relevance(queryTokens, docTokens []string) float64 {
	if len(queryTokens) == 0 || len(docTokens) == 0 {
		return 0
	}
	positions := map[string][]int{}
	for i, t := range docTokens {
		positions[t] = append(positions[t], i)
	}

	distinct := map[string]struct{}{}
	for _, t := range queryTokens {
		distinct[t] = struct{}{}
	}
	covered := 0
	firstMatch := -1
	for t := range distinct {
		if pos, ok := positions[t]; ok {
			covered++
			if firstMatch < 0 || pos[0] < firstMatch {
				firstMatch = pos[0]
			}
		}
	}
	coverage := float64(covered) / float64(len(distinct))
	if covered == 0 {
		return 0
	}

	adjacency := 0.0
	if len(queryTokens) > 1 {
		hits := 0
		for i := 0; i < len(queryTokens)-1; i++ {
			if bigramAdjacent(positions, queryTokens[i], queryTokens[i+1]) {
				hits++
			}
		}
		adjacency = float64(hits) / float64(len(queryTokens)-1)
	}

	earliness := 1 - float64(firstMatch)/float64(len(docTokens))

	return 0.6*coverage + 0.25*adjacency + 0.15*earliness
}

func bigramAdjacent(positions map[string][]int, a, b string) bool {
	pa, pb := positions[a], positions[b]
	for _, i := range pa {
		for _, j := range pb {
			if j == i+1 {
				return true
			}
		}
	}
	return false
}

func truncate(results []model.RetrievalResult, topK int) []model.RetrievalResult {
	if topK > 0 && len(results) > topK {
		return results[:topK]
	}
	return results
}
