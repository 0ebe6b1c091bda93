package search

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/huduma-ai/civicqa/internal/ai"
	"github.com/huduma-ai/civicqa/internal/index"
	"github.com/huduma-ai/civicqa/internal/model"
)

const taskTypeQuery = "RETRIEVAL_QUERY"

type RetrieverConfig struct {
	Alpha               float64
	CandidateMultiplier int
	MinScore            float64
}

// Retriever scores every entry of a snapshot against a query and fuses
// the dense and sparse signals into one ranking.
type Retriever struct {
	embedder ai.IEmbedder
	cfg      RetrieverConfig
}

func NewRetriever(embedder ai.IEmbedder, cfg RetrieverConfig) *Retriever {
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = 3
	}
	return &Retriever{embedder: embedder, cfg: cfg}
}

// Retrieve returns up to topK*candidateMultiplier candidates ordered by
// fused score, ties broken by dense score then chunk position. The wider
// cut gives the reranker headroom.
func (r *Retriever) Retrieve(ctx context.Context, query model.Query, snap *index.Snapshot) ([]model.RetrievalResult, error) {
	if snap.Empty() {
		return nil, nil
	}
	logger := logutil.GetLogger(ctx).With(zap.String("query", query.Text))

	queryDense, err := r.embedQuery(ctx, query.Text)
	if err != nil {
		if !errors.Is(err, ai.ErrUnavailable) {
			return nil, err
		}
		// lexical-only degradation: dense scores stay zero
		logger.Warn("query embedding unavailable, scoring sparse only")
	}
	querySparse := index.SparseVector(query.Text)

	results := make([]model.RetrievalResult, 0, len(snap.Entries))
	for i := range snap.Entries {
		entry := &snap.Entries[i]
		if !query.Role.Visible(entry.Audience) {
			continue
		}
		dense := denseScore(queryDense, entry.Dense)
		sparse := sparseScore(querySparse, entry.Sparse, snap)
		fused := r.cfg.Alpha*dense + (1-r.cfg.Alpha)*sparse
		if fused < r.cfg.MinScore {
			continue
		}
		results = append(results, model.RetrievalResult{
			ChunkID:     entry.ChunkID,
			DocID:       entry.DocID,
			Title:       entry.Title,
			Source:      entry.Source,
			Text:        entry.Text,
			Position:    entry.Position,
			DenseScore:  dense,
			SparseScore: sparse,
			FusedScore:  fused,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		if results[i].DenseScore != results[j].DenseScore {
			return results[i].DenseScore > results[j].DenseScore
		}
		if results[i].Position != results[j].Position {
			return results[i].Position < results[j].Position
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	limit := query.TopK * r.cfg.CandidateMultiplier
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	logger.Debug("retrieval finished", zap.Int("candidates", len(results)))
	return results, nil
}

func (r *Retriever) embedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := r.embedder.Embed(ctx, text, taskTypeQuery)
	if err != nil {
		return nil, err
	}
	return unitNorm(vec), nil
}

// denseScore is the cosine similarity of two unit vectors, clamped to
// [0,1] so it fuses cleanly with the sparse signal.
func denseScore(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	if dot < 0 {
		return 0
	}
	if dot > 1 {
		return 1
	}
	return dot
}

// sparseScore is the cosine of idf-weighted term frequency vectors,
// which stays within [0,1] for the non-negative weights used here.
func sparseScore(query, entry map[string]float64, snap *index.Snapshot) float64 {
	if len(query) == 0 || len(entry) == 0 {
		return 0
	}
	var dot, queryNorm, entryNorm float64
	for term, qw := range query {
		wq := qw * snap.IDF(term)
		queryNorm += wq * wq
		if ew, ok := entry[term]; ok {
			dot += wq * ew * snap.IDF(term)
		}
	}
	for term, ew := range entry {
		we := ew * snap.IDF(term)
		entryNorm += we * we
	}
	if queryNorm == 0 || entryNorm == 0 {
		return 0
	}
	return dot / (math.Sqrt(queryNorm) * math.Sqrt(entryNorm))
}

func unitNorm(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	inv := 1 / math.Sqrt(norm)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) * inv)
	}
	return out
}
