package search

import (
	"context"
	"hash/fnv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/huduma-ai/civicqa/internal/ai"
	"github.com/huduma-ai/civicqa/internal/index"
	"github.com/huduma-ai/civicqa/internal/ingest"
	"github.com/huduma-ai/civicqa/internal/model"
)

const embedDim = 32

type fakeEmbedder struct {
	unavailable bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if f.unavailable {
		return nil, ai.ErrUnavailable
	}
	vec := make([]float32, embedDim)
	for _, token := range index.Tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[h.Sum32()%embedDim]++
	}
	return vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(ctx, text, taskType)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake-embed" }

func buildSnapshot(t *testing.T, docs []model.Document) *index.Snapshot {
	t.Helper()
	builder := index.NewBuilder(ingest.NewChunker(1000, 200), &fakeEmbedder{}, 8)
	snap, _, err := builder.Build(context.Background(), docs)
	require.NoError(t, err)
	return snap
}

func civicDocs() []model.Document {
	return []model.Document{
		{ID: "d1", Title: "Garbage schedule", Source: "garbage.txt", Audience: model.AudiencePublic,
			RawText: "Garbage collection is every Monday in Zone A. Bins go out before 7am."},
		{ID: "d2", Title: "Streetlights", Source: "streetlights.txt", Audience: model.AudiencePublic,
			RawText: "Report streetlight outages to the public works department hotline."},
		{ID: "d3", Title: "Escalation SOP", Source: "staff/sop.txt", Audience: model.AudienceStaff,
			RawText: "Staff escalation procedure for garbage collection complaints."},
	}
}

func query(text string, topK int, role model.Role) model.Query {
	return model.Query{Text: text, TopK: topK, Role: role}
}

func TestRetrieveOrdersByFusedScore(t *testing.T) {
	snap := buildSnapshot(t, civicDocs())
	retriever := NewRetriever(&fakeEmbedder{}, RetrieverConfig{Alpha: 0.7, CandidateMultiplier: 3})

	results, err := retriever.Retrieve(context.Background(), query("garbage collection monday", 5, model.RoleResident), snap)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "d1", results[0].DocID)
	for i := 1; i < len(results); i++ {
		require.GreaterOrEqual(t, results[i-1].FusedScore, results[i].FusedScore)
	}
	for _, res := range results {
		require.GreaterOrEqual(t, res.FusedScore, 0.0)
		require.LessOrEqual(t, res.FusedScore, 1.0)
	}
}

func TestRetrieveFiltersByRole(t *testing.T) {
	snap := buildSnapshot(t, civicDocs())
	retriever := NewRetriever(&fakeEmbedder{}, RetrieverConfig{Alpha: 0.7})

	resident, err := retriever.Retrieve(context.Background(), query("escalation procedure", 5, model.RoleResident), snap)
	require.NoError(t, err)
	for _, res := range resident {
		require.NotEqual(t, "d3", res.DocID)
	}

	staff, err := retriever.Retrieve(context.Background(), query("escalation procedure", 5, model.RoleStaff), snap)
	require.NoError(t, err)
	found := false
	for _, res := range staff {
		if res.DocID == "d3" {
			found = true
		}
	}
	require.True(t, found)
}

func TestRetrieveAlphaWeighting(t *testing.T) {
	snap := buildSnapshot(t, civicDocs())
	q := query("garbage collection", 5, model.RoleStaff)

	denseOnly := NewRetriever(&fakeEmbedder{}, RetrieverConfig{Alpha: 1})
	results, err := denseOnly.Retrieve(context.Background(), q, snap)
	require.NoError(t, err)
	for _, res := range results {
		require.InDelta(t, res.DenseScore, res.FusedScore, 1e-9)
	}

	sparseOnly := NewRetriever(&fakeEmbedder{}, RetrieverConfig{Alpha: 0})
	results, err = sparseOnly.Retrieve(context.Background(), q, snap)
	require.NoError(t, err)
	for _, res := range results {
		require.InDelta(t, res.SparseScore, res.FusedScore, 1e-9)
	}
}

func TestRetrieveTieBreakDenseThenPosition(t *testing.T) {
	text := "water bill payment"
	sparse := index.SparseVector(text)
	docFreq := map[string]int{}
	for term := range sparse {
		docFreq[term] = 3
	}
	queryVec, err := (&fakeEmbedder{}).Embed(context.Background(), text, "RETRIEVAL_QUERY")
	require.NoError(t, err)

	// identical sparse signatures make the fused scores tie under alpha=0
	snap := &index.Snapshot{
		Entries: []index.Entry{
			{ChunkID: "b#0000", DocID: "b", Text: text, Position: 0,
				Dense: make([]float32, embedDim), Sparse: sparse, Audience: model.AudiencePublic},
			{ChunkID: "a#0001", DocID: "a", Text: text, Position: 1,
				Dense: queryVec, Sparse: sparse, Audience: model.AudiencePublic},
			{ChunkID: "c#0005", DocID: "c", Text: text, Position: 5,
				Dense: make([]float32, embedDim), Sparse: sparse, Audience: model.AudiencePublic},
		},
		DocFreq: docFreq,
	}

	retriever := NewRetriever(&fakeEmbedder{}, RetrieverConfig{Alpha: 0})
	results, err := retriever.Retrieve(context.Background(), query(text, 5, model.RoleResident), snap)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.InDelta(t, results[0].FusedScore, results[1].FusedScore, 1e-12)
	require.InDelta(t, results[1].FusedScore, results[2].FusedScore, 1e-12)
	// the higher dense score wins the tie despite the later position
	require.Equal(t, "a#0001", results[0].ChunkID)
	// equal dense scores fall through to ascending position
	require.Equal(t, "b#0000", results[1].ChunkID)
	require.Equal(t, "c#0005", results[2].ChunkID)
}

func TestRetrieveSparseOnlyWhenEmbedderUnavailable(t *testing.T) {
	snap := buildSnapshot(t, civicDocs())
	retriever := NewRetriever(&fakeEmbedder{unavailable: true}, RetrieverConfig{Alpha: 0.7})

	results, err := retriever.Retrieve(context.Background(), query("garbage collection monday", 5, model.RoleResident), snap)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "d1", results[0].DocID)
	for _, res := range results {
		require.Zero(t, res.DenseScore)
		require.Positive(t, res.SparseScore)
	}
}

func TestRetrieveMinScoreFilter(t *testing.T) {
	snap := buildSnapshot(t, civicDocs())
	retriever := NewRetriever(&fakeEmbedder{}, RetrieverConfig{Alpha: 0.7, MinScore: 0.99})

	results, err := retriever.Retrieve(context.Background(), query("completely unrelated topic", 5, model.RoleResident), snap)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestRetrieveCandidateLimit(t *testing.T) {
	var docs []model.Document
	for i := 0; i < 10; i++ {
		docs = append(docs, model.Document{
			ID: "d" + strings.Repeat("x", i+1), Title: "Permits", Source: "permits.txt",
			Audience: model.AudiencePublic,
			RawText:  "Building permit applications are reviewed within ten working days.",
		})
	}
	snap := buildSnapshot(t, docs)
	retriever := NewRetriever(&fakeEmbedder{}, RetrieverConfig{Alpha: 0.7, CandidateMultiplier: 2})

	results, err := retriever.Retrieve(context.Background(), query("building permit", 3, model.RoleResident), snap)
	require.NoError(t, err)
	require.LessOrEqual(t, len(results), 6)
}

func TestRetrieveEmptySnapshot(t *testing.T) {
	retriever := NewRetriever(&fakeEmbedder{}, RetrieverConfig{Alpha: 0.7})
	results, err := retriever.Retrieve(context.Background(), query("anything", 5, model.RoleResident), &index.Snapshot{})
	require.NoError(t, err)
	require.Empty(t, results)
}
