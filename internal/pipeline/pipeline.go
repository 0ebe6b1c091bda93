package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/huduma-ai/civicqa/internal/answer"
	"github.com/huduma-ai/civicqa/internal/index"
	"github.com/huduma-ai/civicqa/internal/ingest"
	"github.com/huduma-ai/civicqa/internal/model"
	"github.com/huduma-ai/civicqa/internal/pkg/errs"
	"github.com/huduma-ai/civicqa/internal/search"
)

const (
	defaultTopK        = 5
	maxTopK            = 20
	defaultMaxLength   = 500
	maxMaxLength       = 4000
	defaultTemperature = 0.7
	maxTemperature     = 2.0
)

// Pipeline sequences ingestion, indexing, retrieval, reranking and
// answer synthesis, and owns the snapshot lifecycle. Reindexing is the
// only writer and is serialized by a build lock; queries read whatever
// snapshot is current when they start.
type Pipeline struct {
	docsRoot  string
	loader    *ingest.Loader
	builder   *index.Builder
	retriever *search.Retriever
	reranker  *search.Reranker
	generator *answer.Generator
	holder    *index.Holder
	store     index.Store
	building  atomic.Bool
}

func New(
	docsRoot string,
	loader *ingest.Loader,
	builder *index.Builder,
	retriever *search.Retriever,
	reranker *search.Reranker,
	generator *answer.Generator,
	holder *index.Holder,
	store index.Store,
) *Pipeline {
	return &Pipeline{
		docsRoot:  docsRoot,
		loader:    loader,
		builder:   builder,
		retriever: retriever,
		reranker:  reranker,
		generator: generator,
		holder:    holder,
		store:     store,
	}
}

// Restore publishes a previously persisted snapshot, if one exists.
func (p *Pipeline) Restore(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	snap, err := p.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load persisted snapshot: %w", err)
	}
	if snap == nil {
		logutil.GetLogger(ctx).Info("no persisted snapshot, queries need a reindex first")
		return nil
	}
	p.holder.Publish(snap)
	logutil.GetLogger(ctx).Info("snapshot restored",
		zap.Int64("version", snap.Version),
		zap.Int("documents", snap.DocCount),
		zap.Int("chunks", snap.ChunkCount()),
	)
	return nil
}

// Reindex rebuilds the whole index and atomically replaces the current
// snapshot. A second call while one is running is rejected, not queued.
func (p *Pipeline) Reindex(ctx context.Context) (model.BuildStats, error) {
	if !p.building.CompareAndSwap(false, true) {
		return model.BuildStats{}, errs.ErrBuildInProgress
	}
	defer p.building.Store(false)

	logger := logutil.GetLogger(ctx).With(zap.String("docs_root", p.docsRoot))
	logger.Info("reindex started")

	report, err := p.loader.Load(ctx, p.docsRoot)
	if err != nil {
		return model.BuildStats{}, err
	}
	snap, stats, err := p.builder.Build(ctx, report.Docs)
	if err != nil {
		// prior snapshot stays current on a total failure
		logger.Error("reindex failed", zap.Error(err))
		return stats, err
	}
	p.holder.Publish(snap)
	logger.Info("snapshot published",
		zap.Int64("version", snap.Version),
		zap.Int("indexed_docs", stats.IndexedDocs),
		zap.Int("indexed_chunks", stats.IndexedChunks),
		zap.Int("skipped_chunks", stats.SkippedChunks),
	)
	if p.store != nil {
		if err := p.store.Save(ctx, snap); err != nil {
			// the published snapshot still serves queries; only the
			// restart path is degraded
			logger.Warn("snapshot persistence failed", zap.Error(err))
		}
	}
	return stats, nil
}

// Building reports whether a reindex is currently in flight.
func (p *Pipeline) Building() bool {
	return p.building.Load()
}

type SearchRequest struct {
	Query string
	TopK  int
	Role  model.Role
}

type SearchItem struct {
	DocID   string  `json:"doc_id"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Search runs retrieval and reranking without answer generation.
func (p *Pipeline) Search(ctx context.Context, req SearchRequest) ([]SearchItem, error) {
	query, err := normalizeQuery(req.Query, req.TopK, req.Role)
	if err != nil {
		return nil, err
	}
	snap, ok := p.holder.Current()
	if !ok {
		return nil, errs.ErrIndexNotBuilt
	}
	results, err := p.rankedResults(ctx, query, snap)
	if err != nil {
		return nil, err
	}
	items := make([]SearchItem, 0, len(results))
	for _, res := range results {
		items = append(items, SearchItem{
			DocID:   res.DocID,
			Title:   res.Title,
			Snippet: snippetOf(res.Text),
			Score:   res.RerankScore,
		})
	}
	return items, nil
}

type AskRequest struct {
	Question    string
	TopK        int
	MaxLength   int
	Temperature float64
	Role        model.Role
}

// Ask runs the full answer flow. A missing snapshot is an explicit
// error; an empty one flows into the ungrounded fallback path.
func (p *Pipeline) Ask(ctx context.Context, req AskRequest) (model.Answer, error) {
	query, err := normalizeQuery(req.Question, req.TopK, req.Role)
	if err != nil {
		return model.Answer{}, err
	}
	query.MaxLength, query.Temperature, err = normalizeGenParams(req.MaxLength, req.Temperature)
	if err != nil {
		return model.Answer{}, err
	}
	snap, ok := p.holder.Current()
	if !ok {
		return model.Answer{}, errs.ErrIndexNotBuilt
	}
	results, err := p.rankedResults(ctx, query, snap)
	if err != nil {
		return model.Answer{}, err
	}
	return p.generator.Generate(ctx, query, results), nil
}

func (p *Pipeline) rankedResults(ctx context.Context, query model.Query, snap *index.Snapshot) ([]model.RetrievalResult, error) {
	candidates, err := p.retriever.Retrieve(ctx, query, snap)
	if err != nil {
		return nil, err
	}
	return p.reranker.Rerank(ctx, query, candidates, query.TopK), nil
}

type Health struct {
	IndexReady bool  `json:"index_ready"`
	Building   bool  `json:"building"`
	Documents  int   `json:"documents"`
	Chunks     int   `json:"chunks"`
	Version    int64 `json:"version"`
}

func (p *Pipeline) Health() Health {
	health := Health{Building: p.building.Load()}
	if snap, ok := p.holder.Current(); ok {
		health.IndexReady = !snap.Empty()
		health.Documents = snap.DocCount
		health.Chunks = snap.ChunkCount()
		health.Version = snap.Version
	}
	return health
}

type DocumentInfo struct {
	DocID  string `json:"doc_id"`
	Title  string `json:"title"`
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}

// Documents lists indexed documents in first-indexed order.
func (p *Pipeline) Documents(role model.Role, offset, limit int) ([]DocumentInfo, int, error) {
	if offset < 0 || limit < 0 {
		return nil, 0, errs.ErrInvalid
	}
	if limit == 0 {
		limit = 10
	}
	snap, ok := p.holder.Current()
	if !ok {
		return nil, 0, errs.ErrIndexNotBuilt
	}
	var docs []DocumentInfo
	seen := map[string]int{}
	for _, entry := range snap.Entries {
		if !role.Visible(entry.Audience) {
			continue
		}
		if i, ok := seen[entry.DocID]; ok {
			docs[i].Chunks++
			continue
		}
		seen[entry.DocID] = len(docs)
		docs = append(docs, DocumentInfo{
			DocID:  entry.DocID,
			Title:  entry.Title,
			Source: entry.Source,
			Chunks: 1,
		})
	}
	total := len(docs)
	if offset >= total {
		return []DocumentInfo{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return docs[offset:end], total, nil
}

func normalizeQuery(text string, topK int, role model.Role) (model.Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Query{}, errs.ErrInvalid
	}
	if topK == 0 {
		topK = defaultTopK
	}
	if topK < 1 || topK > maxTopK {
		return model.Query{}, errs.ErrInvalid
	}
	if role == "" {
		role = model.RoleResident
	}
	if role != model.RoleResident && role != model.RoleStaff {
		return model.Query{}, errs.ErrInvalid
	}
	return model.Query{Text: text, TopK: topK, Role: role}, nil
}

func normalizeGenParams(maxLength int, temperature float64) (int, float64, error) {
	if maxLength == 0 {
		maxLength = defaultMaxLength
	}
	if maxLength < 1 || maxLength > maxMaxLength {
		return 0, 0, errs.ErrInvalid
	}
	if temperature == 0 {
		temperature = defaultTemperature
	}
	if temperature < 0 || temperature > maxTemperature {
		return 0, 0, errs.ErrInvalid
	}
	return maxLength, temperature, nil
}

func snippetOf(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= 200 {
		return string(runes)
	}
	return string(runes[:200]) + "..."
}
