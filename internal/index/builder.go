package index

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/huduma-ai/civicqa/internal/ai"
	"github.com/huduma-ai/civicqa/internal/ingest"
	"github.com/huduma-ai/civicqa/internal/model"
)

const taskTypeDocument = "RETRIEVAL_DOCUMENT"

// Builder assembles a fresh snapshot from a document set. Chunks are
// embedded in batches of batchSize per provider request. A chunk whose
// embedding fails is skipped and counted, never fatal on its own; the
// build only fails when no chunk at all could be embedded.
type Builder struct {
	chunker   *ingest.Chunker
	embedder  ai.IEmbedder
	batchSize int
}

func NewBuilder(chunker *ingest.Chunker, embedder ai.IEmbedder, batchSize int) *Builder {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Builder{chunker: chunker, embedder: embedder, batchSize: batchSize}
}

type pendingChunk struct {
	chunk model.Chunk
	doc   model.Document
}

func (b *Builder) Build(ctx context.Context, docs []model.Document) (*Snapshot, model.BuildStats, error) {
	logger := logutil.GetLogger(ctx)
	stats := model.BuildStats{}

	var all []pendingChunk
	for _, doc := range docs {
		for _, chunk := range b.chunker.Chunk(doc) {
			all = append(all, pendingChunk{chunk: chunk, doc: doc})
		}
	}

	snap := &Snapshot{
		Version: time.Now().UnixNano(),
		BuiltAt: time.Now(),
		DocFreq: map[string]int{},
	}
	indexedDocs := map[string]struct{}{}
	for batchStart := 0; batchStart < len(all); batchStart += b.batchSize {
		batchEnd := batchStart + b.batchSize
		if batchEnd > len(all) {
			batchEnd = len(all)
		}
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		batch := all[batchStart:batchEnd]
		vectors, err := b.embedBatch(ctx, batch, &stats)
		if err != nil {
			return nil, stats, err
		}
		for i, p := range batch {
			if vectors[i] == nil {
				continue
			}
			sparse := SparseVector(p.chunk.Text)
			for term := range sparse {
				snap.DocFreq[term]++
			}
			snap.Entries = append(snap.Entries, Entry{
				ChunkID:  p.chunk.ID,
				DocID:    p.doc.ID,
				Title:    p.doc.Title,
				Source:   p.doc.Source,
				Audience: p.doc.Audience,
				Position: p.chunk.Position,
				Text:     p.chunk.Text,
				Dense:    normalize(vectors[i]),
				Sparse:   sparse,
			})
			indexedDocs[p.doc.ID] = struct{}{}
		}
	}

	stats.IndexedDocs = len(indexedDocs)
	stats.IndexedChunks = len(snap.Entries)
	snap.DocCount = len(indexedDocs)

	if len(all) > 0 && len(snap.Entries) == 0 {
		return nil, stats, fmt.Errorf("index build produced no entries (%d chunks failed)", stats.SkippedChunks)
	}
	logger.Info("index build finished",
		zap.Int("indexed_docs", stats.IndexedDocs),
		zap.Int("indexed_chunks", stats.IndexedChunks),
		zap.Int("skipped_chunks", stats.SkippedChunks),
	)
	return snap, stats, nil
}

// embedBatch embeds one batch in a single request. When the batch call
// fails it retries chunk by chunk, so one bad chunk is skipped and
// counted instead of sinking its whole batch. A nil vector marks a
// skipped chunk.
func (b *Builder) embedBatch(ctx context.Context, batch []pendingChunk, stats *model.BuildStats) ([][]float32, error) {
	logger := logutil.GetLogger(ctx)
	texts := make([]string, len(batch))
	for i, p := range batch {
		texts[i] = p.chunk.Text
	}
	vectors, err := b.embedder.EmbedBatch(ctx, texts, taskTypeDocument)
	if err == nil && len(vectors) == len(batch) {
		return vectors, nil
	}
	if err != nil {
		logger.Warn("batch embedding failed, retrying per chunk",
			zap.Int("batch_size", len(batch)), zap.Error(err))
	}
	vectors = make([][]float32, len(batch))
	for i, p := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dense, err := b.embedder.Embed(ctx, p.chunk.Text, taskTypeDocument)
		if err != nil {
			stats.SkippedChunks++
			logger.Warn("chunk embedding failed, skipping",
				zap.String("chunk_id", p.chunk.ID), zap.Error(err))
			continue
		}
		vectors[i] = dense
	}
	return vectors, nil
}

func normalize(vec []float32) []float32 {
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
