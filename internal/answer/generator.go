package answer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/huduma-ai/civicqa/internal/ai"
	"github.com/huduma-ai/civicqa/internal/model"
)

const (
	snippetChars = 200

	cannotAnswerReply = "I could not find an answer to your question in the available documents, " +
		"and no general answering service is configured. Please rephrase your question or contact your county office."
)

type Config struct {
	GroundingThreshold float64
	FallbackCeiling    float64
	MarginWeight       float64
	MaxCitations       int
	Timeout            time.Duration
	CacheSize          int
	CacheTTL           time.Duration
}

// Generator synthesizes the final answer. When the top reranked score
// clears the grounding threshold it answers from the shortlist with
// citations; otherwise it falls back to an ungrounded general answer,
// and to a deterministic refusal when no generator is reachable.
type Generator struct {
	gen   ai.IGenerator
	cfg   Config
	cache *expirable.LRU[string, model.Answer]
}

func NewGenerator(gen ai.IGenerator, cfg Config) *Generator {
	if cfg.MaxCitations <= 0 {
		cfg.MaxCitations = 3
	}
	var cache *expirable.LRU[string, model.Answer]
	if cfg.CacheSize > 0 && cfg.CacheTTL > 0 {
		cache = expirable.NewLRU[string, model.Answer](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return &Generator{gen: gen, cfg: cfg, cache: cache}
}

func (g *Generator) Generate(ctx context.Context, query model.Query, results []model.RetrievalResult) model.Answer {
	logger := logutil.GetLogger(ctx).With(zap.String("question", query.Text))

	key := g.cacheKeyFor(query, results)
	if g.cache != nil {
		if cached, ok := g.cache.Get(key); ok {
			logger.Debug("answer cache hit")
			return cached
		}
	}

	var ans model.Answer
	if len(results) > 0 && results[0].RerankScore >= g.cfg.GroundingThreshold {
		ans = g.grounded(ctx, query, results)
	} else {
		ans = g.fallback(ctx, query)
	}
	if g.cache != nil {
		g.cache.Add(key, ans)
	}
	return ans
}

func (g *Generator) grounded(ctx context.Context, query model.Query, results []model.RetrievalResult) model.Answer {
	logger := logutil.GetLogger(ctx)
	reply, err := g.generateText(ctx, groundedPrompt(query.Text, results))
	if err != nil {
		// the grounding itself is still sound, answer extractively
		logger.Warn("grounded generation failed, answering extractively", zap.Error(err))
		reply = extractiveReply(results[0])
	}
	return model.Answer{
		Reply:      capLength(reply, query.MaxLength),
		Citations:  g.citations(results),
		Confidence: g.confidence(results),
		Grounded:   true,
	}
}

func (g *Generator) fallback(ctx context.Context, query model.Query) model.Answer {
	logger := logutil.GetLogger(ctx)
	reply, err := g.generateText(ctx, fallbackPrompt(query.Text))
	if err != nil {
		logger.Warn("fallback generation unavailable", zap.Error(err))
		return model.Answer{
			Reply:      cannotAnswerReply,
			Citations:  []model.Citation{},
			Confidence: 0,
			Grounded:   false,
		}
	}
	return model.Answer{
		Reply:      capLength(reply, query.MaxLength),
		Citations:  []model.Citation{},
		Confidence: g.cfg.FallbackCeiling,
		Grounded:   false,
	}
}

func (g *Generator) generateText(ctx context.Context, prompt string) (string, error) {
	if g.gen == nil {
		return "", ai.ErrUnavailable
	}
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}
	resp, err := g.gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty generation response")
	}
	return text, nil
}

// confidence grows with the top score and with its margin over the
// runner-up, clipped to [0,1].
func (g *Generator) confidence(results []model.RetrievalResult) float64 {
	top := results[0].RerankScore
	margin := top
	if len(results) > 1 {
		margin = top - results[1].RerankScore
	}
	return clamp01(top + g.cfg.MarginWeight*margin)
}

// citations emits one citation per distinct source, descending rank.
// Every citation traces back to a shortlisted chunk.
func (g *Generator) citations(results []model.RetrievalResult) []model.Citation {
	citations := make([]model.Citation, 0, g.cfg.MaxCitations)
	seen := map[string]struct{}{}
	for _, res := range results {
		if res.Source == "" {
			continue
		}
		if _, dup := seen[res.Source]; dup {
			continue
		}
		seen[res.Source] = struct{}{}
		citations = append(citations, model.Citation{
			Title:      res.Title,
			Snippet:    snippet(res.Text),
			SourceLink: res.Source,
			Rank:       len(citations) + 1,
		})
		if len(citations) >= g.cfg.MaxCitations {
			break
		}
	}
	return citations
}

// cacheKeyFor covers everything that shapes the reply: role, question,
// the shortlisted chunks and the per-request generation parameters. Two
// requests differing only in max_length must not share a cached reply.
func (g *Generator) cacheKeyFor(query model.Query, results []model.RetrievalResult) string {
	var sb strings.Builder
	sb.WriteString(string(query.Role))
	sb.WriteByte('\n')
	sb.WriteString(query.Text)
	fmt.Fprintf(&sb, "\n%d\n%g", query.MaxLength, query.Temperature)
	for _, res := range results {
		sb.WriteByte('\n')
		sb.WriteString(res.ChunkID)
	}
	hash := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(hash[:])
}

func groundedPrompt(question string, results []model.RetrievalResult) string {
	var sb strings.Builder
	sb.WriteString("You are a helpful assistant for local government services.\n")
	sb.WriteString("Answer the question using only the context documents below.\n")
	sb.WriteString("If the context does not contain the answer, say you don't know.\n")
	sb.WriteString("Cite documents by their number, e.g. [1].\n\nContext:\n")
	for i, res := range results {
		fmt.Fprintf(&sb, "\n--- Document %d: %s ---\n%s\n", i+1, res.Title, res.Text)
	}
	fmt.Fprintf(&sb, "\nQuestion: %s\nAnswer:", question)
	return sb.String()
}

func fallbackPrompt(question string) string {
	return fmt.Sprintf(`You are a helpful assistant for local government services.
No supporting documents were found for this question, so answer from
general knowledge, note that the answer is not backed by official
documents, and keep it short.

Question: %s
Answer:`, question)
}

func extractiveReply(top model.RetrievalResult) string {
	text := top.Text
	if len([]rune(text)) > 500 {
		text = string([]rune(text)[:500]) + "..."
	}
	return fmt.Sprintf("Based on %q, here is what I found: %s", top.Title, text)
}

// capLength bounds the reply at the requested maximum, on a rune
// boundary.
func capLength(reply string, maxLength int) string {
	if maxLength <= 0 {
		return reply
	}
	runes := []rune(reply)
	if len(runes) <= maxLength {
		return reply
	}
	return strings.TrimSpace(string(runes[:maxLength])) + "..."
}

func snippet(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= snippetChars {
		return string(runes)
	}
	return string(runes[:snippetChars]) + "..."
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
