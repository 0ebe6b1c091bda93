package ingest

import (
	"fmt"
	"strings"

	"github.com/huduma-ai/civicqa/internal/model"
)

// Chunker splits documents into overlapping passages. Boundaries prefer
// paragraph breaks, then sentence ends, then whitespace; a fixed-size cut
// is the last resort. Every rune of the document lands in at least one
// chunk, and adjacent chunks share at most the overlap window.
type Chunker struct {
	maxChars     int
	overlapChars int
}

func NewChunker(maxChars, overlapChars int) *Chunker {
	if maxChars <= 0 {
		maxChars = 1000
	}
	if overlapChars < 0 || overlapChars >= maxChars {
		overlapChars = maxChars / 5
	}
	return &Chunker{maxChars: maxChars, overlapChars: overlapChars}
}

func (c *Chunker) Chunk(doc model.Document) []model.Chunk {
	runes := []rune(doc.RawText)
	if len(runes) == 0 {
		return nil
	}

	var chunks []model.Chunk
	start := 0
	position := 0
	for start < len(runes) {
		end := start + c.maxChars
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakPoint(runes, start, end)
		}
		chunkText := string(runes[start:end])
		chunks = append(chunks, model.Chunk{
			ID:       ChunkID(doc.ID, position),
			DocID:    doc.ID,
			Text:     chunkText,
			Start:    start,
			End:      end,
			Position: position,
			Tokens:   estimateTokens(chunkText),
		})
		if end == len(runes) {
			break
		}
		next := end - c.overlapChars
		if next <= start {
			next = end
		}
		start = next
		position++
	}
	return chunks
}

func ChunkID(docID string, position int) string {
	return fmt.Sprintf("%s#%04d", docID, position)
}

// breakPoint searches backwards from limit for a natural boundary, but
// never gives back more than half the window.
func breakPoint(runes []rune, start, limit int) int {
	floor := start + (limit-start)/2
	if p := lastParagraphBreak(runes, floor, limit); p > 0 {
		return p
	}
	if p := lastSentenceEnd(runes, floor, limit); p > 0 {
		return p
	}
	for i := limit - 1; i > floor; i-- {
		if runes[i] == ' ' || runes[i] == '\n' || runes[i] == '\t' {
			return i + 1
		}
	}
	return limit
}

func lastParagraphBreak(runes []rune, floor, limit int) int {
	for i := limit - 1; i > floor; i-- {
		if runes[i] != '\n' {
			continue
		}
		j := i - 1
		for j > floor && (runes[j] == ' ' || runes[j] == '\t') {
			j--
		}
		if j > floor && runes[j] == '\n' {
			return i + 1
		}
	}
	return 0
}

func lastSentenceEnd(runes []rune, floor, limit int) int {
	for i := limit - 1; i > floor; i-- {
		switch runes[i] {
		case '.', '!', '?', '。', '！', '？':
			if i+1 < limit && (runes[i+1] == ' ' || runes[i+1] == '\n') {
				return i + 2
			}
			if i == limit-1 {
				return i + 1
			}
		}
	}
	return 0
}

// estimateTokens counts words for latin text and runes for CJK, the same
// rough budget heuristic used when sizing chunks for the embedder.
func estimateTokens(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}
