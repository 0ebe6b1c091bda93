package model

import "time"

type Audience string

const (
	AudiencePublic Audience = "public"
	AudienceStaff  Audience = "staff"
)

type Role string

const (
	RoleResident Role = "resident"
	RoleStaff    Role = "staff"
)

// Visible reports whether a document audience is searchable by a role.
func (r Role) Visible(a Audience) bool {
	if r == RoleStaff {
		return true
	}
	return a == AudiencePublic
}

// Document is an immutable source unit produced by ingestion.
type Document struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Source     string    `json:"source"`
	Audience   Audience  `json:"audience"`
	RawText    string    `json:"-"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Chunk is a contiguous slice of a document's text. Chunks of one
// document cover its full text; adjacent chunks share at most the
// configured overlap window.
type Chunk struct {
	ID       string `json:"id"`
	DocID    string `json:"doc_id"`
	Text     string `json:"text"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Position int    `json:"position"`
	Tokens   int    `json:"tokens"`
}

type Query struct {
	Text        string
	TopK        int
	Role        Role
	MaxLength   int
	Temperature float64
}

type RetrievalResult struct {
	ChunkID     string  `json:"chunk_id"`
	DocID       string  `json:"doc_id"`
	Title       string  `json:"title"`
	Source      string  `json:"source"`
	Text        string  `json:"text"`
	Position    int     `json:"position"`
	DenseScore  float64 `json:"dense_score"`
	SparseScore float64 `json:"sparse_score"`
	FusedScore  float64 `json:"fused_score"`
	RerankScore float64 `json:"rerank_score"`
	Reranked    bool    `json:"reranked"`
}

type Citation struct {
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
	SourceLink string `json:"source_link"`
	Rank       int    `json:"rank"`
}

type Answer struct {
	Reply      string     `json:"reply"`
	Citations  []Citation `json:"citations"`
	Confidence float64    `json:"confidence"`
	Grounded   bool       `json:"grounded"`
}

// BuildStats summarizes one reindex pass.
type BuildStats struct {
	IndexedDocs   int `json:"indexed_docs"`
	IndexedChunks int `json:"indexed_chunks"`
	SkippedChunks int `json:"skipped_chunks"`
}
