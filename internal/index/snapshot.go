package index

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/huduma-ai/civicqa/internal/model"
)

// Entry is one indexed chunk: a unit-normalized dense vector, a sparse
// term-frequency signature and enough metadata to cite the source.
type Entry struct {
	ChunkID  string             `json:"chunk_id"`
	DocID    string             `json:"doc_id"`
	Title    string             `json:"title"`
	Source   string             `json:"source"`
	Audience model.Audience     `json:"audience"`
	Position int                `json:"position"`
	Text     string             `json:"text"`
	Dense    []float32          `json:"dense"`
	Sparse   map[string]float64 `json:"sparse"`
}

// Snapshot is an immutable build of the whole index. It is published by
// atomic pointer swap and never mutated afterwards, so readers share it
// without locks.
type Snapshot struct {
	Version  int64          `json:"version"`
	BuiltAt  time.Time      `json:"built_at"`
	DocCount int            `json:"doc_count"`
	Entries  []Entry        `json:"entries"`
	DocFreq  map[string]int `json:"doc_freq"`
}

func (s *Snapshot) ChunkCount() int {
	if s == nil {
		return 0
	}
	return len(s.Entries)
}

func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Entries) == 0
}

// IDF is the inverse chunk frequency of a term within this snapshot.
func (s *Snapshot) IDF(term string) float64 {
	if s == nil || len(s.Entries) == 0 {
		return 0
	}
	df := s.DocFreq[term]
	return math.Log(1 + float64(len(s.Entries))/float64(1+df))
}

// Holder owns the "current snapshot" pointer. Queries capture a
// reference once at request start; a reindex publishing mid-request
// never affects them.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

func NewHolder() *Holder {
	return &Holder{}
}

func (h *Holder) Current() (*Snapshot, bool) {
	snap := h.current.Load()
	return snap, snap != nil
}

func (h *Holder) Publish(snap *Snapshot) {
	h.current.Store(snap)
}
