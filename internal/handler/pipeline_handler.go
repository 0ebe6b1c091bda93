package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/huduma-ai/civicqa/internal/pipeline"
	"github.com/huduma-ai/civicqa/internal/pkg/errs"
	"github.com/huduma-ai/civicqa/internal/pkg/response"
)

type PipelineHandler struct {
	pipe *pipeline.Pipeline
}

func NewPipelineHandler(pipe *pipeline.Pipeline) *PipelineHandler {
	return &PipelineHandler{pipe: pipe}
}

func (h *PipelineHandler) Reindex(c *gin.Context) {
	stats, err := h.pipe.Reindex(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"indexed_docs":   stats.IndexedDocs,
		"indexed_chunks": stats.IndexedChunks,
		"skipped_chunks": stats.SkippedChunks,
	})
}

func (h *PipelineHandler) Search(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		handleError(c, errs.ErrInvalid)
		return
	}
	topK := 0
	if raw := c.Query("top_k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			handleError(c, errs.ErrInvalid)
			return
		}
		topK = parsed
	}
	items, err := h.pipe.Search(c.Request.Context(), pipeline.SearchRequest{
		Query: query,
		TopK:  topK,
		Role:  getRole(c),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"items": items, "total": len(items)})
}

type askRequest struct {
	Question    string  `json:"question"`
	TopK        int     `json:"top_k"`
	MaxLength   int     `json:"max_length"`
	Temperature float64 `json:"temperature"`
}

func (h *PipelineHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, errs.ErrInvalid)
		return
	}
	ans, err := h.pipe.Ask(c.Request.Context(), pipeline.AskRequest{
		Question:    req.Question,
		TopK:        req.TopK,
		MaxLength:   req.MaxLength,
		Temperature: req.Temperature,
		Role:        getRole(c),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"reply":      ans.Reply,
		"citations":  ans.Citations,
		"confidence": ans.Confidence,
		"grounded":   ans.Grounded,
	})
}

func (h *PipelineHandler) Documents(c *gin.Context) {
	offset, limit := 0, 0
	if raw := c.Query("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			handleError(c, errs.ErrInvalid)
			return
		}
		offset = parsed
	}
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			handleError(c, errs.ErrInvalid)
			return
		}
		limit = parsed
	}
	docs, total, err := h.pipe.Documents(getRole(c), offset, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"documents": docs, "total": total})
}

func (h *PipelineHandler) Health(c *gin.Context) {
	health := h.pipe.Health()
	status := "degraded"
	if health.IndexReady {
		status = "ok"
	}
	response.Success(c, gin.H{
		"status":      status,
		"index_ready": health.IndexReady,
		"building":    health.Building,
		"documents":   health.Documents,
		"chunks":      health.Chunks,
		"version":     health.Version,
	})
}
