package handler

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/huduma-ai/civicqa/internal/answer"
	"github.com/huduma-ai/civicqa/internal/index"
	"github.com/huduma-ai/civicqa/internal/ingest"
	"github.com/huduma-ai/civicqa/internal/pipeline"
	"github.com/huduma-ai/civicqa/internal/search"
)

type fakeEmbedder struct{}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	vec := make([]float32, 32)
	for _, token := range index.Tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[h.Sum32()%32]++
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

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	docs := map[string]string{
		"garbage.txt":      "Garbage collection is every Monday in Zone A. Bins go out before 7am.",
		"streetlights.txt": "Report streetlight outages to the public works department hotline.",
		"staff/sop.txt":    "Staff escalation procedure for garbage collection complaints.",
	}
	for rel, content := range docs {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	embedder := &fakeEmbedder{}
	pipe := pipeline.New(
		root,
		ingest.NewLoader(),
		index.NewBuilder(ingest.NewChunker(1000, 200), embedder, 8),
		search.NewRetriever(embedder, search.RetrieverConfig{Alpha: 0.7, CandidateMultiplier: 3}),
		search.NewReranker(search.RerankerConfig{Enabled: true, Blend: 0.5}),
		answer.NewGenerator(nil, answer.Config{
			GroundingThreshold: 0.3,
			FallbackCeiling:    0.4,
			MarginWeight:       0.5,
			MaxCitations:       3,
		}),
		index.NewHolder(),
		nil,
	)

	engine := gin.New()
	RegisterRoutes(engine.Group("/api/v1"), RouterDeps{Pipeline: NewPipelineHandler(pipe)})
	return engine
}

func doRequest(engine *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthDegradedBeforeReindex(t *testing.T) {
	engine := newTestServer(t)
	rec := doRequest(engine, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	require.Equal(t, "degraded", data["status"])
	require.Equal(t, false, data["index_ready"])
}

func TestSearchBeforeReindexConflict(t *testing.T) {
	engine := newTestServer(t)
	rec := doRequest(engine, http.MethodGet, "/api/v1/search?query=garbage", "", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	errBody := decodeBody(t, rec)["error"].(map[string]interface{})
	require.Equal(t, "index_not_built", errBody["code"])
}

func TestReindexThenSearch(t *testing.T) {
	engine := newTestServer(t)

	rec := doRequest(engine, http.MethodPost, "/api/v1/reindex", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	require.EqualValues(t, 3, data["indexed_docs"])

	rec = doRequest(engine, http.MethodGet, "/api/v1/search?query=garbage+collection+monday&top_k=3", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data = decodeBody(t, rec)["data"].(map[string]interface{})
	items := data["items"].([]interface{})
	require.NotEmpty(t, items)
	top := items[0].(map[string]interface{})
	require.Contains(t, top["snippet"], "Monday")

	rec = doRequest(engine, http.MethodGet, "/api/v1/health", "", nil)
	data = decodeBody(t, rec)["data"].(map[string]interface{})
	require.Equal(t, "ok", data["status"])
}

func TestSearchMissingQueryParam(t *testing.T) {
	engine := newTestServer(t)
	rec := doRequest(engine, http.MethodGet, "/api/v1/search", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchInvalidTopK(t *testing.T) {
	engine := newTestServer(t)
	doRequest(engine, http.MethodPost, "/api/v1/reindex", "", nil)
	rec := doRequest(engine, http.MethodGet, "/api/v1/search?query=garbage&top_k=abc", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doRequest(engine, http.MethodGet, "/api/v1/search?query=garbage&top_k=99", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAskGrounded(t *testing.T) {
	engine := newTestServer(t)
	doRequest(engine, http.MethodPost, "/api/v1/reindex", "", nil)

	rec := doRequest(engine, http.MethodPost, "/api/v1/ask",
		`{"question":"When is garbage collection in Zone A?"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	require.Equal(t, true, data["grounded"])
	require.Contains(t, data["reply"], "Monday")
	require.NotEmpty(t, data["citations"])
}

func TestAskInvalidBody(t *testing.T) {
	engine := newTestServer(t)
	doRequest(engine, http.MethodPost, "/api/v1/reindex", "", nil)

	rec := doRequest(engine, http.MethodPost, "/api/v1/ask", `{"question":`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(engine, http.MethodPost, "/api/v1/ask", `{"question":"  "}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocumentsRoleHeader(t *testing.T) {
	engine := newTestServer(t)
	doRequest(engine, http.MethodPost, "/api/v1/reindex", "", nil)

	rec := doRequest(engine, http.MethodGet, "/api/v1/documents", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	require.EqualValues(t, 2, data["total"])

	rec = doRequest(engine, http.MethodGet, "/api/v1/documents", "", map[string]string{"X-Civic-Role": "staff"})
	require.Equal(t, http.StatusOK, rec.Code)
	data = decodeBody(t, rec)["data"].(map[string]interface{})
	require.EqualValues(t, 3, data["total"])

	// unknown roles degrade to the resident scope
	rec = doRequest(engine, http.MethodGet, "/api/v1/documents", "", map[string]string{"X-Civic-Role": "admin"})
	data = decodeBody(t, rec)["data"].(map[string]interface{})
	require.EqualValues(t, 2, data["total"])
}
