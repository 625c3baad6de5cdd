package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ray729alp/mqa-chatbot/internal/chatbot/biz"
	"github.com/ray729alp/mqa-chatbot/internal/chatbot/store"
	"github.com/ray729alp/mqa-chatbot/internal/model"
	"github.com/ray729alp/mqa-chatbot/pkg/llm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubStore struct {
	results []*model.SearchResult
	count   int64
}

func (s *stubStore) Insert(context.Context, []*model.Chunk) ([]string, error) { return nil, nil }

func (s *stubStore) Search(context.Context, []float32, int) ([]*model.SearchResult, error) {
	return s.results, nil
}

func (s *stubStore) Count(context.Context) (int64, error)         { return s.count, nil }
func (s *stubStore) DeleteDocument(context.Context, string) error { return nil }
func (s *stubStore) Clear(context.Context) error                  { return nil }
func (s *stubStore) Close() error                                 { return nil }

type stubOpener struct {
	stores map[string]*stubStore
}

func (o *stubOpener) Open(_ context.Context, category string) (store.VectorStore, error) {
	st, ok := o.stores[category]
	if !ok {
		return nil, fmt.Errorf("%s: %w", category, store.ErrStoreNotFound)
	}
	return st, nil
}

func (o *stubOpener) Create(ctx context.Context, category string, _ int) (store.VectorStore, error) {
	return o.Open(ctx, category)
}

func (o *stubOpener) Close(context.Context) error { return nil }

type stubEmbedder struct{}

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func (e *stubEmbedder) EmbedSingle(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (e *stubEmbedder) Name() string { return "stub" }

type stubChat struct {
	reply string
}

func (p *stubChat) Chat(context.Context, []llm.Message) (*llm.GenerateResponse, error) {
	return &llm.GenerateResponse{Content: p.reply}, nil
}

func (p *stubChat) Generate(ctx context.Context, _, _ string) (*llm.GenerateResponse, error) {
	return p.Chat(ctx, nil)
}

func (p *stubChat) Name() string { return "stub" }

// newTestEngine builds an engine with one ready category ("faq") whose
// pipeline always answers with reply.
func newTestEngine(t *testing.T, reply string) *gin.Engine {
	t.Helper()

	opener := &stubOpener{stores: map[string]*stubStore{
		"faq": {
			count: 3,
			results: []*model.SearchResult{
				{Chunk: model.Chunk{DocumentName: "faq.pdf", Page: 2, Content: "MQA accredits programmes."}, Score: 0.9},
			},
		},
	}}

	registry := biz.BuildRegistry(context.Background(), &biz.BuildConfig{
		Categories:   []biz.CategoryDescriptor{{Name: "faq", Description: "Frequently asked questions"}},
		Opener:       opener,
		Embedder:     &stubEmbedder{},
		ChatProvider: &stubChat{reply: reply},
	})

	chatbot := biz.NewChatbot(registry, biz.NewConversationMemory(nil), nil)
	h := NewChatHandler(chatbot, registry)

	engine := gin.New()
	engine.POST("/predict", h.Predict)
	engine.GET("/healthz", h.Healthz)
	engine.GET("/categories", h.Categories)
	engine.GET("/metrics", h.Metrics)
	return engine
}

func postPredict(t *testing.T, engine *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) model.PredictError {
	t.Helper()

	var resp model.PredictError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) model.PredictResponse {
	t.Helper()

	var resp model.PredictResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestPredictNoBody(t *testing.T) {
	engine := newTestEngine(t, "hello")

	w := postPredict(t, engine, "")

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "No data received", resp.Error)
	assert.Equal(t, "Please provide a valid query.", resp.Answer)
}

func TestPredictMalformedJSON(t *testing.T) {
	engine := newTestEngine(t, "hello")

	w := postPredict(t, engine, "{not json")

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "No data received", resp.Error)
	assert.Equal(t, "Please provide a valid query.", resp.Answer)
}

func TestPredictEmptyMessage(t *testing.T) {
	engine := newTestEngine(t, "hello")

	for _, body := range []string{
		`{"category":"faq"}`,
		`{"message":"","category":"faq"}`,
		`{"message":"   ","category":"faq"}`,
	} {
		w := postPredict(t, engine, body)

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, "Empty message", resp.Error, "body: %s", body)
		assert.Equal(t, "Please provide a question or message.", resp.Answer)
	}
}

func TestPredictMissingCategory(t *testing.T) {
	engine := newTestEngine(t, "hello")

	w := postPredict(t, engine, `{"message":"what is MQA?"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "Category not specified", resp.Error)
	assert.Equal(t, "Please select a category first.", resp.Answer)
}

// Message is validated before category, matching the deployed contract.
func TestPredictValidationOrder(t *testing.T) {
	engine := newTestEngine(t, "hello")

	w := postPredict(t, engine, `{"message":"  "}`)

	resp := decodeError(t, w)
	assert.Equal(t, "Empty message", resp.Error)
}

func TestPredictAnswersQuery(t *testing.T) {
	engine := newTestEngine(t, "MQA accredits programmes in Malaysia.")

	w := postPredict(t, engine, `{"message":"what does MQA do?","category":"faq"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, "MQA accredits programmes in Malaysia.", resp.Answer)
	assert.Equal(t, []string{"faq.pdf Page 2"}, resp.Sources)
	assert.Empty(t, resp.SessionID)
}

func TestPredictFormatsAnswer(t *testing.T) {
	engine := newTestEngine(t, "Visit https://www.mqa.gov.my for details.")

	w := postPredict(t, engine, `{"message":"where?","category":"faq"}`)

	resp := decodeResponse(t, w)
	assert.Contains(t, resp.Answer, `<a href="https://www.mqa.gov.my"`)
}

func TestPredictUnknownCategoryGuidance(t *testing.T) {
	engine := newTestEngine(t, "hello")

	w := postPredict(t, engine, `{"message":"hi","category":"astrology"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, biz.GuidanceInvalidCategory, resp.Answer)
	assert.Empty(t, resp.Sources)
}

func TestPredictMintsSessionID(t *testing.T) {
	engine := newTestEngine(t, "hello")

	w := postPredict(t, engine, `{"message":"hi","category":"faq","new_session":true}`)

	resp := decodeResponse(t, w)
	require.NotEmpty(t, resp.SessionID)
	_, err := uuid.Parse(resp.SessionID)
	assert.NoError(t, err, "minted session IDs are UUIDs")
}

func TestPredictEchoesClientSessionID(t *testing.T) {
	engine := newTestEngine(t, "hello")

	w := postPredict(t, engine, `{"message":"hi","category":"faq","session_id":"s-42"}`)

	resp := decodeResponse(t, w)
	assert.Equal(t, "s-42", resp.SessionID)
}

func TestHealthz(t *testing.T) {
	engine := newTestEngine(t, "hello")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status     string            `json:"status"`
		Categories map[string]string `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ready", resp.Categories["faq"])
}

func TestCategories(t *testing.T) {
	engine := newTestEngine(t, "hello")

	req := httptest.NewRequest(http.MethodGet, "/categories", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Categories []model.CategoryInfo `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Categories, 1)
	assert.Equal(t, "faq", resp.Categories[0].Name)
	assert.Equal(t, "Faq", resp.Categories[0].DisplayName)
	assert.Equal(t, "ready", resp.Categories[0].Availability)
	assert.Equal(t, int64(3), resp.Categories[0].ChunkCount)
}

func TestMetricsEndpoint(t *testing.T) {
	engine := newTestEngine(t, "hello")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, w.Body.String(), "# HELP mqa_chatbot_queries_total")
	assert.Contains(t, w.Body.String(), "# TYPE mqa_chatbot_queries_total counter")
}
