package huggingface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ray729alp/mqa-chatbot/pkg/llm"
)

func newTestProvider(t *testing.T, cfg llm.Config) *Provider {
	t.Helper()
	if cfg.APIKey == "" {
		cfg.APIKey = "hf-token"
	}
	provider, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return provider.(*Provider)
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(llm.Config{}); err == nil {
		t.Error("expected error for missing api key")
	}
}

func TestNewModelSelection(t *testing.T) {
	p := newTestProvider(t, llm.Config{})
	if p.embedModel != "sentence-transformers/all-MiniLM-L6-v2" {
		t.Errorf("expected default embed model, got %s", p.embedModel)
	}
	if p.chatModel != "mistralai/Mistral-7B-Instruct-v0.2" {
		t.Errorf("expected default chat model, got %s", p.chatModel)
	}

	p = newTestProvider(t, llm.Config{EmbeddingModel: "BAAI/bge-small-en-v1.5", Model: "mistralai/Mixtral-8x7B"})
	if p.embedModel != "BAAI/bge-small-en-v1.5" {
		t.Errorf("expected embed model override, got %s", p.embedModel)
	}
	if p.chatModel != "mistralai/Mixtral-8x7B" {
		t.Errorf("expected chat model override, got %s", p.chatModel)
	}
}

func TestEmbedSentenceShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := "/pipeline/feature-extraction/sentence-transformers/all-MiniLM-L6-v2"
		if r.URL.Path != want {
			t.Errorf("expected path %s, got %s", want, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer hf-token" {
			t.Error("expected bearer authorization header")
		}

		var req featureRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if !req.Options.WaitForModel {
			t.Error("expected wait_for_model true")
		}
		if len(req.Inputs) != 2 {
			t.Errorf("expected 2 inputs, got %d", len(req.Inputs))
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[[0.1,0.2,0.3],[0.4,0.5,0.6]]`))
	}))
	defer server.Close()

	p := newTestProvider(t, llm.Config{BaseURL: server.URL})
	embeddings, err := p.Embed(context.Background(), []string{
		"What is programme accreditation?",
		"How do I verify a qualification?",
	})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(embeddings))
	}
	if embeddings[0][2] != 0.3 {
		t.Errorf("expected embeddings[0][2] = 0.3, got %f", embeddings[0][2])
	}
}

func TestEmbedTokenShapeMeanPooling(t *testing.T) {
	// Token-level models answer one vector per token; the provider must pool
	// them into a single sentence vector.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[[[1.0,2.0],[3.0,4.0]]]`))
	}))
	defer server.Close()

	p := newTestProvider(t, llm.Config{BaseURL: server.URL})
	embeddings, err := p.Embed(context.Background(), []string{"accreditation"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(embeddings) != 1 {
		t.Fatalf("expected 1 embedding, got %d", len(embeddings))
	}
	if embeddings[0][0] != 2.0 || embeddings[0][1] != 3.0 {
		t.Errorf("expected pooled vector [2 3], got %v", embeddings[0])
	}
}

func TestMeanPool(t *testing.T) {
	if got := meanPool(nil); got != nil {
		t.Errorf("expected nil for empty sequence, got %v", got)
	}

	pooled := meanPool([][]float32{{2, 4}, {4, 8}})
	if pooled[0] != 3 || pooled[1] != 6 {
		t.Errorf("expected [3 6], got %v", pooled)
	}
}

func TestEmbedErrorCarriesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer server.Close()

	p := newTestProvider(t, llm.Config{BaseURL: server.URL})
	_, err := p.Embed(context.Background(), []string{"text"})
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
	if !strings.Contains(err.Error(), "invalid token") {
		t.Errorf("expected error to carry the response body, got: %v", err)
	}
}

func TestGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := "/models/mistralai/Mistral-7B-Instruct-v0.2"
		if r.URL.Path != want {
			t.Errorf("expected path %s, got %s", want, r.URL.Path)
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if !strings.Contains(req.Inputs, "[INST] answer briefly [/INST]") {
			t.Errorf("expected system prompt in inputs, got %q", req.Inputs)
		}
		if req.Parameters.ReturnFullText {
			t.Error("expected return_full_text false")
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"generated_text":"the reply"}]`))
	}))
	defer server.Close()

	p := newTestProvider(t, llm.Config{BaseURL: server.URL})
	resp, err := p.Generate(context.Background(), "what is MQA?", "answer briefly")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Content != "the reply" {
		t.Errorf("unexpected content: %s", resp.Content)
	}
	// The Inference API reports no usage.
	if resp.TokenUsage != nil {
		t.Errorf("expected nil token usage, got %+v", resp.TokenUsage)
	}
}

func TestInstructPrompt(t *testing.T) {
	prompt := instructPrompt([]llm.Message{
		{Role: llm.RoleSystem, Content: "be factual"},
		{Role: llm.RoleUser, Content: "what is accreditation?"},
		{Role: llm.RoleAssistant, Content: "formal recognition"},
		{Role: llm.RoleUser, Content: "who grants it?"},
	})

	want := "[INST] be factual [/INST]\n" +
		"[INST] what is accreditation? [/INST]\n" +
		"formal recognition\n" +
		"[INST] who grants it? [/INST]\n"
	if prompt != want {
		t.Errorf("unexpected prompt:\n%q\nwant:\n%q", prompt, want)
	}
}
