package openai_provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kitab-ai/kitab/models"
)

func TestChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		var body request
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.Model != "gpt-4o-mini" || len(body.Messages) != 2 {
			t.Errorf("request = %+v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "hello from the model"}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, "gpt-4o-mini", "text-embedding-3-small", 0.3, 1024, 5*time.Second)
	out, err := c.ChatCompletion(context.Background(), []models.ChatMessage{
		{Role: models.RoleSystem, Content: "sys"},
		{Role: models.RoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if out != "hello from the model" {
		t.Fatalf("out = %q", out)
	}
}

func TestChatCompletionUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, "gpt-4o-mini", "text-embedding-3-small", 0.3, 1024, 5*time.Second)
	if _, err := c.ChatCompletion(context.Background(), []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}}); err == nil {
		t.Fatal("non-200 must surface as an error")
	}
}

func TestCreateEmbedding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"object": "embedding", "embedding": []float32{0.1, 0.2}, "index": 0},
				{"object": "embedding", "embedding": []float32{0.3, 0.4}, "index": 1},
			},
		})
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, "gpt-4o-mini", "text-embedding-3-small", 0.3, 1024, 5*time.Second)
	vecs, err := c.CreateEmbedding(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("CreateEmbedding: %v", err)
	}
	if len(vecs) != 2 || len(vecs[0]) != 2 {
		t.Fatalf("vecs = %v", vecs)
	}
}

func TestCreateEmbeddingEmptyInput(t *testing.T) {
	c := NewClient("test-key", "", "gpt-4o-mini", "text-embedding-3-small", 0.3, 1024, time.Second)
	vecs, err := c.CreateEmbedding(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("vecs = %v, err = %v", vecs, err)
	}
}
