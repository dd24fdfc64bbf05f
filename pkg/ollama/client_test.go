package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
)

func TestNameSprites(t *testing.T) {
	var got api.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Invalid request body: %v", err)
		}
		json.NewEncoder(w).Encode(api.ChatResponse{
			Model:   got.Model,
			Message: api.Message{Role: "assistant", Content: "```json\n[\"coin\", \"gem\"]\n```"},
			Done:    true,
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/api/chat")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	img := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	names, err := c.NameSprites(context.Background(), "llava", "name these", []string{img, img})
	if err != nil {
		t.Fatalf("NameSprites failed: %v", err)
	}
	if len(names) != 2 || names[0] != "coin" || names[1] != "gem" {
		t.Errorf("Expected [coin gem], got %v", names)
	}
	if len(got.Messages) != 1 || len(got.Messages[0].Images) != 2 {
		t.Errorf("Expected one message with 2 images, got %+v", got.Messages)
	}
	if got.Model != "llava" {
		t.Errorf("Expected model llava, got %s", got.Model)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient("not a url"); err == nil {
		t.Error("Expected error for URL without scheme")
	}
}

func TestBadBase64(t *testing.T) {
	c, _ := NewClient("http://127.0.0.1:1")
	if _, err := c.NameSprites(context.Background(), "m", "p", []string{"%%%"}); err == nil {
		t.Error("Expected base64 decode error")
	}
}
