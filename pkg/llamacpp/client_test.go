package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newServer(t *testing.T, reply any, status int, seen *ChatCompletionRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			json.NewDecoder(r.Body).Decode(seen)
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(reply)
	}))
}

func TestNameSprites(t *testing.T) {
	var seen ChatCompletionRequest
	srv := newServer(t, map[string]any{
		"choices": []any{map[string]any{
			"message": map[string]any{"role": "assistant", "content": `{"names": ["slime", "bat"]}`},
		}},
	}, http.StatusOK, &seen)
	defer srv.Close()

	c, _ := NewClient(srv.URL + "/")
	names, err := c.NameSprites(context.Background(), "m", "name them", []string{"AAAA", "BBBB"})
	if err != nil {
		t.Fatalf("NameSprites failed: %v", err)
	}
	if len(names) != 2 || names[1] != "bat" {
		t.Errorf("Expected [slime bat], got %v", names)
	}

	parts, ok := seen.Messages[0].Content.([]any)
	if !ok || len(parts) != 3 {
		t.Fatalf("Expected 3 content parts, got %#v", seen.Messages[0].Content)
	}
	first := parts[0].(map[string]any)
	if first["type"] != "image_url" {
		t.Errorf("Expected images before text, got %v", first["type"])
	}
	if url := first["image_url"].(map[string]any)["url"]; url != "data:image/png;base64,AAAA" {
		t.Errorf("Unexpected data URL %v", url)
	}
}

func TestPartsResponse(t *testing.T) {
	srv := newServer(t, map[string]any{
		"choices": []any{map[string]any{
			"message": map[string]any{"role": "assistant", "content": []any{
				map[string]any{"type": "text", "text": "a red coin"},
			}},
		}},
	}, http.StatusOK, nil)
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	text, err := c.SimpleQuery(context.Background(), "m", "what is it", "AAAA")
	if err != nil {
		t.Fatalf("SimpleQuery failed: %v", err)
	}
	if text != "a red coin" {
		t.Errorf("Expected 'a red coin', got %q", text)
	}
}

func TestServerError(t *testing.T) {
	srv := newServer(t, map[string]any{"error": "boom"}, http.StatusInternalServerError, nil)
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	if _, err := c.NameSprites(context.Background(), "m", "p", nil); err == nil {
		t.Error("Expected error for HTTP 500")
	}
}

func TestNoChoices(t *testing.T) {
	srv := newServer(t, map[string]any{"choices": []any{}}, http.StatusOK, nil)
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	if _, err := c.SimpleQuery(context.Background(), "m", "p", ""); err == nil {
		t.Error("Expected error for empty choices")
	}
}
