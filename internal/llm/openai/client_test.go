package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"NearIntents/internal/llm"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error when api key is missing")
	}
}

func TestInterpretSuccess(t *testing.T) {
	var captured struct {
		Authorization string
		Body          map[string]any
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Authorization = r.Header.Get("Authorization")
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&captured.Body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{
					"message": map[string]any{
						"content": `{"action":"swap","token_in":"NEAR","amount_in":"2","token_out":"USDC","thought":"直接兑换"}`,
					},
				},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	action, err := client.Interpret(context.Background(), llm.Request{Instruction: "把 2 个 NEAR 换成 USDC"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if action.Kind != llm.ActionSwap || action.TokenIn != "NEAR" || action.TokenOut != "USDC" {
		t.Fatalf("unexpected action: %+v", action)
	}
	if action.AmountIn != "2" {
		t.Fatalf("unexpected amount: %+v", action)
	}

	if !strings.HasPrefix(captured.Authorization, "Bearer ") {
		t.Fatalf("authorization header missing: %q", captured.Authorization)
	}
	if captured.Body["model"] == "" {
		t.Fatalf("model field missing in request")
	}
}

func TestInterpretRejectsFreeText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "抱歉，我不理解这条指令。"}},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	if _, err := client.Interpret(context.Background(), llm.Request{Instruction: "???"}); err == nil {
		t.Fatalf("expected error for non JSON content")
	}
}

func TestInterpretHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	if _, err := client.Interpret(context.Background(), llm.Request{Instruction: "swap"}); err == nil {
		t.Fatalf("expected error for http failure")
	}
}

func TestInterpretRejectsIncompleteAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"action":"swap","token_in":"NEAR","amount_in":"2"}`}},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	if _, err := client.Interpret(context.Background(), llm.Request{Instruction: "swap"}); err == nil {
		t.Fatalf("expected error for swap without token_out")
	}
}
