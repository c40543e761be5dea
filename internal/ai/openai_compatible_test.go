package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func sseChunk(content string) string {
	payload, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"delta": map[string]string{"content": content}},
		},
	})
	return "data: " + string(payload) + "\n\n"
}

func sseUsage(prompt, completion int) string {
	payload, _ := json.Marshal(map[string]interface{}{
		"choices": []interface{}{},
		"usage": map[string]int{
			"prompt_tokens":     prompt,
			"completion_tokens": completion,
			"total_tokens":      prompt + completion,
		},
	})
	return "data: " + string(payload) + "\n\n"
}

func streamServer(t *testing.T, body string) (*httptest.Server, ChatConfig) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server, ChatConfig{BaseURL: server.URL, APIKey: "test-key", Model: "test-model"}
}

func TestStreamComplete_AccumulatesDeltasInOrder(t *testing.T) {
	body := sseChunk("Hel") + sseChunk("lo ") + sseChunk("world") + "data: [DONE]\n\n"
	_, cfg := streamServer(t, body)

	var deltas []string
	client := NewOpenAICompatibleClient()
	full, usage, err := client.StreamComplete(context.Background(), cfg, []ChatMessage{{Role: "user", Content: "hi"}}, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if full != "Hello world" {
		t.Fatalf("expected full text %q, got %q", "Hello world", full)
	}
	if len(deltas) != 3 || deltas[0] != "Hel" || deltas[2] != "world" {
		t.Fatalf("unexpected deltas: %v", deltas)
	}
	if usage != nil {
		t.Fatalf("expected nil usage when provider sent none, got %+v", usage)
	}
}

func TestStreamComplete_CapturesUsage(t *testing.T) {
	body := sseChunk("answer") + sseUsage(12, 7) + "data: [DONE]\n\n"
	_, cfg := streamServer(t, body)

	client := NewOpenAICompatibleClient()
	full, usage, err := client.StreamComplete(context.Background(), cfg, []ChatMessage{{Role: "user", Content: "q"}}, func(string) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if full != "answer" {
		t.Fatalf("unexpected full text: %q", full)
	}
	if usage == nil {
		t.Fatalf("expected usage")
	}
	if usage.PromptTokens != 12 || usage.CompletionTokens != 7 || usage.TotalTokens != 19 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}

func TestStreamComplete_OnDeltaErrorAborts(t *testing.T) {
	body := sseChunk("one") + sseChunk("two") + "data: [DONE]\n\n"
	_, cfg := streamServer(t, body)

	sentinel := errors.New("consumer gone")
	client := NewOpenAICompatibleClient()
	_, _, err := client.StreamComplete(context.Background(), cfg, []ChatMessage{{Role: "user", Content: "q"}}, func(string) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
}

func TestStreamComplete_NonSuccessStatusFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)
	cfg := ChatConfig{BaseURL: server.URL, APIKey: "k", Model: "m"}

	client := NewOpenAICompatibleClient()
	_, _, err := client.StreamComplete(context.Background(), cfg, []ChatMessage{{Role: "user", Content: "q"}}, func(string) error { return nil })
	if err == nil {
		t.Fatalf("expected error for non-success status")
	}
}

func TestStreamComplete_SendsStreamOptions(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(server.Close)
	cfg := ChatConfig{BaseURL: server.URL, APIKey: "k", Model: "m", Temperature: 0.7, MaxTokens: 2048}

	client := NewOpenAICompatibleClient()
	_, _, err := client.StreamComplete(context.Background(), cfg, []ChatMessage{{Role: "user", Content: "q"}}, func(string) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured["stream"] != true {
		t.Fatalf("expected stream=true, got %v", captured["stream"])
	}
	opts, ok := captured["stream_options"].(map[string]interface{})
	if !ok || opts["include_usage"] != true {
		t.Fatalf("expected stream_options.include_usage=true, got %v", captured["stream_options"])
	}
	if captured["temperature"] != 0.7 {
		t.Fatalf("expected temperature 0.7, got %v", captured["temperature"])
	}
	if captured["max_tokens"] != float64(2048) {
		t.Fatalf("expected max_tokens 2048, got %v", captured["max_tokens"])
	}
}

func TestTransientStatus(t *testing.T) {
	cases := map[int]bool{
		http.StatusRequestTimeout:      true,
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusBadGateway:          true,
		http.StatusUnauthorized:        false,
		http.StatusBadRequest:          false,
		http.StatusNotFound:            false,
	}
	for code, want := range cases {
		if got := transientStatus(code); got != want {
			t.Fatalf("status %d: expected %v, got %v", code, want, got)
		}
	}
}
