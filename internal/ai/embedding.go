package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// EmbeddingConfig holds API settings for text-embedding (OpenAI-compatible).
type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Providers commonly cap array input at 100 items per call.
const embeddingBatchSize = 100

const (
	maxEmbedAttempts = 3
	backoffBase      = 1 * time.Second
	backoffCap       = 10 * time.Second
)

// Embed returns the embedding vector for a single text, with the same retry
// policy as batch embedding.
func (c *OpenAICompatibleClient) Embed(ctx context.Context, cfg EmbeddingConfig, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}
	vecs, err := c.embedBatchWithRetry(ctx, cfg, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return vecs[0], nil
}

// EmbedTexts embeds texts in provider-sized batches. The result is order-
// and length-preserving: one vector per input, same order. A batch that
// exhausts its retries fails the whole call; batches completed before the
// failure are not re-submitted within this call.
func (c *OpenAICompatibleClient) EmbedTexts(ctx context.Context, cfg EmbeddingConfig, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += embeddingBatchSize {
		end := i + embeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embedBatchWithRetry(ctx, cfg, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch starting at %d failed: %w", i, err)
		}
		if len(vecs) != end-i {
			return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", end-i, len(vecs))
		}
		all = append(all, vecs...)
	}
	return all, nil
}

// embedBatchWithRetry retries one batch with exponential backoff. Only
// transient failures (connectivity, timeout, rate limit, server errors) are
// retried; auth and malformed-request errors fail immediately.
func (c *OpenAICompatibleClient) embedBatchWithRetry(ctx context.Context, cfg EmbeddingConfig, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < maxEmbedAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		vecs, err := c.embedBatch(ctx, cfg, batch)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !isTransient(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("embedding retries exhausted: %w", lastErr)
}

// sleepBackoff waits 1s, 2s, 4s, ... capped at 10s, aborting on ctx cancel.
func sleepBackoff(ctx context.Context, attempt int) error {
	delay := backoffBase << (attempt - 1)
	if delay > backoffCap {
		delay = backoffCap
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *OpenAICompatibleClient) embedBatch(ctx context.Context, cfg EmbeddingConfig, batch []string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"model": cfg.Model,
		"input": batch,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request failed: %w", err)
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build embedding request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &providerError{transient: true, err: fmt.Errorf("embedding request failed: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &providerError{transient: true, err: fmt.Errorf("read embedding response failed: %w", err)}
	}
	if resp.StatusCode >= 300 {
		return nil, &providerError{
			transient: transientStatus(resp.StatusCode),
			err:       fmt.Errorf("embedding response status %d: %s", resp.StatusCode, string(raw)),
		}
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding json failed: %w", err)
	}

	result := make([][]float32, len(parsed.Data))
	for i := range parsed.Data {
		result[i] = parsed.Data[i].Embedding
	}
	return result, nil
}
