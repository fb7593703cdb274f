package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// VectorStore is the external knowledge-retrieval engine's write contract.
type VectorStore interface {
	UpsertChunks(ctx context.Context, collection string, chunks []Chunk) error
	DeleteBySource(ctx context.Context, collection, source string) error
}

// HTTPVectorStore talks to the vector-store service over its document API.
type HTTPVectorStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPVectorStore(baseURL, apiKey string, timeout time.Duration) *HTTPVectorStore {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPVectorStore{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (v *HTTPVectorStore) UpsertChunks(ctx context.Context, collection string, chunks []Chunk) error {
	body, err := json.Marshal(map[string]any{"documents": chunks})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/collections/%s/documents", v.baseURL, url.PathEscape(collection))
	return v.do(ctx, http.MethodPost, endpoint, body)
}

func (v *HTTPVectorStore) DeleteBySource(ctx context.Context, collection, source string) error {
	endpoint := fmt.Sprintf("%s/collections/%s/documents?source=%s",
		v.baseURL, url.PathEscape(collection), url.QueryEscape(source))
	return v.do(ctx, http.MethodDelete, endpoint, nil)
}

func (v *HTTPVectorStore) do(ctx context.Context, method, endpoint string, body []byte) error {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create vector store request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.apiKey != "" {
		req.Header.Set("X-API-Key", v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("vector store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("vector store HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
