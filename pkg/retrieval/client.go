// Package retrieval implements the knowledge-base search client (C5): a
// thin HTTP client with retry+backoff, tolerant of a cold or unreachable
// retrieval service, plus an optional local fallback index (local.go).
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/sipeed/picoclaw/pkg/logger"
	"github.com/sipeed/picoclaw/pkg/model"
)

const defaultMaxAttempts = 8

// Client searches the external knowledge-base retrieval service.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	local       *LocalIndex
	maxAttempts int
}

// New constructs a retrieval Client. local may be nil to disable the
// optional local fallback.
func New(baseURL string, local *LocalIndex) *Client {
	return &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		local:       local,
		maxAttempts: defaultMaxAttempts,
	}
}

type searchRequest struct {
	Query     string `json:"query"`
	WithDebug bool   `json:"with_debug"`
}

type searchResponse struct {
	Chunks []model.Chunk `json:"chunks"`
}

// Search POSTs {query, with_debug:false} to {baseURL}/search, retrying up
// to 8 times with exponential backoff capped at 8s per attempt. On
// exhaustion it falls back to the optional local index, then to an empty
// slice — it never fails the turn.
func (c *Client) Search(ctx context.Context, query string) []model.Chunk {
	if c.baseURL == "" {
		return c.searchLocalOrEmpty(ctx, query)
	}

	body, err := json.Marshal(searchRequest{Query: query, WithDebug: false})
	if err != nil {
		logger.ErrorCF("retrieval", "failed to encode search request", map[string]interface{}{"error": err.Error()})
		return c.searchLocalOrEmpty(ctx, query)
	}

	url := c.baseURL + "/search"

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return c.searchLocalOrEmpty(ctx, query)
		}

		chunks, ok := c.attempt(ctx, url, body)
		if ok {
			return chunks
		}

		if attempt < c.maxAttempts {
			backoff := time.Duration(math.Min(8.0, 0.5*math.Pow(2, float64(attempt-1))) * float64(time.Second))
			logger.WarnCF("retrieval", "search attempt failed, retrying", map[string]interface{}{
				"attempt": attempt,
				"backoff": backoff.String(),
			})
			select {
			case <-ctx.Done():
				return c.searchLocalOrEmpty(ctx, query)
			case <-time.After(backoff):
			}
		}
	}

	logger.WarnCF("retrieval", "search exhausted retries, degrading to empty context", map[string]interface{}{"query": query})
	return c.searchLocalOrEmpty(ctx, query)
}

// attempt performs a single HTTP round trip, reporting ok=true only when a
// 200 response was received and decoded successfully.
func (c *Client) attempt(ctx context.Context, url string, body []byte) ([]model.Chunk, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false
	}
	if out.Chunks == nil {
		out.Chunks = []model.Chunk{}
	}
	return out.Chunks, true
}

func (c *Client) searchLocalOrEmpty(ctx context.Context, query string) []model.Chunk {
	if c.local == nil {
		return []model.Chunk{}
	}
	chunks, err := c.local.Search(ctx, query, 5)
	if err != nil || chunks == nil {
		return []model.Chunk{}
	}
	return chunks
}
