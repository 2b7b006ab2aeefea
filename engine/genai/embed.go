package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type embedRequest struct {
	Content content `json:"content"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// EmbedText returns an embedding vector for the given text. Unlike the
// generation operations this is an internal API with normal error returns:
// callers treat embedding as best-effort and log failures.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, errors.New("genai: blank API key")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(embedRequest{
		Content: content{Parts: []part{{Text: text}}},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s:embedContent?key=%s", c.baseURL, c.embedModel, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("genai: embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("genai: embed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("genai: embed decode: %w", err)
	}
	if len(out.Embedding.Values) == 0 {
		return nil, errors.New("genai: embed: empty vector")
	}
	return out.Embedding.Values, nil
}
