package extract

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

// HTTP asks a model server to extract features from a file it can read at
// the same path. POST <baseURL>/extract {"model","path"} returns an
// Extraction; 422 means the audio could not be decoded.
type HTTP struct {
	model   string
	baseURL string
	client  *http.Client
}

func NewHTTP(model, baseURL string) *HTTP {
	return &HTTP{
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

func (h *HTTP) Name() string { return "http-" + h.model }

func (h *HTTP) Extract(ctx context.Context, path string) (*Extraction, error) {
	body, err := json.Marshal(extractRequest{Model: h.model, Path: path})
	if err != nil {
		return nil, fmt.Errorf("extract: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("extract: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extract: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("extract: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: %s", ErrUnreadableAudio, tail(string(respBody), maxStderr))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("extract: model server returned %d: %s", resp.StatusCode, tail(string(respBody), maxStderr))
	}

	var out Extraction
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("extract: unmarshal response: %w", err)
	}
	return &out, nil
}

// Check pings <baseURL>/health.
func (h *HTTP) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("extract: create request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("extract: model server unreachable: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("extract: model server health returned %d", resp.StatusCode)
	}
	return nil
}

type extractRequest struct {
	Model string `json:"model"`
	Path  string `json:"path"`
}
