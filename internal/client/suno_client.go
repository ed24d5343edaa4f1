package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/layertune/api/internal/config"
	"github.com/layertune/api/internal/model"
)

// The clip status endpoint takes a comma-separated id list; batches are capped
// so a full stem split plus originals never exceeds what the API accepts.
const maxClipsPerQuery = 20

// MusicGenerator defines the interface for the generation provider.
type MusicGenerator interface {
	GenerateTrack(ctx context.Context, req *GenerateTrackRequest) (*GenerateTrackResponse, error)
	GetClips(ctx context.Context, ids []string) ([]model.Clip, error)
	SeparateStems(ctx context.Context, clipID string) (*StemResponse, error)
}

// SunoClient implements MusicGenerator for the Suno API.
type SunoClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxRetries int
	// sleep is swappable in tests so backoff does not slow the suite
	sleep func(time.Duration)
}

// GenerateTrackRequest represents the request for track generation.
type GenerateTrackRequest struct {
	Topic            string `json:"topic,omitempty"`
	Prompt           string `json:"prompt,omitempty"`
	Tags             string `json:"tags,omitempty"`
	MakeInstrumental bool   `json:"make_instrumental,omitempty"`
	CoverClipID      string `json:"cover_clip_id,omitempty"`
	NegativeTags     string `json:"negative_tags,omitempty"`
}

// GenerateTrackResponse represents the response from track generation.
type GenerateTrackResponse struct {
	ID    string       `json:"id"`
	Clips []model.Clip `json:"clips"`
}

// StemResponse represents the batch of stem jobs started by a separation call.
type StemResponse struct {
	ID    string       `json:"id"`
	Clips []model.Clip `json:"clips"`
}

// NewSunoClient creates a new Suno API client.
func NewSunoClient(cfg *config.SunoConfig) *SunoClient {
	return &SunoClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		sleep:      time.Sleep,
	}
}

// IsConfigured returns true if the client has valid configuration.
func (c *SunoClient) IsConfigured() bool {
	return c.apiKey != ""
}

// GenerateTrack submits a generation request and returns the clip batch.
func (c *SunoClient) GenerateTrack(ctx context.Context, req *GenerateTrackRequest) (*GenerateTrackResponse, error) {
	var raw json.RawMessage
	if err := c.post(ctx, "/generate", req, &raw); err != nil {
		return nil, err
	}
	return normalizeGenerateResponse(raw)
}

// GetClips queries status for a batch of clip ids. Batches larger than the
// per-call cap are split into sequential queries.
func (c *SunoClient) GetClips(ctx context.Context, ids []string) ([]model.Clip, error) {
	clips := make([]model.Clip, 0, len(ids))
	for start := 0; start < len(ids); start += maxClipsPerQuery {
		end := start + maxClipsPerQuery
		if end > len(ids) {
			end = len(ids)
		}
		endpoint := "/clips?ids=" + url.QueryEscape(strings.Join(ids[start:end], ","))
		var batch []model.Clip
		if err := c.get(ctx, endpoint, &batch); err != nil {
			return nil, err
		}
		clips = append(clips, batch...)
	}
	return clips, nil
}

// SeparateStems submits a completed clip for stem separation and returns the
// batch of stem clip jobs.
func (c *SunoClient) SeparateStems(ctx context.Context, clipID string) (*StemResponse, error) {
	body := map[string]string{"clip_id": clipID}
	var raw json.RawMessage
	if err := c.post(ctx, "/stem", body, &raw); err != nil {
		return nil, err
	}
	return normalizeStemResponse(raw, clipID)
}

// normalizeGenerateResponse accepts both the {clips: [...]} envelope and the
// flat single-clip form some deployments return.
func normalizeGenerateResponse(raw json.RawMessage) (*GenerateTrackResponse, error) {
	var resp GenerateTrackResponse
	if err := json.Unmarshal(raw, &resp); err == nil && len(resp.Clips) > 0 {
		return &resp, nil
	}
	var flat model.Clip
	if err := json.Unmarshal(raw, &flat); err != nil || flat.ID == "" {
		return nil, fmt.Errorf("unexpected generate response: %s", string(raw))
	}
	return &GenerateTrackResponse{ID: flat.ID, Clips: []model.Clip{flat}}, nil
}

// normalizeStemResponse accepts {clips: [...]}, a bare array, and a flat clip.
func normalizeStemResponse(raw json.RawMessage, clipID string) (*StemResponse, error) {
	var resp StemResponse
	if err := json.Unmarshal(raw, &resp); err == nil && len(resp.Clips) > 0 {
		return &resp, nil
	}
	var arr []model.Clip
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		return &StemResponse{ID: clipID, Clips: arr}, nil
	}
	var flat model.Clip
	if err := json.Unmarshal(raw, &flat); err != nil || flat.ID == "" {
		return nil, fmt.Errorf("unexpected stem response: %s", string(raw))
	}
	return &StemResponse{ID: flat.ID, Clips: []model.Clip{flat}}, nil
}

// post sends a POST request with JSON body.
func (c *SunoClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.doWithRetry(ctx, http.MethodPost, endpoint, bodyBytes, result)
}

// get sends a GET request and parses the JSON response.
func (c *SunoClient) get(ctx context.Context, endpoint string, result interface{}) error {
	return c.doWithRetry(ctx, http.MethodGet, endpoint, nil, result)
}

// doWithRetry executes a request, retrying on rate limits and server errors
// with exponential backoff. Any other failure status is returned immediately
// with the numeric status embedded as "(NNN)" in the message; handlers parse
// that number back out to choose a response status.
func (c *SunoClient) doWithRetry(ctx context.Context, method, endpoint string, body []byte, result interface{}) error {
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request: %w", err)
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if result == nil {
				return nil
			}
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("failed to unmarshal response: %w (body: %s)", err, string(respBody))
			}
			return nil
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < c.maxRetries {
			backoff := retryAfterHint(resp)
			if backoff <= 0 {
				backoff = expBackoff(attempt, time.Second, 30*time.Second)
			}
			log.Printf("[Suno API] rate limited (429), retrying in %v (attempt %d/%d)", backoff.Round(time.Millisecond), attempt+1, c.maxRetries)
			c.sleep(backoff)
			continue
		}

		if resp.StatusCode >= 500 && attempt < c.maxRetries {
			backoff := expBackoff(attempt, time.Second, 15*time.Second)
			log.Printf("[Suno API] server error (%d), retrying in %v (attempt %d/%d)", resp.StatusCode, backoff.Round(time.Millisecond), attempt+1, c.maxRetries)
			c.sleep(backoff)
			continue
		}

		return fmt.Errorf("suno request failed (%d): %s", resp.StatusCode, string(respBody))
	}

	return fmt.Errorf("suno request failed (429): max retries exceeded")
}

// retryAfterHint reads the Retry-After header, if present, in seconds.
func retryAfterHint(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// expBackoff computes base*2^attempt plus jitter, capped.
func expBackoff(attempt int, base, cap time.Duration) time.Duration {
	backoff := base << uint(attempt)
	backoff += time.Duration(rand.Int63n(int64(base)))
	if backoff > cap {
		backoff = cap
	}
	return backoff
}
