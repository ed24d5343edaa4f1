package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/layertune/api/internal/config"
)

// StemSeparator defines the interface for the Demucs separation provider. The
// call is synchronous: one request returns the full stem map.
type StemSeparator interface {
	Separate(ctx context.Context, audioURL, jobID string) (*DemucsResponse, error)
	StemURL(jobID, stemName string) string
}

// DemucsClient implements StemSeparator for the Modal-hosted Demucs endpoint.
type DemucsClient struct {
	httpClient *http.Client
	baseURL    string
}

// DemucsResponse maps Demucs stem names (vocals, drums, bass, other) to the
// per-stem payload returned by the endpoint.
type DemucsResponse struct {
	JobID string                     `json:"job_id"`
	Stems map[string]json.RawMessage `json:"stems"`
}

// NewDemucsClient creates a new Demucs endpoint client.
func NewDemucsClient(cfg *config.DemucsConfig) *DemucsClient {
	return &DemucsClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: strings.TrimRight(cfg.EndpointURL, "/"),
	}
}

// IsConfigured returns true if the client has valid configuration.
func (c *DemucsClient) IsConfigured() bool {
	return c.baseURL != ""
}

// Separate runs stem separation on the given audio. Demucs processes the whole
// file in one call, so a success carries every stem it could extract.
func (c *DemucsClient) Separate(ctx context.Context, audioURL, jobID string) (*DemucsResponse, error) {
	body, err := json.Marshal(map[string]string{
		"audio_url": audioURL,
		"job_id":    jobID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/separate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("demucs separation failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var result DemucsResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// StemURL builds the stable download URL for one separated stem.
func (c *DemucsClient) StemURL(jobID, stemName string) string {
	return fmt.Sprintf("%s/get_stem?job_id=%s&stem=%s",
		c.baseURL, url.QueryEscape(jobID), url.QueryEscape(stemName))
}
