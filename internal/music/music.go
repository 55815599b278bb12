// Package music fetches songs for the #damas music command through an
// external download API.
package music

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/damasnight/whatsapp-mod-bot/pkg/env"
)

// ErrNotConfigured is returned when no download API is set up.
var ErrNotConfigured = errors.New("music download api is not configured")

// ErrNotFound is returned when the API has no match for the query.
var ErrNotFound = errors.New("no track found for query")

// Track is a downloadable song ready to be sent as a voice-note style audio
// message.
type Track struct {
	Title    string
	Artist   string
	Audio    []byte
	MimeType string
	Seconds  uint32
}

// Downloader resolves a free-text query into an audio track.
type Downloader interface {
	Fetch(ctx context.Context, query string) (*Track, error)
}

// APIClient talks to a song-download HTTP API. The API is expected to expose
// GET {base}/search?q={query} returning JSON with a direct audio URL.
type APIClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewFromEnv builds the client from MUSIC_API_BASE_URL and MUSIC_API_KEY.
// It returns ErrNotConfigured when the base URL is absent so the caller can
// degrade gracefully.
func NewFromEnv() (*APIClient, error) {
	baseURL, err := env.GetEnvString("MUSIC_API_BASE_URL")
	if err != nil {
		return nil, ErrNotConfigured
	}
	apiKey := env.GetEnvStringOrDefault("MUSIC_API_KEY", "")
	timeout := env.GetEnvDurationOrDefault("MUSIC_API_TIMEOUT", 60*time.Second)

	return &APIClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type searchResponse struct {
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	AudioURL string `json:"audio_url"`
	MimeType string `json:"mime_type"`
	Seconds  uint32 `json:"duration_seconds"`
}

// Fetch searches for the query and downloads the best match.
func (c *APIClient) Fetch(ctx context.Context, query string) (*Track, error) {
	searchURL := fmt.Sprintf("%s/search?q=%s", c.baseURL, url.QueryEscape(query))
	var result searchResponse
	if err := c.getJSON(ctx, searchURL, &result); err != nil {
		return nil, err
	}
	if result.AudioURL == "" {
		return nil, ErrNotFound
	}

	audio, err := c.getBytes(ctx, result.AudioURL)
	if err != nil {
		return nil, fmt.Errorf("downloading audio: %w", err)
	}

	mimeType := result.MimeType
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}
	return &Track{
		Title:    result.Title,
		Artist:   result.Artist,
		Audio:    audio,
		MimeType: mimeType,
		Seconds:  result.Seconds,
	}, nil
}

func (c *APIClient) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	body, err := c.getBytes(ctx, rawURL)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (c *APIClient) getBytes(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("music api returned %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
