// Package httpapi talks to the meeting platform's REST surface: room
// validation before a join and recording uploads after one.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MishthiJain8/joinright/internal/domain"
)

type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

type validateResponse struct {
	Exists bool   `json:"exists"`
	Locked bool   `json:"locked"`
	Error  string `json:"error,omitempty"`
}

// ValidateMeeting checks that a room exists before the client dials in.
func (c *Client) ValidateMeeting(ctx context.Context, room domain.RoomID) error {
	url := fmt.Sprintf("%s/api/meetings/%s", c.base, room)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("validate meeting: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("meeting %s not found", room)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validate meeting: unexpected status %d", resp.StatusCode)
	}
	var body validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("validate meeting: %w", err)
	}
	if !body.Exists {
		return fmt.Errorf("meeting %s not found", room)
	}
	return nil
}

type uploadResponse struct {
	URL string `json:"url"`
}

// Upload sends a finished recording file and returns its remote URL.
func (c *Client) Upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read recording: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/recordings", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload recording: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("upload recording: unexpected status %d", resp.StatusCode)
	}
	var body uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("upload recording: %w", err)
	}
	log.Info().Str("module", "httpapi").Str("file", filepath.Base(path)).Str("url", body.URL).Msg("recording uploaded")
	return body.URL, nil
}
