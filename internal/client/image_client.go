package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/facelessreel/api/internal/config"
)

// maxImageBytes caps a single generated image download.
const maxImageBytes = 32 << 20

// ImageClient fetches prompt-to-image renders from Pollinations
type ImageClient struct {
	httpClient *http.Client
	baseURL    string
	width      int
	height     int
}

// NewImageClient creates a new image generation client
func NewImageClient(cfg *config.ImagesConfig) *ImageClient {
	return &ImageClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		width:   cfg.Width,
		height:  cfg.Height,
	}
}

// Fetch downloads the image generated for prompt and returns its bytes.
func (c *ImageClient) Fetch(ctx context.Context, prompt string) ([]byte, error) {
	q := url.Values{}
	q.Set("width", strconv.Itoa(c.width))
	q.Set("height", strconv.Itoa(c.height))
	q.Set("nologo", "true")

	endpoint := fmt.Sprintf("%s/prompt/%s?%s", c.baseURL, url.PathEscape(prompt), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("image API error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image API returned empty body")
	}

	return data, nil
}
