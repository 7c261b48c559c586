package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/facelessreel/api/internal/config"
)

// maxTTSChunk is the longest text the translate endpoint accepts per call.
const maxTTSChunk = 200

// TTSClient synthesizes speech through the Google Translate TTS endpoint
type TTSClient struct {
	httpClient *http.Client
	baseURL    string
	language   string
}

// NewTTSClient creates a new TTS client
func NewTTSClient(cfg *config.TTSConfig) *TTSClient {
	return &TTSClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		language: cfg.Language,
	}
}

// Synthesize speaks text and writes the MP3 to dest. Long text is spoken in
// chunks whose MP3 frames are concatenated.
func (c *TTSClient) Synthesize(ctx context.Context, text, dest string) error {
	chunks := splitTTSText(text, maxTTSChunk)
	if len(chunks) == 0 {
		return fmt.Errorf("no text to synthesize")
	}

	var audio bytes.Buffer
	for i, chunk := range chunks {
		data, err := c.fetchChunk(ctx, chunk, i, len(chunks))
		if err != nil {
			return err
		}
		audio.Write(data)
	}

	if err := os.WriteFile(dest, audio.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write audio: %w", err)
	}

	log.Printf("[TTS] Synthesized %d chunk(s), %d bytes", len(chunks), audio.Len())
	return nil
}

func (c *TTSClient) fetchChunk(ctx context.Context, text string, idx, total int) ([]byte, error) {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("q", text)
	q.Set("tl", c.language)
	q.Set("client", "tw-ob")
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(len(text)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/translate_tts?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tts error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("tts returned empty audio")
	}

	return body, nil
}

// splitTTSText breaks text into chunks of at most limit bytes, preferring
// word boundaries. Words longer than limit are cut.
func splitTTSText(text string, limit int) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, word := range strings.Fields(text) {
		for len(word) > limit {
			flush()
			cut := limit
			for cut > 0 && !utf8Start(word[cut]) {
				cut--
			}
			chunks = append(chunks, word[:cut])
			word = word[cut:]
		}

		switch {
		case current.Len() == 0:
			current.WriteString(word)
		case current.Len()+1+len(word) <= limit:
			current.WriteByte(' ')
			current.WriteString(word)
		default:
			flush()
			current.WriteString(word)
		}
	}
	flush()

	return chunks
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
