package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/facelessreel/api/internal/config"
)

const (
	scriptTemperature = 0.8
	scriptMaxTokens   = 1000
	maxErrorBody      = 200
)

// GroqClient talks to the OpenAI-compatible Groq chat endpoint
type GroqClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	model      string
}

// ChatMessage is one turn of the conversation sent to the model
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat asks the model for a constrained output shape
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatCompletionRequest is the body of POST /chat/completions
type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type chatChoice struct {
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatCompletionResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// NewGroqClient creates a new Groq API client
func NewGroqClient(cfg *config.GroqConfig) *GroqClient {
	return &GroqClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
	}
}

// ChatCompletion asks the model for a single JSON object answering user
// under the given system prompt and returns the raw message content.
func (c *GroqClient) ChatCompletion(ctx context.Context, system, user string) (string, error) {
	payload, err := json.Marshal(ChatCompletionRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    scriptTemperature,
		MaxTokens:      scriptMaxTokens,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("groq request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("groq API error (status %d): %s", resp.StatusCode, truncate(string(body), maxErrorBody))
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	choice := out.Choices[0]
	log.Printf("[Groq API] %s answered in %s (%d tokens, finish=%s)", c.model, time.Since(started).Round(time.Millisecond), out.Usage.TotalTokens, choice.FinishReason)
	return choice.Message.Content, nil
}

// IsConfigured reports whether an API key is set
func (c *GroqClient) IsConfigured() bool {
	return c.apiKey != ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
