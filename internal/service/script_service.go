package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/facelessreel/api/internal/model"
)

// wordsPerSecond is the narration pace the script length is sized for.
const wordsPerSecond = 2.5

// ErrScriptGeneratorUnconfigured is returned when no LLM key is set and the
// placeholder script is disabled.
var ErrScriptGeneratorUnconfigured = errors.New("script generator not configured")

// ChatCompleter is the LLM call the script service depends on
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, system, user string) (string, error)
	IsConfigured() bool
}

// ScriptService writes reel scripts using Groq AI
type ScriptService struct {
	llm      ChatCompleter
	fallback bool
}

// NewScriptService creates a script service. With fallback set, a missing
// client or any generation error yields FallbackScript instead of an error.
func NewScriptService(llm ChatCompleter, fallback bool) *ScriptService {
	return &ScriptService{
		llm:      llm,
		fallback: fallback,
	}
}

// GenerateScript asks the model for a scene-by-scene script of the given
// length in seconds.
func (s *ScriptService) GenerateScript(ctx context.Context, prompt string, duration int) (*model.Script, error) {
	if s.llm == nil || !s.llm.IsConfigured() {
		if s.fallback {
			log.Printf("[Script] Groq not configured, using placeholder script")
			return FallbackScript(prompt, duration), nil
		}
		return nil, ErrScriptGeneratorUnconfigured
	}

	script, err := s.generate(ctx, prompt, duration)
	if err != nil {
		// A stage deadline falls back like any other model failure; only a
		// cancelled job propagates.
		if s.fallback && !errors.Is(ctx.Err(), context.Canceled) {
			log.Printf("[Script] Generation failed, using placeholder script: %v", err)
			return FallbackScript(prompt, duration), nil
		}
		return nil, err
	}
	return script, nil
}

func (s *ScriptService) generate(ctx context.Context, prompt string, duration int) (*model.Script, error) {
	response, err := s.llm.ChatCompletion(ctx, buildScriptSystemPrompt(duration), "Create a reel about: "+prompt)
	if err != nil {
		return nil, fmt.Errorf("AI generation failed: %w", err)
	}

	script, err := parseScriptResponse(response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}
	return script, nil
}

func buildScriptSystemPrompt(duration int) string {
	targetWords := int(float64(duration) * wordsPerSecond)

	return fmt.Sprintf(`You are a viral social media content creator specializing in faceless reels.
Write an engaging script for a %d-second vertical video.

Requirements:
- About %d words of narration in total
- A hook in the first 3 seconds
- A clear narrative with emotional impact
- A call to action at the end
- 3 to 5 scenes, each with a visual description for an image generator

Output as JSON: {"hook": "opening line", "scenes": [{"narration": "text", "visual": "description", "duration": seconds}], "full_text": "complete narration"}
Do not include any text outside the JSON structure.`, duration, targetWords)
}

func parseScriptResponse(response string) (*model.Script, error) {
	response = extractJSON(response)

	var script model.Script
	if err := json.Unmarshal([]byte(response), &script); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}

	script.FullText = script.Narration()
	if script.FullText == "" {
		return nil, fmt.Errorf("script has no narration")
	}

	return &script, nil
}

// extractJSON attempts to extract JSON from a response that may contain extra text
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")

	if start != -1 && end != -1 && end > start {
		return s[start : end+1]
	}
	return s
}

// FallbackScript is the deterministic two-scene script used when the model
// is unavailable.
func FallbackScript(prompt string, duration int) *model.Script {
	half := float64(duration) / 2
	return &model.Script{
		Hook: fmt.Sprintf("Here's something amazing about %s", prompt),
		Scenes: []model.Scene{
			{
				Narration: fmt.Sprintf("Let me tell you about %s. This is incredible.", prompt),
				Visual:    fmt.Sprintf("Dynamic visuals about %s", prompt),
				Duration:  half,
			},
			{
				Narration: "This changes everything. Don't miss out!",
				Visual:    "Inspiring conclusion scene",
				Duration:  half,
			},
		},
		FullText: fmt.Sprintf("Let me tell you about %s. This is incredible. This changes everything. Don't miss out!", prompt),
	}
}
