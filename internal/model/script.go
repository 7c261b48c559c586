package model

import "strings"

// Scene is one visual unit of a reel script
type Scene struct {
	Narration string  `json:"narration"`
	Visual    string  `json:"visual"`
	Duration  float64 `json:"duration"`
}

// Script is the structured output of script generation
type Script struct {
	Hook     string  `json:"hook"`
	Scenes   []Scene `json:"scenes"`
	FullText string  `json:"full_text"`
}

// Narration returns the text to be spoken. FullText wins; otherwise the hook
// and scene narrations are joined.
func (s *Script) Narration() string {
	if text := strings.TrimSpace(s.FullText); text != "" {
		return text
	}

	parts := make([]string, 0, len(s.Scenes)+1)
	if hook := strings.TrimSpace(s.Hook); hook != "" {
		parts = append(parts, hook)
	}
	for _, scene := range s.Scenes {
		if n := strings.TrimSpace(scene.Narration); n != "" {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, " ")
}

// VisualScenes returns the scenes to render. An empty script yields a single
// scene built from the hook so downstream stages always get one visual.
func (s *Script) VisualScenes(duration int) []Scene {
	if len(s.Scenes) > 0 {
		return s.Scenes
	}

	visual := strings.TrimSpace(s.Hook)
	if visual == "" {
		visual = "inspiring scene"
	}
	return []Scene{{
		Narration: s.Narration(),
		Visual:    visual,
		Duration:  float64(duration),
	}}
}
