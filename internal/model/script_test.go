package model

import "testing"

func TestScriptNarration(t *testing.T) {
	tests := []struct {
		name   string
		script Script
		want   string
	}{
		{
			name:   "full text wins",
			script: Script{Hook: "hook", FullText: "  the whole thing  ", Scenes: []Scene{{Narration: "ignored"}}},
			want:   "the whole thing",
		},
		{
			name:   "rebuilt from hook and scenes",
			script: Script{Hook: "Did you know?", Scenes: []Scene{{Narration: "Oceans are deep."}, {Narration: " "}, {Narration: "Very deep."}}},
			want:   "Did you know? Oceans are deep. Very deep.",
		},
		{
			name:   "empty",
			script: Script{},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.script.Narration(); got != tt.want {
				t.Errorf("Narration() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScriptVisualScenes(t *testing.T) {
	s := Script{Scenes: []Scene{{Visual: "a"}, {Visual: "b"}}}
	if got := s.VisualScenes(30); len(got) != 2 {
		t.Fatalf("got %d scenes, want 2", len(got))
	}

	empty := Script{Hook: "Waves at dawn", FullText: "Waves."}
	got := empty.VisualScenes(20)
	if len(got) != 1 {
		t.Fatalf("got %d scenes, want 1", len(got))
	}
	if got[0].Visual != "Waves at dawn" || got[0].Narration != "Waves." || got[0].Duration != 20 {
		t.Errorf("fallback scene = %+v", got[0])
	}

	bare := Script{}
	if got := bare.VisualScenes(10); got[0].Visual != "inspiring scene" {
		t.Errorf("fallback visual = %q, want inspiring scene", got[0].Visual)
	}
}

func TestJobView(t *testing.T) {
	job := Job{ID: "abc", Status: JobStatusProcessing, Progress: 30, Message: "Generating voiceover..."}
	if view := job.View(); view.VideoURL != nil || view.JobID != "abc" {
		t.Fatalf("view = %+v", view)
	}

	job.Status = JobStatusCompleted
	job.VideoRef = "/api/download/abc"
	view := job.View()
	if view.VideoURL == nil || *view.VideoURL != "/api/download/abc" {
		t.Fatalf("video url = %v", view.VideoURL)
	}
}
