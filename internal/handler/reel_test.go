package handler

import (
	"os"
	"testing"

	"github.com/facelessreel/api/internal/registry"
)

func TestGenerate_Accepted(t *testing.T) {
	ta := setupApp(t)
	ta.stages.block = make(chan struct{})
	defer close(ta.stages.block)

	resp, err := doRequest(ta.app, "POST", "/api/generate", `{"prompt":"ocean facts","duration":20}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 202)

	body := parseJSON(t, resp)
	if body["job_id"] == "" {
		t.Error("expected job_id")
	}
	if body["status"] != "queued" {
		t.Errorf("status = %v, want queued", body["status"])
	}
	if body["progress"] != float64(0) {
		t.Errorf("progress = %v, want 0", body["progress"])
	}
	if body["video_url"] != nil {
		t.Errorf("video_url = %v, want null", body["video_url"])
	}
	if _, ok := body["created_at"]; !ok {
		t.Error("expected created_at")
	}
}

func TestGenerate_DefaultDuration(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, "POST", "/api/generate", `{"prompt":"space trivia"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 202)
	body := parseJSON(t, resp)

	job, err := ta.registry.Get(body["job_id"].(string))
	if err != nil {
		t.Fatalf("registry get: %v", err)
	}
	if job.Duration != 30 {
		t.Errorf("duration = %d, want 30", job.Duration)
	}
}

func TestGenerate_Validation(t *testing.T) {
	ta := setupApp(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"missing prompt", `{"duration":20}`},
		{"blank prompt", `{"prompt":"     "}`},
		{"short prompt", `{"prompt":"hi"}`},
		{"zero duration", `{"prompt":"ocean facts","duration":0}`},
		{"duration above max", `{"prompt":"ocean facts","duration":181}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := doRequest(ta.app, "POST", "/api/generate", tt.body)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			assertStatus(t, resp, 400)
			if code := errorCode(t, parseJSON(t, resp)); code != "VALIDATION_ERROR" {
				t.Errorf("code = %q, want VALIDATION_ERROR", code)
			}
		})
	}

	total := 0
	for _, n := range ta.registry.Stats() {
		total += n
	}
	if total != 0 {
		t.Errorf("rejected requests created %d jobs: %v", total, ta.registry.Stats())
	}
}

func TestStatus_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, "GET", "/api/status/nonexistent", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 404)
	if code := errorCode(t, parseJSON(t, resp)); code != "NOT_FOUND" {
		t.Errorf("code = %q, want NOT_FOUND", code)
	}
}

func TestGenerateStatusDownload_EndToEnd(t *testing.T) {
	ta := setupApp(t)

	jobID := submit(t, ta.app, "ocean facts", 20)
	body := pollStatus(t, ta.app, jobID, "completed")

	if body["progress"] != float64(100) {
		t.Errorf("progress = %v, want 100", body["progress"])
	}
	if body["message"] != "Video ready!" {
		t.Errorf("message = %v", body["message"])
	}
	if body["video_url"] != "/api/download/"+jobID {
		t.Errorf("video_url = %v", body["video_url"])
	}

	resp, err := doRequest(ta.app, "GET", "/api/download/"+jobID, "")
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	assertStatus(t, resp, 200)
	if ct := resp.Header.Get("Content-Type"); ct != "video/mp4" {
		t.Errorf("content type = %q", ct)
	}
	want := `attachment; filename="reel_` + jobID + `.mp4"`
	if cd := resp.Header.Get("Content-Disposition"); cd != want {
		t.Errorf("content disposition = %q, want %q", cd, want)
	}
	if got := readBody(t, resp); got != "mp4-bytes" {
		t.Errorf("body = %q", got)
	}
}

func TestDownload_Errors(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, "GET", "/api/download/nonexistent", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 404)
	if code := errorCode(t, parseJSON(t, resp)); code != "NOT_FOUND" {
		t.Errorf("unknown job code = %q", code)
	}

	queued := ta.registry.Create("not started", 20)
	resp, _ = doRequest(ta.app, "GET", "/api/download/"+queued.ID, "")
	assertStatus(t, resp, 400)
	if code := errorCode(t, parseJSON(t, resp)); code != "NOT_READY" {
		t.Errorf("queued job code = %q, want NOT_READY", code)
	}

	jobID := submit(t, ta.app, "ocean facts", 20)
	pollStatus(t, ta.app, jobID, "completed")
	if err := os.Remove(ta.store.Path(jobID)); err != nil {
		t.Fatalf("remove video: %v", err)
	}
	resp, _ = doRequest(ta.app, "GET", "/api/download/"+jobID, "")
	assertStatus(t, resp, 404)
	if code := errorCode(t, parseJSON(t, resp)); code != "ARTIFACT_MISSING" {
		t.Errorf("missing file code = %q, want ARTIFACT_MISSING", code)
	}
}

func TestFailedJob(t *testing.T) {
	ta := setupApp(t)
	ta.stages.voiceErr = errVoice

	jobID := submit(t, ta.app, "ocean facts", 20)
	body := pollStatus(t, ta.app, jobID, "failed")

	if body["progress"] != float64(0) {
		t.Errorf("progress = %v, want 0", body["progress"])
	}
	if body["message"] != "Voiceover generation failed: tts quota exceeded" {
		t.Errorf("message = %v", body["message"])
	}
	if body["video_url"] != nil {
		t.Errorf("video_url = %v, want null", body["video_url"])
	}

	resp, _ := doRequest(ta.app, "GET", "/api/download/"+jobID, "")
	assertStatus(t, resp, 400)

	if _, err := ta.registry.Update(jobID, registry.Progress(50, "late")); err == nil {
		t.Error("failed job accepted a late update")
	}
}

func TestWebSocket_UnknownJob(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, "GET", "/ws/jobs/nonexistent", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 404)

	job := ta.registry.Create("ocean facts", 20)
	resp, _ = doRequest(ta.app, "GET", "/ws/jobs/"+job.ID, "")
	assertStatus(t, resp, 426)
	if code := errorCode(t, parseJSON(t, resp)); code != "UPGRADE_REQUIRED" {
		t.Errorf("code = %q, want UPGRADE_REQUIRED", code)
	}
}

func TestUnknownRoute(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, "GET", "/api/nope", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 404)
	if code := errorCode(t, parseJSON(t, resp)); code != "NOT_FOUND" {
		t.Errorf("code = %q, want NOT_FOUND", code)
	}
}
