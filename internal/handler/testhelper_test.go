package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/facelessreel/api/internal/config"
	"github.com/facelessreel/api/internal/media"
	"github.com/facelessreel/api/internal/middleware"
	"github.com/facelessreel/api/internal/model"
	"github.com/facelessreel/api/internal/registry"
	"github.com/facelessreel/api/internal/service"
	"github.com/facelessreel/api/internal/storage"
	"github.com/facelessreel/api/internal/worker"
	"github.com/facelessreel/api/pkg/response"
)

type stubStages struct {
	voiceErr error
	block    chan struct{}
}

func (s *stubStages) GenerateScript(ctx context.Context, prompt string, duration int) (*model.Script, error) {
	return service.FallbackScript(prompt, duration), nil
}

func (s *stubStages) Synthesize(ctx context.Context, text, dest string) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.voiceErr != nil {
		return s.voiceErr
	}
	return os.WriteFile(dest, []byte("audio"), 0o644)
}

func (s *stubStages) RenderVisual(ctx context.Context, description, dest string) error {
	return os.WriteFile(dest, []byte("jpeg"), 0o644)
}

func (s *stubStages) Compose(ctx context.Context, req media.ComposeRequest) error {
	return os.WriteFile(req.OutputPath, []byte("mp4-bytes"), 0o644)
}

// testApp holds all components needed for testing
type testApp struct {
	app      *fiber.App
	registry *registry.Registry
	store    *storage.LocalVideoStore
	runner   *worker.Runner
	stages   *stubStages
}

// setupApp wires the same routes as main.go with stubbed media stages.
func setupApp(t *testing.T) *testApp {
	t.Helper()
	root := t.TempDir()

	store, err := storage.NewLocalVideoStore(filepath.Join(root, "output"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	stages := &stubStages{}
	reg := registry.New()
	reelWorker := worker.NewReelWorker(reg, storage.NewScratch(filepath.Join(root, "temp")), worker.Stages{
		Script:   stages,
		Voice:    stages,
		Images:   stages,
		Fallback: media.NewFallbackImager(54, 96),
		Composer: stages,
	}, store, nil, &config.PipelineConfig{
		ScriptTimeout:  time.Second,
		VoiceTimeout:   time.Second,
		ImageTimeout:   time.Second,
		ComposeTimeout: time.Second,
	})
	runner := worker.NewRunner(reelWorker, reg, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		runner.Shutdown(ctx)
	})

	reelService := service.NewReelService(reg, runner, store, 30, 180)
	reelHandler := NewReelHandler(reelService, validator.New())
	healthHandler := NewHealthHandler(map[string]func() bool{
		"groq": func() bool { return false },
	}, reelService.Stats)
	rateLimiter := middleware.NewRateLimiter(nil)

	app := fiber.New(fiber.Config{
		ErrorHandler: response.ErrorHandler,
	})
	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.Health)

	api := app.Group("/api")
	api.Post("/generate", rateLimiter.GenerateLimit(10000), reelHandler.Generate)
	api.Get("/status/:jobId", reelHandler.Status)
	api.Get("/download/:jobId", reelHandler.Download)

	app.Get("/ws/jobs/:jobId", reelHandler.RequireJob, func(c *fiber.Ctx) error {
		return fiber.ErrUpgradeRequired
	})

	return &testApp{app: app, registry: reg, store: store, runner: runner, stages: stages}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// errorCode extracts error.code from an error response.
func errorCode(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	e, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("response has no error object: %v", body)
	}
	code, _ := e["code"].(string)
	return code
}

// pollStatus polls GET /api/status until the job reaches want.
func pollStatus(t *testing.T, app *fiber.App, jobID, want string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, err := doRequest(app, "GET", "/api/status/"+jobID, "")
		if err != nil {
			t.Fatalf("status request failed: %v", err)
		}
		body := parseJSON(t, resp)
		if body["status"] == want {
			return body
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s never reached %s, last: %v", jobID, want, body)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

var errVoice = errors.New("tts quota exceeded")

func submit(t *testing.T, app *fiber.App, prompt string, duration int) string {
	t.Helper()
	resp, err := doRequest(app, "POST", "/api/generate", fmt.Sprintf(`{"prompt":%q,"duration":%d}`, prompt, duration))
	if err != nil {
		t.Fatalf("generate request failed: %v", err)
	}
	assertStatus(t, resp, 202)
	body := parseJSON(t, resp)
	id, _ := body["job_id"].(string)
	if id == "" {
		t.Fatalf("no job_id in %v", body)
	}
	return id
}
