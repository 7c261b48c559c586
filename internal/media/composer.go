package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/facelessreel/api/internal/config"
)

// maxCaptionLength is the longest narration burned in as a caption.
const maxCaptionLength = 100

// ComposeRequest lists the inputs of one composition.
type ComposeRequest struct {
	AudioPath  string
	ImagePaths []string
	// Caption is overlaid when short enough and a font is configured.
	Caption    string
	OutputPath string
}

// CommandError reports a failed ffmpeg or ffprobe run.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// Composer builds the final reel with ffmpeg.
type Composer struct {
	ffmpeg   string
	ffprobe  string
	fontFile string
	fps      int
	preset   string
	width    int
	height   int
	runner   commandRunner
}

func NewComposer(cfg *config.ComposerConfig, width, height int) *Composer {
	return &Composer{
		ffmpeg:   cfg.FFmpegPath,
		ffprobe:  cfg.FFprobePath,
		fontFile: cfg.FontFile,
		fps:      cfg.FPS,
		preset:   cfg.Preset,
		width:    width,
		height:   height,
		runner:   execRunner{},
	}
}

// Compose shows each image for an equal share of the audio and writes an
// H.264/AAC mp4 to req.OutputPath.
func (c *Composer) Compose(ctx context.Context, req ComposeRequest) error {
	if len(req.ImagePaths) == 0 {
		return fmt.Errorf("no images to compose")
	}

	duration, err := c.probeDuration(ctx, req.AudioPath)
	if err != nil {
		return err
	}
	perImage := duration / float64(len(req.ImagePaths))

	listPath := filepath.Join(filepath.Dir(req.OutputPath), "images.txt")
	if err := writeConcatList(listPath, req.ImagePaths, perImage); err != nil {
		return err
	}
	defer os.Remove(listPath)

	caption := c.caption(req.Caption)
	err = c.runFFmpeg(ctx, listPath, req.AudioPath, req.OutputPath, caption)
	if err != nil && caption != "" && ctx.Err() == nil {
		log.Printf("[Composer] Caption overlay failed, retrying without caption: %v", err)
		err = c.runFFmpeg(ctx, listPath, req.AudioPath, req.OutputPath, "")
	}
	if err != nil {
		return err
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("ffmpeg produced no output")
	}
	return nil
}

func (c *Composer) caption(text string) string {
	text = strings.TrimSpace(text)
	if c.fontFile == "" || text == "" || len(text) >= maxCaptionLength {
		return ""
	}
	return text
}

func (c *Composer) probeDuration(ctx context.Context, audioPath string) (float64, error) {
	res, err := c.runner.Run(ctx, c.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		audioPath,
	)
	if err != nil {
		return 0, &CommandError{Command: "ffprobe", ExitCode: res.ExitCode, Stderr: res.Stderr, Err: err}
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(res.Stdout), 64)
	if err != nil || duration <= 0 {
		return 0, fmt.Errorf("invalid audio duration %q", strings.TrimSpace(res.Stdout))
	}
	return duration, nil
}

func (c *Composer) runFFmpeg(ctx context.Context, listPath, audioPath, outPath, caption string) error {
	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,fps=%d,format=yuv420p",
		c.width, c.height, c.width, c.height, c.fps,
	)
	if caption != "" {
		filter += fmt.Sprintf(
			",drawtext=fontfile='%s':text='%s':fontcolor=white:fontsize=60:borderw=3:bordercolor=black:x=(w-text_w)/2:y=h-300",
			escapeDrawtext(c.fontFile), escapeDrawtext(caption),
		)
	}

	args := []string{
		"-y",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-i", audioPath,
		"-vf", filter,
		"-c:v", "libx264",
		"-preset", c.preset,
		"-r", strconv.Itoa(c.fps),
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-movflags", "+faststart",
		outPath,
	}

	res, err := c.runner.Run(ctx, c.ffmpeg, args...)
	if err != nil {
		return &CommandError{Command: "ffmpeg", ExitCode: res.ExitCode, Stderr: res.Stderr, Err: err}
	}
	return nil
}

// writeConcatList writes an ffmpeg concat demuxer script. The last image is
// listed twice because the demuxer ignores the final duration directive.
func writeConcatList(path string, images []string, perImage float64) error {
	var b strings.Builder
	for _, img := range images {
		abs, err := filepath.Abs(img)
		if err != nil {
			return fmt.Errorf("failed to resolve image path: %w", err)
		}
		fmt.Fprintf(&b, "file '%s'\nduration %.3f\n", escapeConcat(abs), perImage)
	}
	last, _ := filepath.Abs(images[len(images)-1])
	fmt.Fprintf(&b, "file '%s'\n", escapeConcat(last))

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	return nil
}

func escapeConcat(s string) string {
	return strings.ReplaceAll(s, "'", `'\''`)
}

func escapeDrawtext(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`, `%`, `\%`)
	return r.Replace(s)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
