// Package mock implements an ffmpeg-backed video generator for local
// development and tests. It produces real playable containers (solid color
// background with the prompt drawn on top) without any external API.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fairyhunter13/videoforge/internal/compose"
	"github.com/fairyhunter13/videoforge/internal/videomodel"
)

// Param keys understood by the mock on top of the common ones. They let
// tests force specific failure shapes through ordinary task payloads.
const (
	// ParamForceError forces a terminal failure at initiate with the given
	// error code (e.g. "WORKFLOW").
	ParamForceError = "force_error"
	// ParamConnectionFailures makes the first N Initiate calls fail with a
	// retryable CONNECTION error before succeeding.
	ParamConnectionFailures = "connection_failures"
)

// Config tunes the mock generator.
type Config struct {
	// Delay between initiate and the job turning COMPLETED.
	Delay time.Duration
	// FailRate in [0,1]: probability a job fails with GENERATION.
	FailRate float64
	// FFmpegPath locates the synthesis binary; default "ffmpeg".
	FFmpegPath string
	// Runner executes ffmpeg; default compose.ExecRunner.
	Runner compose.Runner
	// OutputDir receives synthesized clips; default os.TempDir().
	OutputDir string
	// Seed makes failure draws reproducible; zero seeds from time.
	Seed int64
}

type job struct {
	prompt  string
	params  map[string]any
	readyAt time.Time
	failed  bool
	errMsg  string
	errCode videomodel.ErrorCode
	asset   string
}

// Adapter is the mock video generator.
type Adapter struct {
	cfg  Config
	rand *rand.Rand

	mu             sync.Mutex
	jobs           map[string]*job
	connFailsLeft  int
	connFailsArmed bool
}

// New constructs a mock adapter.
func New(cfg Config) *Adapter {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.Runner == nil {
		cfg.Runner = compose.ExecRunner{}
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = os.TempDir()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Adapter{
		cfg:  cfg,
		rand: rand.New(rand.NewSource(seed)),
		jobs: make(map[string]*job),
	}
}

// Name implements videomodel.Adapter.
func (a *Adapter) Name() string { return "mock" }

// Initiate validates params and schedules a deterministic fake job.
func (a *Adapter) Initiate(_ context.Context, prompt string, params map[string]any) (string, error) {
	if err := validateParams(params); err != nil {
		return "", err
	}
	if code, ok := params[ParamForceError].(string); ok && code != "" {
		return "", videomodel.NewError(videomodel.ErrorCode(code), fmt.Sprintf("forced %s failure", code), nil)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if n, ok := floatParam(params, ParamConnectionFailures); ok && !a.connFailsArmed {
		a.connFailsArmed = true
		a.connFailsLeft = int(n)
	}
	if a.connFailsLeft > 0 {
		a.connFailsLeft--
		return "", videomodel.NewError(videomodel.CodeConnection, "mock service unreachable", nil)
	}

	id := "mock_" + strings.ToLower(ulid.Make().String())
	j := &job{
		prompt:  prompt,
		params:  params,
		readyAt: time.Now().Add(a.cfg.Delay),
	}
	if a.rand.Float64() < a.cfg.FailRate {
		j.failed = true
		j.errMsg = "simulated generation failure"
		j.errCode = videomodel.CodeGeneration
	}
	a.jobs[id] = j
	return id, nil
}

// GetStatus reports the fake job state.
func (a *Adapter) GetStatus(_ context.Context, externalJobID string) (videomodel.Status, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	j, ok := a.jobs[externalJobID]
	if !ok {
		return videomodel.StatusFailed, nil
	}
	if time.Now().Before(j.readyAt) {
		return videomodel.StatusProcessing, nil
	}
	if j.failed {
		return videomodel.StatusFailed, nil
	}
	return videomodel.StatusCompleted, nil
}

// GetResult synthesizes the clip on first call and returns a file:// URL.
func (a *Adapter) GetResult(ctx context.Context, externalJobID string) (videomodel.Result, error) {
	// Held across the reads too: Cancel mutates the same job concurrently.
	a.mu.Lock()
	defer a.mu.Unlock()
	j, ok := a.jobs[externalJobID]
	if !ok {
		return videomodel.Result{
			Status:       videomodel.StatusFailed,
			ErrorMessage: "job not found",
			ErrorCode:    videomodel.CodeWorkflow,
		}, nil
	}
	if time.Now().Before(j.readyAt) {
		return videomodel.Result{Status: videomodel.StatusProcessing}, nil
	}
	if j.failed {
		return videomodel.Result{
			Status:       videomodel.StatusFailed,
			ErrorMessage: j.errMsg,
			ErrorCode:    j.errCode,
		}, nil
	}

	if j.asset == "" {
		path, err := a.synthesize(ctx, externalJobID, j.prompt, j.params)
		if err != nil {
			return videomodel.Result{
				Status:       videomodel.StatusFailed,
				ErrorMessage: err.Error(),
				ErrorCode:    videomodel.CodeOutput,
			}, nil
		}
		j.asset = path
	}
	return videomodel.Result{
		Status:   videomodel.StatusCompleted,
		VideoURL: "file://" + j.asset,
		Metadata: map[string]any{"prompt": j.prompt, "duration": durationOf(j.params)},
	}, nil
}

// Cancel marks the fake job failed.
func (a *Adapter) Cancel(_ context.Context, externalJobID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	j, ok := a.jobs[externalJobID]
	if !ok {
		return false
	}
	j.failed = true
	j.errMsg = "cancelled"
	j.errCode = videomodel.CodeGeneration
	return true
}

// synthesize renders a solid-color clip with the prompt drawn centered,
// sized by aspect_ratio and duration seconds long.
func (a *Adapter) synthesize(ctx context.Context, id, prompt string, params map[string]any) (string, error) {
	out := filepath.Join(a.cfg.OutputDir, id+".mp4")
	w, h := dimensions(params)
	dur := durationOf(params)
	text := strings.ReplaceAll(prompt, "'", `\'`)
	text = strings.ReplaceAll(text, ":", `\:`)

	args := []string{
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=0x202840:s=%dx%d:d=%d:r=24", w, h, dur),
		"-vf", fmt.Sprintf("drawtext=text='%s':fontcolor=white:fontsize=36:x=(w-text_w)/2:y=(h-text_h)/2", text),
		"-pix_fmt", "yuv420p",
		"-y", out,
	}
	stderr, err := a.cfg.Runner.Run(ctx, a.cfg.FFmpegPath, args...)
	if err != nil {
		return "", fmt.Errorf("synthesize clip: %s: %w", strings.TrimSpace(stderr), err)
	}
	return out, nil
}

func validateParams(params map[string]any) error {
	if dur, ok := floatParam(params, "duration"); ok && dur <= 0 {
		return videomodel.NewError(videomodel.CodeParameters, fmt.Sprintf("invalid duration %v", dur), nil)
	}
	if ar, ok := params["aspect_ratio"].(string); ok {
		switch ar {
		case "16:9", "9:16", "1:1":
		default:
			return videomodel.NewError(videomodel.CodeParameters, fmt.Sprintf("invalid aspect_ratio %q", ar), nil)
		}
	}
	return nil
}

func dimensions(params map[string]any) (int, int) {
	ar, _ := params["aspect_ratio"].(string)
	switch ar {
	case "9:16":
		return 720, 1280
	case "1:1":
		return 720, 720
	default:
		return 1280, 720
	}
}

func durationOf(params map[string]any) int {
	if d, ok := floatParam(params, "duration"); ok && d > 0 {
		return int(d)
	}
	return 5
}

// floatParam reads a numeric param that may arrive as float64 (JSON) or int.
func floatParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
