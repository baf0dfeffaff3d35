// Package runway adapts the Runway Gen-3 video generation API to the
// uniform adapter contract.
package runway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/videoforge/internal/videomodel"
)

// DefaultBaseURL is the production Runway API endpoint.
const DefaultBaseURL = "https://api.runwayml.com/v1"

// Adapter drives the Runway Gen-3 HTTP API.
type Adapter struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// Option customizes the adapter.
type Option func(*Adapter)

// WithBaseURL overrides the API endpoint (tests point it at a local server).
func WithBaseURL(u string) Option { return func(a *Adapter) { a.baseURL = strings.TrimRight(u, "/") } }

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(a *Adapter) { a.http = c } }

// New constructs a Runway adapter.
func New(apiKey string, opts ...Option) *Adapter {
	a := &Adapter{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements videomodel.Adapter.
func (a *Adapter) Name() string { return "runway" }

type generateRequest struct {
	Model       string `json:"model"`
	Prompt      string `json:"prompt"`
	Duration    int    `json:"duration"`
	AspectRatio string `json:"aspect_ratio"`
	Resolution  string `json:"resolution"`
}

type generateResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output struct {
		URL string `json:"url"`
	} `json:"output"`
	Error string `json:"error"`
}

// Initiate validates params and submits the generation request, retrying
// transient HTTP failures with exponential backoff.
func (a *Adapter) Initiate(ctx context.Context, prompt string, params map[string]any) (string, error) {
	req, err := buildRequest(prompt, params)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", videomodel.NewError(videomodel.CodeParameters, "encode request", err)
	}

	var jobID string
	op := func() error {
		resp, err := a.do(ctx, http.MethodPost, "/generate", body)
		if err != nil {
			return err // already classified; backoff retries retryable codes
		}
		defer func() { _ = resp.Body.Close() }()
		var out generateResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return backoff.Permanent(videomodel.NewError(videomodel.CodeOutput, "decode response", err))
		}
		if out.ID == "" {
			return backoff.Permanent(videomodel.NewError(videomodel.CodeOutput, "no job id returned", nil))
		}
		jobID = out.ID
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 2 * time.Second
	expo.MaxInterval = 10 * time.Second
	expo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(wrapPermanent(op), backoff.WithContext(expo, ctx)); err != nil {
		return "", err
	}
	return jobID, nil
}

// GetStatus probes the job. Transport errors map to PROCESSING so the poll
// loop keeps going instead of failing the segment on flakiness.
func (a *Adapter) GetStatus(ctx context.Context, externalJobID string) (videomodel.Status, error) {
	resp, err := a.do(ctx, http.MethodGet, "/generate/"+externalJobID, nil)
	if err != nil {
		if videomodel.Retryable(err) {
			slog.Debug("runway status probe failed, still processing", slog.Any("error", err))
			return videomodel.StatusProcessing, nil
		}
		return videomodel.StatusFailed, err
	}
	defer func() { _ = resp.Body.Close() }()
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return videomodel.StatusProcessing, nil
	}
	return mapStatus(out.Status), nil
}

// GetResult fetches the terminal outcome.
func (a *Adapter) GetResult(ctx context.Context, externalJobID string) (videomodel.Result, error) {
	resp, err := a.do(ctx, http.MethodGet, "/generate/"+externalJobID, nil)
	if err != nil {
		return videomodel.Result{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return videomodel.Result{}, videomodel.NewError(videomodel.CodeOutput, "decode result", err)
	}
	switch mapStatus(out.Status) {
	case videomodel.StatusCompleted:
		if out.Output.URL == "" {
			return videomodel.Result{
				Status:       videomodel.StatusFailed,
				ErrorMessage: "generation succeeded but no output URL",
				ErrorCode:    videomodel.CodeOutput,
			}, nil
		}
		return videomodel.Result{Status: videomodel.StatusCompleted, VideoURL: out.Output.URL}, nil
	case videomodel.StatusFailed:
		msg := out.Error
		if msg == "" {
			msg = "generation failed"
		}
		return videomodel.Result{
			Status:       videomodel.StatusFailed,
			ErrorMessage: msg,
			ErrorCode:    videomodel.CodeGeneration,
		}, nil
	default:
		return videomodel.Result{Status: videomodel.StatusProcessing}, nil
	}
}

// Cancel is best-effort.
func (a *Adapter) Cancel(ctx context.Context, externalJobID string) bool {
	resp, err := a.do(ctx, http.MethodDelete, "/generate/"+externalJobID, nil)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < 300
}

// do issues one HTTP request and classifies failures into the taxonomy.
func (a *Adapter) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, rd)
	if err != nil {
		return nil, videomodel.NewError(videomodel.CodeParameters, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, videomodel.NewError(videomodel.CodeTimeout, "runway request timed out", err)
		}
		return nil, videomodel.NewError(videomodel.CodeConnection, "cannot reach runway", err)
	}
	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := fmt.Sprintf("runway status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, videomodel.NewError(videomodel.CodeParameters, msg, nil)
		case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
			return nil, videomodel.NewError(videomodel.CodeWorkflow, msg, nil)
		case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
			return nil, videomodel.NewError(videomodel.CodeTimeout, msg, nil)
		default:
			return nil, videomodel.NewError(videomodel.CodeConnection, msg, nil)
		}
	}
	return resp, nil
}

func buildRequest(prompt string, params map[string]any) (generateRequest, error) {
	req := generateRequest{Model: "gen3", Prompt: prompt, Duration: 5, AspectRatio: "16:9", Resolution: "1080p"}
	if d, ok := numParam(params, "duration"); ok {
		if d != 5 && d != 10 {
			return req, videomodel.NewError(videomodel.CodeParameters, fmt.Sprintf("invalid duration %d: must be 5 or 10", d), nil)
		}
		req.Duration = d
	}
	if ar, ok := params["aspect_ratio"].(string); ok {
		switch ar {
		case "16:9", "9:16", "1:1":
			req.AspectRatio = ar
		default:
			return req, videomodel.NewError(videomodel.CodeParameters, fmt.Sprintf("invalid aspect_ratio %q", ar), nil)
		}
	}
	if res, ok := params["resolution"].(string); ok {
		switch res {
		case "720p", "1080p":
			req.Resolution = res
		default:
			return req, videomodel.NewError(videomodel.CodeParameters, fmt.Sprintf("invalid resolution %q", res), nil)
		}
	}
	return req, nil
}

func mapStatus(s string) videomodel.Status {
	switch strings.ToLower(s) {
	case "pending":
		return videomodel.StatusPending
	case "processing", "running":
		return videomodel.StatusProcessing
	case "succeeded", "completed":
		return videomodel.StatusCompleted
	case "failed", "error":
		return videomodel.StatusFailed
	default:
		return videomodel.StatusPending
	}
}

func numParam(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

// wrapPermanent marks non-retryable classified errors permanent so the
// backoff loop stops on them immediately.
func wrapPermanent(op backoff.Operation) backoff.Operation {
	return func() error {
		err := op()
		if err == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return err
		}
		if !videomodel.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
}
