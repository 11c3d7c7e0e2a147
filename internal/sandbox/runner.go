package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"shaneshark.com/portfolio/internal/metrics"
)

type ExecutionRequest struct {
	Code    string `json:"code"`
	Type    string `json:"type"`
	Stdin   string `json:"stdin"`
	Version string `json:"version"`
}

type ExecutionResult struct {
	Output  string  `json:"output"`
	Code    int     `json:"code"`
	Time    float64 `json:"time"`
	Message string  `json:"message"`
}

// RunResponse mirrors the runner's reply. Code 0 means the runner accepted the job.
type RunResponse struct {
	Code int             `json:"code"`
	Data ExecutionResult `json:"data"`
}

// Succeeded reports whether the program ran and exited cleanly
func (r RunResponse) Succeeded() bool {
	return r.Code == 0 && r.Data.Code == 0
}

// Runner posts execution requests to the remote runner
type Runner struct {
	Endpoint string
	HTTP     *http.Client
}

func NewRunner(endpoint string, timeout time.Duration) *Runner {
	return &Runner{
		Endpoint: endpoint,
		HTTP:     &http.Client{Timeout: timeout},
	}
}

// Run never fails. Transport, status and decode errors come back as code -1.
func (r *Runner) Run(ctx context.Context, req ExecutionRequest) RunResponse {
	resp, err := r.run(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("language", req.Type).Msg("Sandbox execution error")
		metrics.RecordSandboxRun(req.Type, "failed")
		return RunResponse{Code: -1, Data: ExecutionResult{Code: -1, Message: err.Error()}}
	}

	result := "error"
	if resp.Succeeded() {
		result = "success"
	}
	metrics.RecordSandboxRun(req.Type, result)
	return *resp
}

func (r *Runner) run(ctx context.Context, req ExecutionRequest) (*RunResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := r.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	startTime := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		metrics.RecordUpstreamCall("sandbox", startTime, 0)
		return nil, fmt.Errorf("code run API unreachable: %w", err)
	}
	defer resp.Body.Close()
	metrics.RecordUpstreamCall("sandbox", startTime, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("code run API failed: %d", resp.StatusCode)
	}

	var out RunResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode run response: %w", err)
	}
	return &out, nil
}
