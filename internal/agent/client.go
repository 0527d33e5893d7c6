package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hochfrequenz/deep-research-orchestrator/internal/domain"
)

const (
	// DefaultPollInterval is the pause between status checks
	DefaultPollInterval = 10 * time.Second
	// DefaultPollTimeout bounds a single wait on a remote job
	DefaultPollTimeout = 30 * time.Minute

	defaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	defaultHTTPTimeout = 60 * time.Second
)

// StatusCallback receives polling progress updates
type StatusCallback func(status string, elapsed time.Duration)

// ClientConfig configures the remote agent client
type ClientConfig struct {
	BaseURL           string
	APIKey            string
	AgentName         string
	ThinkingSummaries string
}

// Validate checks the config is usable
func (c *ClientConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	if c.AgentName == "" {
		return fmt.Errorf("agent name is required")
	}
	return nil
}

// Client is a thin request/poll wrapper around the remote research agent.
// Jobs run in the background on the remote side; the client creates them,
// checks status, and fetches the terminal result.
type Client struct {
	config ClientConfig
	http   *http.Client
}

// NewClient creates a Client for the configured remote agent
func NewClient(config ClientConfig) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: defaultHTTPTimeout},
	}, nil
}

// createRequest is the create-job payload
type createRequest struct {
	Input                 string      `json:"input"`
	Agent                 string      `json:"agent"`
	Background            bool        `json:"background"`
	Stream                bool        `json:"stream"`
	PreviousInteractionID string      `json:"previous_interaction_id,omitempty"`
	AgentConfig           agentConfig `json:"agent_config"`
}

type agentConfig struct {
	Type              string `json:"type"`
	ThinkingSummaries string `json:"thinking_summaries,omitempty"`
}

// interaction is the remote job projection. The response shape evolves,
// so every field is read defensively and treated as absent-by-default.
type interaction struct {
	ID      string       `json:"id"`
	Status  string       `json:"status"`
	Outputs []jobOutput  `json:"outputs"`
	Usage   *jobUsage    `json:"usage"`
	Error   *remoteError `json:"error"`
}

type jobOutput struct {
	Text string `json:"text"`
}

type jobUsage struct {
	TotalInputTokens     int `json:"total_input_tokens"`
	TotalOutputTokens    int `json:"total_output_tokens"`
	TotalTokens          int `json:"total_tokens"`
	TotalReasoningTokens int `json:"total_reasoning_tokens"`
}

type remoteError struct {
	Message string `json:"message"`
}

// lastOutputText returns the text of the last output, if any
func (i *interaction) lastOutputText() string {
	if len(i.Outputs) == 0 {
		return ""
	}
	return i.Outputs[len(i.Outputs)-1].Text
}

func (i *interaction) usage() *domain.Usage {
	if i.Usage == nil {
		return nil
	}
	return &domain.Usage{
		InputTokens:    i.Usage.TotalInputTokens,
		OutputTokens:   i.Usage.TotalOutputTokens,
		TotalTokens:    i.Usage.TotalTokens,
		ThinkingTokens: i.Usage.TotalReasoningTokens,
	}
}

// CreateJob submits a prompt for background execution and returns the
// opaque job id immediately
func (c *Client) CreateJob(ctx context.Context, prompt string) (string, error) {
	return c.create(ctx, prompt, "")
}

// CreateJobWithContext submits a prompt that carries forward a previous
// job id for conversational context (used by revisions)
func (c *Client) CreateJobWithContext(ctx context.Context, prompt, previousJobID string) (string, error) {
	return c.create(ctx, prompt, previousJobID)
}

func (c *Client) create(ctx context.Context, prompt, previousJobID string) (string, error) {
	body := createRequest{
		Input:                 prompt,
		Agent:                 c.config.AgentName,
		Background:            true,
		Stream:                false,
		PreviousInteractionID: previousJobID,
		AgentConfig: agentConfig{
			Type:              "deep-research",
			ThinkingSummaries: c.config.ThinkingSummaries,
		},
	}

	var resp interaction
	if err := c.do(ctx, http.MethodPost, "/interactions", body, &resp); err != nil {
		return "", fmt.Errorf("creating job: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("creating job: remote returned no job id")
	}
	return resp.ID, nil
}

// PollOnce performs a single status check. For completed jobs it also
// returns the report text and usage figures.
func (c *Client) PollOnce(ctx context.Context, jobID string) (*domain.PollResult, error) {
	var resp interaction
	if err := c.do(ctx, http.MethodGet, "/interactions/"+jobID, nil, &resp); err != nil {
		return nil, fmt.Errorf("polling job %s: %w", jobID, err)
	}

	result := &domain.PollResult{
		JobID:  jobID,
		Status: domain.ParseStatus(resp.Status),
	}

	switch result.Status {
	case domain.StatusCompleted:
		result.ReportMarkdown = resp.lastOutputText()
		result.Usage = resp.usage()
	case domain.StatusFailed, domain.StatusCancelled:
		result.Err = fmt.Sprintf("job %s", result.Status)
		if resp.Error != nil && resp.Error.Message != "" {
			result.Err = resp.Error.Message
		}
	}

	return result, nil
}

// PollOptions tunes PollUntilTerminal. Zero values use the defaults.
type PollOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	OnStatus StatusCallback
}

// PollUntilTerminal polls the job on a fixed interval until it reaches
// completed, failed, or cancelled, the timeout elapses, or ctx is
// cancelled. It never returns a Go error for those outcomes: timeouts
// come back as a running result with an error message, cancellation as
// an interrupted result, and transport failures as a failed result.
func (c *Client) PollUntilTerminal(ctx context.Context, jobID string, opts PollOptions) *domain.PollResult {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}

	start := time.Now()
	deadline := start.Add(timeout)

	for {
		result, err := c.PollOnce(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return interruptedResult(jobID)
			}
			// Transport errors are not silently retried
			return &domain.PollResult{
				JobID:  jobID,
				Status: domain.StatusFailed,
				Err:    err.Error(),
			}
		}

		if opts.OnStatus != nil {
			opts.OnStatus(string(result.Status), time.Since(start))
		}

		switch result.Status {
		case domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled:
			return result
		}

		if time.Now().After(deadline) {
			return &domain.PollResult{
				JobID:  jobID,
				Status: domain.StatusRunning,
				Err:    "polling timeout exceeded",
			}
		}

		select {
		case <-ctx.Done():
			return interruptedResult(jobID)
		case <-time.After(interval):
		}
	}
}

func interruptedResult(jobID string) *domain.PollResult {
	return &domain.PollResult{
		JobID:  jobID,
		Status: domain.StatusInterrupted,
		Err:    "interrupted by user",
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", c.config.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("remote returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
