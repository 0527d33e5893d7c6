package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Run represents one version of a versioned research run
type Run struct {
	RunID         string
	JobID         string
	Version       int
	PromptText    string
	ReportText    string
	HasReport     bool
	Status        Status
	CreatedAt     time.Time
	Feedback      string
	PreviousJobID string
	Usage         *Usage
	Inputs        *RunInputs
}

// NewRun creates a fresh version-1 run for the given prompt
func NewRun(promptText string) *Run {
	return &Run{
		RunID:      uuid.NewString()[:8],
		Version:    1,
		PromptText: promptText,
		Status:     StatusPending,
		CreatedAt:  time.Now(),
	}
}

// NewRevision derives the next version from this run, carrying the
// original inputs and the prior job id forward for context continuity
func (r *Run) NewRevision(feedback, promptText string) *Run {
	return &Run{
		RunID:         r.RunID,
		Version:       r.Version + 1,
		PromptText:    promptText,
		Status:        StatusPending,
		CreatedAt:     time.Now(),
		Feedback:      feedback,
		PreviousJobID: r.JobID,
		Inputs:        r.Inputs,
	}
}

// SetReport records the report text and marks it present
func (r *Run) SetReport(text string) {
	r.ReportText = text
	r.HasReport = true
}

// Topic returns the best available topic label for the run
func (r *Run) Topic() string {
	if r.Inputs != nil && r.Inputs.Topic != "" {
		return r.Inputs.Topic
	}
	topic := r.PromptText
	if len(topic) > 100 {
		topic = topic[:100]
	}
	return strings.TrimSpace(topic)
}

// VersionInfo is one entry in a run's version history
type VersionInfo struct {
	Version       int        `json:"version"`
	JobID         string     `json:"job_id"`
	CreatedAt     time.Time  `json:"created_at"`
	Status        Status     `json:"status"`
	Feedback      string     `json:"feedback,omitempty"`
	PreviousJobID string     `json:"previous_job_id,omitempty"`
	Usage         *Usage     `json:"usage,omitempty"`
	Inputs        *RunInputs `json:"inputs,omitempty"`
}

// RunMetadata is the directory-level index for a run id
type RunMetadata struct {
	RunID         string        `json:"run_id"`
	Topic         string        `json:"topic"`
	CreatedAt     time.Time     `json:"created_at"`
	Versions      []VersionInfo `json:"versions"`
	LatestVersion int           `json:"latest_version"`
}

// VersionEntry returns the summary for a specific version, or nil
func (m *RunMetadata) VersionEntry(version int) *VersionInfo {
	for i := range m.Versions {
		if m.Versions[i].Version == version {
			return &m.Versions[i]
		}
	}
	return nil
}

// Source is one bibliography entry extracted from a report
type Source struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	FinalURL string `json:"final_url,omitempty"`
}

// BestURL returns the resolved URL when available, else the original
func (s Source) BestURL() string {
	if s.FinalURL != "" {
		return s.FinalURL
	}
	return s.URL
}

// SourceMap maps citation ordinals (digit strings) to sources
type SourceMap map[string]Source

// PollResult is the outcome of waiting on a remote job
type PollResult struct {
	JobID          string
	Status         Status
	ReportMarkdown string
	Err            string
	Usage          *Usage
}
