package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hochfrequenz/deep-research-orchestrator/internal/agent"
	"github.com/hochfrequenz/deep-research-orchestrator/internal/citations"
	"github.com/hochfrequenz/deep-research-orchestrator/internal/domain"
	"github.com/hochfrequenz/deep-research-orchestrator/internal/prompts"
	"github.com/hochfrequenz/deep-research-orchestrator/internal/runstore"
)

// Precondition errors surfaced synchronously to the caller
var (
	ErrRunNotFound      = errors.New("run not found")
	ErrNotCompleted     = errors.New("run's latest version is not completed")
	ErrAlreadyCompleted = errors.New("run's latest version is already completed")
	ErrNoJobID          = errors.New("run has no recorded job id to resume")
)

// JobClient is the remote agent boundary used by the workflow.
// *agent.Client satisfies it; tests use a fake.
type JobClient interface {
	CreateJob(ctx context.Context, prompt string) (string, error)
	CreateJobWithContext(ctx context.Context, prompt, previousJobID string) (string, error)
	PollUntilTerminal(ctx context.Context, jobID string, opts agent.PollOptions) *domain.PollResult
}

// StatusCallback receives human-readable progress messages
type StatusCallback func(message string)

// Config tunes the workflow's polling behavior
type Config struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Workflow composes the job client, run store, prompt templates, and
// citation engine into the start / revise / resume operations. One
// workflow instance owns a run id for the duration of an operation.
type Workflow struct {
	client JobClient
	store  *runstore.Store
	loader *prompts.Loader
	engine *citations.Engine
	config Config

	// OnStatus, when set, receives poll progress and citation findings
	OnStatus StatusCallback
}

// New creates a Workflow
func New(client JobClient, store *runstore.Store, loader *prompts.Loader, engine *citations.Engine, config Config) *Workflow {
	if loader == nil {
		loader = prompts.GetDefaultLoader()
	}
	if engine == nil {
		engine = citations.NewEngine(citations.NewResolver(0))
	}
	return &Workflow{
		client: client,
		store:  store,
		loader: loader,
		engine: engine,
		config: config,
	}
}

// Start runs new research on a topic: renders the initial prompt,
// creates the remote job, polls it to a terminal status, and persists
// the finalized run.
func (w *Workflow) Start(ctx context.Context, topic string, questions []string, constraints domain.Constraints) (*domain.Run, error) {
	prompt, err := w.loader.BuildInitialPrompt(topic, questions, constraints)
	if err != nil {
		return nil, fmt.Errorf("building prompt: %w", err)
	}

	run := domain.NewRun(prompt)
	run.Inputs = &domain.RunInputs{
		Topic:       topic,
		Constraints: constraints,
		Questions:   questions,
	}
	run.Status = domain.StatusRunning

	if err := w.store.SaveRun(run); err != nil {
		return nil, fmt.Errorf("saving run: %w", err)
	}

	jobID, err := w.client.CreateJob(ctx, prompt)
	if err != nil {
		run.Status = domain.StatusFailed
		w.save(run)
		return run, fmt.Errorf("creating job: %w", err)
	}
	run.JobID = jobID

	// Persist the job id before the long wait so an interrupted run
	// can be resumed
	if err := w.store.SaveRun(run); err != nil {
		return nil, fmt.Errorf("saving run: %w", err)
	}

	result := w.poll(ctx, jobID)
	return run, w.finalize(ctx, run, result)
}

// Revise creates the next version of a completed run. The revision
// prompt embeds the feedback; the new remote job carries the previous
// job id for conversational context. The original topic and constraints
// travel unchanged in the run's inputs.
func (w *Workflow) Revise(ctx context.Context, runID, feedback string, constraints domain.Constraints) (*domain.Run, error) {
	previous, err := w.loadLatest(runID)
	if err != nil {
		return nil, err
	}
	if previous.Status != domain.StatusCompleted {
		return nil, fmt.Errorf("%w: cannot revise run %s (status %s)", ErrNotCompleted, runID, previous.Status)
	}

	prompt, err := w.loader.BuildRevisionPrompt(feedback, constraints)
	if err != nil {
		return nil, fmt.Errorf("building revision prompt: %w", err)
	}

	run := previous.NewRevision(feedback, prompt)
	run.Status = domain.StatusRunning

	if err := w.store.SaveRun(run); err != nil {
		return nil, fmt.Errorf("saving run: %w", err)
	}

	jobID, err := w.client.CreateJobWithContext(ctx, prompt, previous.JobID)
	if err != nil {
		run.Status = domain.StatusFailed
		w.save(run)
		return run, fmt.Errorf("creating job: %w", err)
	}
	run.JobID = jobID

	if err := w.store.SaveRun(run); err != nil {
		return nil, fmt.Errorf("saving run: %w", err)
	}

	result := w.poll(ctx, jobID)
	return run, w.finalize(ctx, run, result)
}

// Resume re-enters the poll loop for a run whose latest version is not
// yet completed, against the job id recorded before the interruption.
// No new remote job is created.
func (w *Workflow) Resume(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := w.loadLatest(runID)
	if err != nil {
		return nil, err
	}
	if run.Status == domain.StatusCompleted {
		return nil, fmt.Errorf("%w: run %s v%d", ErrAlreadyCompleted, runID, run.Version)
	}
	if run.JobID == "" {
		return nil, fmt.Errorf("%w: run %s v%d", ErrNoJobID, runID, run.Version)
	}

	if next, err := domain.Transition(run.Status, domain.StatusRunning); err == nil {
		run.Status = next
	}

	result := w.poll(ctx, run.JobID)
	return run, w.finalize(ctx, run, result)
}

func (w *Workflow) loadLatest(runID string) (*domain.Run, error) {
	run, err := w.store.LoadLatest(runID)
	if errors.Is(err, runstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (w *Workflow) poll(ctx context.Context, jobID string) *domain.PollResult {
	return w.client.PollUntilTerminal(ctx, jobID, agent.PollOptions{
		Interval: w.config.PollInterval,
		Timeout:  w.config.PollTimeout,
		OnStatus: func(status string, elapsed time.Duration) {
			w.notify(fmt.Sprintf("status: %s (%.0fs)", status, elapsed.Seconds()))
		},
	})
}

// finalize applies the poll outcome and performs the single final save.
// The citation step only runs when there is report text; its findings
// are forwarded through the status callback and never fail the run.
func (w *Workflow) finalize(ctx context.Context, run *domain.Run, result *domain.PollResult) error {
	next, err := domain.Transition(run.Status, result.Status)
	if err != nil {
		log.Printf("workflow: %v", err)
		next = result.Status
	}
	run.Status = next
	run.Usage = result.Usage

	if result.Status == domain.StatusCompleted && result.ReportMarkdown != "" {
		processed := w.engine.Process(ctx, result.ReportMarkdown)
		run.SetReport(processed.Text)

		for _, finding := range processed.Errors {
			w.notify("citation check: " + finding)
		}

		if err := w.store.SaveRun(run); err != nil {
			return fmt.Errorf("saving run: %w", err)
		}
		if len(processed.Sources) > 0 {
			if err := w.store.SaveSources(run.RunID, run.Version, processed.Sources); err != nil {
				return fmt.Errorf("saving sources: %w", err)
			}
		}
		return nil
	}

	if result.Err != "" {
		w.notify(result.Err)
	}
	if err := w.store.SaveRun(run); err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

func (w *Workflow) save(run *domain.Run) {
	if err := w.store.SaveRun(run); err != nil {
		log.Printf("workflow: saving run %s v%d: %v", run.RunID, run.Version, err)
	}
}

func (w *Workflow) notify(message string) {
	if w.OnStatus != nil {
		w.OnStatus(message)
	}
}
