package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hochfrequenz/deep-research-orchestrator/internal/domain"
	"github.com/hochfrequenz/deep-research-orchestrator/internal/runstore"
)

// Resumer re-enters the poll loop for a run id
type Resumer interface {
	Resume(ctx context.Context, runID string) (*domain.Run, error)
}

// Watcher periodically resumes unfinished runs on a cron schedule.
// Runs are resumed one at a time; there is no concurrent multi-run
// scheduling.
type Watcher struct {
	store    *runstore.Store
	resumer  Resumer
	schedule cron.Schedule

	lastRun time.Time
	mu      sync.Mutex

	stopChan chan struct{}
	stopOnce sync.Once
}

// ParseCron parses a standard five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// NewWatcher creates a Watcher with the given cron expression
func NewWatcher(store *runstore.Store, resumer Resumer, cronExpr string) (*Watcher, error) {
	schedule, err := ParseCron(cronExpr)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		store:    store,
		resumer:  resumer,
		schedule: schedule,
		lastRun:  time.Now(),
		stopChan: make(chan struct{}),
	}, nil
}

// NextRun returns the next scheduled sweep time
func (w *Watcher) NextRun() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.schedule.Next(w.lastRun)
}

func (w *Watcher) due() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Now().After(w.schedule.Next(w.lastRun))
}

func (w *Watcher) markRun() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastRun = time.Now()
}

// Start begins the watch loop and blocks until Stop or ctx cancellation
func (w *Watcher) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			if w.due() {
				w.markRun()
				w.Sweep(ctx)
			}
		}
	}
}

// Sweep resumes every run whose latest version is unfinished and has a
// recorded job id. One failing run does not stop the sweep.
func (w *Watcher) Sweep(ctx context.Context) {
	metas, err := w.store.ListAll()
	if err != nil {
		log.Printf("watch: listing runs: %v", err)
		return
	}

	for _, meta := range metas {
		entry := meta.VersionEntry(meta.LatestVersion)
		if entry == nil {
			continue
		}
		switch entry.Status {
		case domain.StatusPending, domain.StatusRunning, domain.StatusInterrupted:
		default:
			continue
		}
		if entry.JobID == "" {
			continue
		}

		log.Printf("watch: resuming run %s v%d (status %s)", meta.RunID, entry.Version, entry.Status)
		run, err := w.resumer.Resume(ctx, meta.RunID)
		if err != nil {
			log.Printf("watch: resume %s: %v", meta.RunID, err)
			continue
		}
		log.Printf("watch: run %s v%d finished with status %s", run.RunID, run.Version, run.Status)

		if ctx.Err() != nil {
			return
		}
	}
}

// Stop stops the watch loop
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}
