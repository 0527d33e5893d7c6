package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/deep-research-orchestrator/internal/agent"
	"github.com/hochfrequenz/deep-research-orchestrator/internal/citations"
	"github.com/hochfrequenz/deep-research-orchestrator/internal/config"
	"github.com/hochfrequenz/deep-research-orchestrator/internal/domain"
	"github.com/hochfrequenz/deep-research-orchestrator/internal/notify"
	"github.com/hochfrequenz/deep-research-orchestrator/internal/runstore"
	"github.com/hochfrequenz/deep-research-orchestrator/internal/scheduler"
	"github.com/hochfrequenz/deep-research-orchestrator/internal/workflow"
	"github.com/hochfrequenz/deep-research-orchestrator/tui"
	"github.com/hochfrequenz/deep-research-orchestrator/web/api"
)

var (
	newTimeframe string
	newRegion    string
	newMaxWords  int
	newFocus     string
	newQuestions []string

	reviseFeedback string

	showVersion int
	showRaw     bool

	servePort     int
	watchSchedule string
)

func init() {
	// new command
	newCmd := &cobra.Command{
		Use:   "new TOPIC",
		Short: "Start a new research run",
		Args:  cobra.ExactArgs(1),
		RunE:  runNew,
	}
	newCmd.Flags().StringVarP(&newTimeframe, "timeframe", "f", "", "timeframe constraint, e.g. 2020-2025")
	newCmd.Flags().StringVarP(&newRegion, "region", "r", "", "region constraint")
	newCmd.Flags().IntVarP(&newMaxWords, "max-words", "w", 0, "report length limit in words")
	newCmd.Flags().StringVar(&newFocus, "focus", "", "comma-separated focus areas")
	newCmd.Flags().StringArrayVarP(&newQuestions, "question", "q", nil, "research question (repeatable)")
	rootCmd.AddCommand(newCmd)

	// revise command
	reviseCmd := &cobra.Command{
		Use:   "revise RUN_ID",
		Short: "Revise a completed run with feedback",
		Args:  cobra.ExactArgs(1),
		RunE:  runRevise,
	}
	reviseCmd.Flags().StringVarP(&reviseFeedback, "feedback", "m", "", "revision feedback (required)")
	reviseCmd.MarkFlagRequired("feedback")
	rootCmd.AddCommand(reviseCmd)

	// resume command
	resumeCmd := &cobra.Command{
		Use:   "resume RUN_ID",
		Short: "Resume polling an interrupted or unfinished run",
		Args:  cobra.ExactArgs(1),
		RunE:  runResume,
	}
	rootCmd.AddCommand(resumeCmd)

	// show command
	showCmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a run's report",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	showCmd.Flags().IntVarP(&showVersion, "version", "v", 0, "version to show (default latest)")
	showCmd.Flags().BoolVar(&showRaw, "raw", false, "print the report markdown only")
	rootCmd.AddCommand(showCmd)

	// list command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List research runs",
		RunE:  runList,
	}
	rootCmd.AddCommand(listCmd)

	// status command
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show overall run status",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	// watch command
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Periodically resume unfinished runs",
		RunE:  runWatch,
	}
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "*/10 * * * *", "cron schedule for resume sweeps")
	rootCmd.AddCommand(watchCmd)

	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web API server",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on")
	rootCmd.AddCommand(serveCmd)

	// tui command
	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch the TUI dashboard",
		RunE:  runTUI,
	}
	rootCmd.AddCommand(tuiCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (*runstore.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.General.DatabasePath), 0o755); err != nil {
		return nil, err
	}
	return runstore.New(cfg.General.DatabasePath)
}

// buildWorkflow wires the remote client, citation engine, and store
// into a workflow that reports progress on stderr.
func buildWorkflow(cfg *config.Config, store *runstore.Store) (*workflow.Workflow, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}

	client, err := agent.NewClient(agent.ClientConfig{
		BaseURL:           cfg.Agent.BaseURL,
		APIKey:            cfg.APIKey,
		AgentName:         cfg.Agent.Name,
		ThinkingSummaries: cfg.Agent.ThinkingSummaries,
	})
	if err != nil {
		return nil, err
	}

	var resolver *citations.Resolver
	if cfg.Citations.ResolveRedirects {
		resolver = citations.NewResolverWithIndicator(cfg.ResolveTimeout(), cfg.Citations.RedirectIndicator)
	}
	engine := citations.NewEngine(resolver)

	wf := workflow.New(client, store, nil, engine, workflow.Config{
		PollInterval: cfg.PollInterval(),
		PollTimeout:  cfg.PollTimeout(),
	})
	wf.OnStatus = func(message string) {
		fmt.Fprintln(os.Stderr, message)
	}
	return wf, nil
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	var notifiers []notify.Notifier
	if cfg.Notify.Desktop {
		notifiers = append(notifiers, notify.NewDesktopNotifier(true))
	}
	if cfg.Notify.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notify.SlackWebhook))
	}
	if len(notifiers) == 0 {
		return notify.NoopNotifier{}
	}
	return notify.NewMultiNotifier(notifiers...)
}

// interruptContext cancels on SIGINT/SIGTERM so a poll loop can record
// the run as interrupted before the process exits.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func sendNotification(cfg *config.Config, run *domain.Run) {
	if err := buildNotifier(cfg).Send(notify.ForRun(run)); err != nil {
		fmt.Fprintf(os.Stderr, "notify: %v\n", err)
	}
}

func printOutcome(run *domain.Run) {
	switch run.Status {
	case domain.StatusCompleted:
		if run.HasReport {
			fmt.Println(run.ReportText)
		}
		fmt.Fprintf(os.Stderr, "\nRun %s v%d completed.\n", run.RunID, run.Version)
		if run.Usage != nil {
			fmt.Fprintf(os.Stderr, "Usage: %s ($%.2f)\n", run.Usage, run.Usage.Cost())
		}
	case domain.StatusInterrupted:
		fmt.Fprintf(os.Stderr, "\nRun %s v%d interrupted. Resume with: research-orch resume %s\n",
			run.RunID, run.Version, run.RunID)
	default:
		fmt.Fprintf(os.Stderr, "\nRun %s v%d finished with status %s\n", run.RunID, run.Version, run.Status)
	}
}

func runNew(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	wf, err := buildWorkflow(cfg, store)
	if err != nil {
		return err
	}

	constraints := domain.Constraints{
		Timeframe:  newTimeframe,
		Region:     newRegion,
		MaxWords:   newMaxWords,
		FocusAreas: domain.ParseFocusAreas(newFocus),
	}

	ctx, cancel := interruptContext()
	defer cancel()

	fmt.Fprintf(os.Stderr, "Starting research: %s\n", args[0])
	run, err := wf.Start(ctx, args[0], newQuestions, constraints)
	if err != nil {
		return err
	}

	sendNotification(cfg, run)
	printOutcome(run)
	return nil
}

func runRevise(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	wf, err := buildWorkflow(cfg, store)
	if err != nil {
		return err
	}

	ctx, cancel := interruptContext()
	defer cancel()

	run, err := wf.Revise(ctx, args[0], reviseFeedback, domain.Constraints{})
	if err != nil {
		if errors.Is(err, workflow.ErrNotCompleted) {
			return fmt.Errorf("run %s is not completed yet; resume it first", args[0])
		}
		return err
	}

	sendNotification(cfg, run)
	printOutcome(run)
	return nil
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	wf, err := buildWorkflow(cfg, store)
	if err != nil {
		return err
	}

	ctx, cancel := interruptContext()
	defer cancel()

	run, err := wf.Resume(ctx, args[0])
	if err != nil {
		if errors.Is(err, workflow.ErrAlreadyCompleted) {
			return fmt.Errorf("run %s is already completed; use show or revise", args[0])
		}
		return err
	}

	sendNotification(cfg, run)
	printOutcome(run)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var run *domain.Run
	if showVersion > 0 {
		run, err = store.LoadVersion(args[0], showVersion)
	} else {
		run, err = store.LoadLatest(args[0])
	}
	if errors.Is(err, runstore.ErrNotFound) {
		return fmt.Errorf("run %s not found", args[0])
	}
	if err != nil {
		return err
	}

	if showRaw {
		fmt.Print(run.ReportText)
		return nil
	}

	fmt.Printf("Run:     %s v%d\n", run.RunID, run.Version)
	fmt.Printf("Topic:   %s\n", run.Topic())
	fmt.Printf("Status:  %s\n", run.Status)
	fmt.Printf("Created: %s\n", humanize.Time(run.CreatedAt))
	if run.Feedback != "" {
		fmt.Printf("Feedback: %s\n", run.Feedback)
	}
	if run.Usage != nil {
		fmt.Printf("Usage:   %s ($%.2f)\n", run.Usage, run.Usage.Cost())
	}
	if run.HasReport {
		fmt.Printf("\n%s\n", run.ReportText)
	} else {
		fmt.Println("\n(no report yet)")
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	metas, err := store.ListAll()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tTOPIC\tSTATUS\tVER\tCOST\tCREATED")
	for _, meta := range metas {
		status := "-"
		if entry := meta.VersionEntry(meta.LatestVersion); entry != nil {
			status = string(entry.Status)
		}
		var cost float64
		for _, v := range meta.Versions {
			if v.Usage != nil {
				cost += v.Usage.Cost()
			}
		}
		topic := meta.Topic
		if len(topic) > 50 {
			topic = topic[:47] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t$%.2f\t%s\n",
			meta.RunID, topic, status, meta.LatestVersion, cost, humanize.Time(meta.CreatedAt))
	}
	w.Flush()

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	metas, err := store.ListAll()
	if err != nil {
		return err
	}

	counts := map[domain.Status]int{}
	var cost float64
	for _, meta := range metas {
		if entry := meta.VersionEntry(meta.LatestVersion); entry != nil {
			counts[entry.Status]++
		}
		for _, v := range meta.Versions {
			if v.Usage != nil {
				cost += v.Usage.Cost()
			}
		}
	}

	fmt.Printf("Runs: %d total | %d running | %d completed | %d failed | %d interrupted | $%.2f spent\n",
		len(metas),
		counts[domain.StatusPending]+counts[domain.StatusRunning],
		counts[domain.StatusCompleted],
		counts[domain.StatusFailed]+counts[domain.StatusCancelled],
		counts[domain.StatusInterrupted],
		cost)

	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	wf, err := buildWorkflow(cfg, store)
	if err != nil {
		return err
	}

	resumer := &notifyingResumer{wf: wf, cfg: cfg}
	watcher, err := scheduler.NewWatcher(store, resumer, watchSchedule)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", watchSchedule, err)
	}

	ctx, cancel := interruptContext()
	defer cancel()

	fmt.Fprintf(os.Stderr, "Watching for unfinished runs (schedule %q, next sweep %s)\n",
		watchSchedule, humanize.Time(watcher.NextRun()))

	watcher.Sweep(ctx)
	watcher.Start(ctx)
	return nil
}

// notifyingResumer sends a completion notification after each resumed run
type notifyingResumer struct {
	wf  *workflow.Workflow
	cfg *config.Config
}

func (r *notifyingResumer) Resume(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := r.wf.Resume(ctx, runID)
	if err != nil {
		return nil, err
	}
	sendNotification(r.cfg, run)
	return run, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	port := servePort
	if port == 0 {
		port = cfg.Web.Port
	}

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)
	server := api.NewServer(store, addr)

	fmt.Printf("Serving run API at http://%s\n", addr)
	return server.Start()
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	p := tea.NewProgram(tui.NewModel(store), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
