package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/deep-research-orchestrator/internal/domain"
)

// RunSource provides the data the dashboard displays
type RunSource interface {
	ListAll() ([]*domain.RunMetadata, error)
	LoadVersion(runID string, version int) (*domain.Run, error)
}

// RunView is one row in the run list
type RunView struct {
	RunID     string
	Topic     string
	Status    domain.Status
	Version   int
	CreatedAt time.Time
	CostUSD   float64
}

// Model is the TUI application model
type Model struct {
	source RunSource

	runs     []RunView
	loadErr  error
	detail   *domain.Run
	showing  bool
	scroll   int
	selected int

	width  int
	height int

	lastRefresh time.Time
}

// NewModel creates a new TUI model
func NewModel(source RunSource) Model {
	return Model{source: source}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), tickCmd())
}

// TickMsg triggers a refresh
type TickMsg time.Time

// runsLoadedMsg carries the refreshed run list
type runsLoadedMsg struct {
	runs []RunView
	err  error
}

// detailLoadedMsg carries a loaded run version
type detailLoadedMsg struct {
	run *domain.Run
	err error
}

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m Model) refreshCmd() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		metas, err := source.ListAll()
		if err != nil {
			return runsLoadedMsg{err: err}
		}
		return runsLoadedMsg{runs: metasToViews(metas)}
	}
}

func (m Model) loadDetailCmd(runID string, version int) tea.Cmd {
	source := m.source
	return func() tea.Msg {
		run, err := source.LoadVersion(runID, version)
		return detailLoadedMsg{run: run, err: err}
	}
}

func metasToViews(metas []*domain.RunMetadata) []RunView {
	views := make([]RunView, 0, len(metas))
	for _, meta := range metas {
		view := RunView{
			RunID:     meta.RunID,
			Topic:     meta.Topic,
			Version:   meta.LatestVersion,
			CreatedAt: meta.CreatedAt,
		}
		if entry := meta.VersionEntry(meta.LatestVersion); entry != nil {
			view.Status = entry.Status
		}
		for _, v := range meta.Versions {
			if v.Usage != nil {
				view.CostUSD += v.Usage.Cost()
			}
		}
		views = append(views, view)
	}
	return views
}
