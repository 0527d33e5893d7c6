package prompts

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/deep-research-orchestrator/internal/domain"
)

// Loader manages prompt templates with override support.
type Loader struct {
	overrideDirs []string // Directories to check for overrides (in priority order)
	cache        map[string]*template.Template
	metaCache    map[string]*TemplateMeta
	mu           sync.RWMutex
}

// TemplateMeta holds frontmatter metadata for prompt templates.
type TemplateMeta struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// NewLoader creates a loader with the given override directories.
// Directories are checked in order; first match wins.
func NewLoader(overrideDirs ...string) *Loader {
	return &Loader{
		overrideDirs: overrideDirs,
		cache:        make(map[string]*template.Template),
		metaCache:    make(map[string]*TemplateMeta),
	}
}

// DefaultLoader creates a loader with standard override paths:
// 1. Project-local: .research-orchestrator/prompts/
// 2. User config: ~/.config/research-orchestrator/prompts/
func DefaultLoader(projectRoot string) *Loader {
	home, _ := os.UserHomeDir()
	dirs := []string{}

	if projectRoot != "" {
		dirs = append(dirs, filepath.Join(projectRoot, ".research-orchestrator", "prompts"))
	}
	dirs = append(dirs, filepath.Join(home, ".config", "research-orchestrator", "prompts"))

	return NewLoader(dirs...)
}

// loadContent loads raw content from override dirs or embedded FS.
func (l *Loader) loadContent(path string) ([]byte, error) {
	for _, dir := range l.overrideDirs {
		fullPath := filepath.Join(dir, path)
		if data, err := os.ReadFile(fullPath); err == nil {
			return data, nil
		}
	}

	// Fall back to embedded
	return fs.ReadFile(embeddedFS, path)
}

// parseFrontmatter splits content into frontmatter and body.
func parseFrontmatter(content []byte) (*TemplateMeta, string, error) {
	str := string(content)

	if !strings.HasPrefix(str, "---\n") {
		return nil, str, nil // No frontmatter
	}

	end := strings.Index(str[4:], "\n---\n")
	if end == -1 {
		return nil, str, nil // Malformed, treat as no frontmatter
	}

	frontmatter := str[4 : 4+end]
	body := str[4+end+5:] // Skip closing "---\n"

	var meta TemplateMeta
	if err := yaml.Unmarshal([]byte(frontmatter), &meta); err != nil {
		return nil, "", fmt.Errorf("parse frontmatter: %w", err)
	}

	return &meta, body, nil
}

// LoadTemplate loads and parses a template by path (e.g., "templates/initial.md").
func (l *Loader) LoadTemplate(path string) (*template.Template, *TemplateMeta, error) {
	l.mu.RLock()
	if tmpl, ok := l.cache[path]; ok {
		meta := l.metaCache[path]
		l.mu.RUnlock()
		return tmpl, meta, nil
	}
	l.mu.RUnlock()

	content, err := l.loadContent(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", path, err)
	}

	meta, body, err := parseFrontmatter(content)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}

	tmpl, err := template.New(path).Parse(body)
	if err != nil {
		return nil, nil, fmt.Errorf("compile template %s: %w", path, err)
	}

	l.mu.Lock()
	l.cache[path] = tmpl
	l.metaCache[path] = meta
	l.mu.Unlock()

	return tmpl, meta, nil
}

// Execute loads and executes a template with the given data.
func (l *Loader) Execute(path string, data interface{}) (string, error) {
	tmpl, _, err := l.LoadTemplate(path)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute %s: %w", path, err)
	}

	return buf.String(), nil
}

// ClearCache clears the template cache (used when overrides change).
func (l *Loader) ClearCache() {
	l.mu.Lock()
	l.cache = make(map[string]*template.Template)
	l.metaCache = make(map[string]*TemplateMeta)
	l.mu.Unlock()
}

// InitialData holds template variables for the initial research prompt.
type InitialData struct {
	Topic       string
	Questions   string
	Constraints string
}

// RevisionData holds template variables for the revision prompt.
type RevisionData struct {
	Feedback    string
	Constraints string
}

// BuildInitialPrompt renders the initial research prompt.
// Questions default to a single "What is {topic}?" when none are given;
// absent constraint lines are omitted from the block.
func (l *Loader) BuildInitialPrompt(topic string, questions []string, constraints domain.Constraints) (string, error) {
	questionsText := "- What is " + topic + "?"
	if len(questions) > 0 {
		lines := make([]string, len(questions))
		for i, q := range questions {
			lines[i] = "- " + q
		}
		questionsText = strings.Join(lines, "\n")
	}

	return l.Execute("templates/initial.md", InitialData{
		Topic:       topic,
		Questions:   questionsText,
		Constraints: FormatConstraints(constraints),
	})
}

// BuildRevisionPrompt renders the revision prompt. Constraints are only
// included when at least one is set.
func (l *Loader) BuildRevisionPrompt(feedback string, constraints domain.Constraints) (string, error) {
	data := RevisionData{Feedback: feedback}
	if !constraints.IsZero() {
		data.Constraints = FormatConstraints(constraints)
	}
	return l.Execute("templates/revision.md", data)
}

// FormatConstraints renders a constraints block, one line per set field.
func FormatConstraints(c domain.Constraints) string {
	var lines []string
	if c.Timeframe != "" {
		lines = append(lines, "- Time period: "+c.Timeframe)
	}
	if c.Region != "" {
		lines = append(lines, "- Geographic focus: "+c.Region)
	}
	if c.MaxWords > 0 {
		lines = append(lines, fmt.Sprintf("- Maximum length: %d words", c.MaxWords))
	}
	if len(c.FocusAreas) > 0 {
		lines = append(lines, "- Focus areas: "+strings.Join(c.FocusAreas, ", "))
	}
	if len(lines) == 0 {
		return "None specified"
	}
	return strings.Join(lines, "\n")
}

// Global default loader (initialized lazily)
var (
	defaultLoader     *Loader
	defaultLoaderOnce sync.Once
)

// GetDefaultLoader returns the global default loader.
func GetDefaultLoader() *Loader {
	defaultLoaderOnce.Do(func() {
		defaultLoader = DefaultLoader("")
	})
	return defaultLoader
}
