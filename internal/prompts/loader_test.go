package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hochfrequenz/deep-research-orchestrator/internal/domain"
)

func TestLoadTemplate_Embedded(t *testing.T) {
	loader := NewLoader()

	tmpl, meta, err := loader.LoadTemplate("templates/initial.md")
	if err != nil {
		t.Fatal(err)
	}
	if tmpl == nil {
		t.Fatal("template is nil")
	}
	if meta == nil || meta.ID != "initial" {
		t.Errorf("meta = %+v, want id=initial", meta)
	}
}

func TestBuildInitialPrompt_Defaults(t *testing.T) {
	loader := NewLoader()

	prompt, err := loader.BuildInitialPrompt("solid state batteries", nil, domain.Constraints{})
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(prompt, "solid state batteries") {
		t.Error("topic missing from prompt")
	}
	if !strings.Contains(prompt, "- What is solid state batteries?") {
		t.Error("default question missing")
	}
	if !strings.Contains(prompt, "None specified") {
		t.Error("empty constraints should render as None specified")
	}
	if !strings.Contains(prompt, "[cite: N]") {
		t.Error("citation format contract missing")
	}
	if !strings.Contains(prompt, "## Sources") {
		t.Error("sources section contract missing")
	}
}

func TestBuildInitialPrompt_QuestionsAndConstraints(t *testing.T) {
	loader := NewLoader()

	prompt, err := loader.BuildInitialPrompt(
		"grid storage",
		[]string{"What are the dominant chemistries?", "How have costs changed?"},
		domain.Constraints{
			Timeframe:  "2020-2025",
			MaxWords:   3000,
			FocusAreas: []string{"economics", "policy"},
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(prompt, "- What are the dominant chemistries?") {
		t.Error("explicit question missing")
	}
	if strings.Contains(prompt, "What is grid storage?") {
		t.Error("default question should be replaced by explicit ones")
	}
	if !strings.Contains(prompt, "- Time period: 2020-2025") {
		t.Error("timeframe constraint missing")
	}
	if !strings.Contains(prompt, "- Maximum length: 3000 words") {
		t.Error("max words constraint missing")
	}
	if !strings.Contains(prompt, "- Focus areas: economics, policy") {
		t.Error("focus areas missing")
	}
	if strings.Contains(prompt, "Geographic focus") {
		t.Error("unset region should be omitted")
	}
}

func TestBuildRevisionPrompt(t *testing.T) {
	loader := NewLoader()

	prompt, err := loader.BuildRevisionPrompt("add cost data", domain.Constraints{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prompt, "add cost data") {
		t.Error("feedback missing from prompt")
	}
	if strings.Contains(prompt, "Updated Constraints") {
		t.Error("constraints block should be omitted when empty")
	}

	prompt, err = loader.BuildRevisionPrompt("shorten it", domain.Constraints{MaxWords: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prompt, "Updated Constraints") {
		t.Error("constraints block missing")
	}
	if !strings.Contains(prompt, "- Maximum length: 1000 words") {
		t.Error("updated max words missing")
	}
}

func TestLoader_OverrideDirWins(t *testing.T) {
	dir := t.TempDir()
	overridePath := filepath.Join(dir, "templates")
	if err := os.MkdirAll(overridePath, 0o755); err != nil {
		t.Fatal(err)
	}
	custom := "---\nid: initial\n---\nCustom prompt about {{.Topic}}\n"
	if err := os.WriteFile(filepath.Join(overridePath, "initial.md"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(dir)
	prompt, err := loader.BuildInitialPrompt("fusion", nil, domain.Constraints{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prompt, "Custom prompt about fusion") {
		t.Errorf("override not used:\n%s", prompt)
	}
}

func TestLoader_MissingOverrideFallsBackToEmbedded(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "does-not-exist"))

	prompt, err := loader.BuildInitialPrompt("fusion", nil, domain.Constraints{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prompt, "expert research analyst") {
		t.Error("embedded template not used as fallback")
	}
}

func TestLoader_ClearCachePicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	overridePath := filepath.Join(dir, "templates")
	if err := os.MkdirAll(overridePath, 0o755); err != nil {
		t.Fatal(err)
	}
	write := func(body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(overridePath, "initial.md"), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("v1 {{.Topic}}")
	loader := NewLoader(dir)

	first, err := loader.Execute("templates/initial.md", InitialData{Topic: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if first != "v1 x" {
		t.Errorf("first = %q", first)
	}

	write("v2 {{.Topic}}")

	// Cached until invalidated
	cached, _ := loader.Execute("templates/initial.md", InitialData{Topic: "x"})
	if cached != "v1 x" {
		t.Errorf("cached = %q, want v1 x", cached)
	}

	loader.ClearCache()
	fresh, _ := loader.Execute("templates/initial.md", InitialData{Topic: "x"})
	if fresh != "v2 x" {
		t.Errorf("fresh = %q, want v2 x", fresh)
	}
}

func TestFormatConstraints_AllFields(t *testing.T) {
	got := FormatConstraints(domain.Constraints{
		Timeframe:  "2024",
		Region:     "EU",
		MaxWords:   500,
		FocusAreas: []string{"supply chain"},
	})

	want := "- Time period: 2024\n- Geographic focus: EU\n- Maximum length: 500 words\n- Focus areas: supply chain"
	if got != want {
		t.Errorf("FormatConstraints = %q, want %q", got, want)
	}
}
