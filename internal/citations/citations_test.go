package citations

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hochfrequenz/deep-research-orchestrator/internal/domain"
)

const sampleReport = `# Battery Storage Report

Grid-scale storage grew rapidly [cite: 1] and costs fell [cite: 1, 2].
Some analysts disagree [3].

**Sources:**
1. [Storage Outlook](https://example.com/outlook)
2. [Cost Survey](https://example.com/costs)
3. [Analyst Note](https://example.com/note)
`

func TestParseSources(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"bold header", "**Sources:**"},
		{"markdown heading", "## Sources"},
		{"plain header", "Sources:"},
		{"lowercase", "sources:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := "Body text [1].\n\n" + tt.header + "\n1. [Title One](https://a.example)\n2. [Title Two](https://b.example)\n"
			sources := parseSources(text)

			if len(sources) != 2 {
				t.Fatalf("parsed %d sources, want 2", len(sources))
			}
			if sources["1"].Title != "Title One" || sources["1"].URL != "https://a.example" {
				t.Errorf("source 1 = %+v", sources["1"])
			}
		})
	}
}

func TestParseSources_TerminatedByNextHeading(t *testing.T) {
	text := "Body.\n\n## Sources\n1. [A](https://a.example)\n\n## Appendix\n2. [B](https://b.example)\n"
	sources := parseSources(text)

	if len(sources) != 1 {
		t.Fatalf("parsed %d sources, want 1 (section should stop at next heading)", len(sources))
	}
}

func TestProcess_NoSourcesSection(t *testing.T) {
	engine := NewEngine(nil)
	text := "Just a plain report with no bibliography."

	result := engine.Process(context.Background(), text)

	if result.Text != text {
		t.Error("text should be returned unchanged")
	}
	if len(result.Sources) != 0 {
		t.Errorf("sources = %v, want empty", result.Sources)
	}
	if len(result.Errors) != 1 || result.Errors[0] != "no sources section found" {
		t.Errorf("errors = %v", result.Errors)
	}
}

func TestProcess_NormalizesCiteMarkers(t *testing.T) {
	engine := NewEngine(nil)
	result := engine.Process(context.Background(), sampleReport)

	if !strings.Contains(result.Text, "[1](https://example.com/outlook) and costs fell [1](https://example.com/outlook), [2](https://example.com/costs)") {
		t.Errorf("cite markers not normalized:\n%s", result.Text)
	}
	if !strings.Contains(result.Text, "[3](https://example.com/note)") {
		t.Errorf("bare [3] not linked:\n%s", result.Text)
	}
}

func TestProcess_UnknownOrdinalKeptBare(t *testing.T) {
	engine := NewEngine(nil)
	text := "Claims [cite: 3, 7].\n\n## Sources\n3. [Known](https://k.example)\n"

	result := engine.Process(context.Background(), text)

	if !strings.Contains(result.Text, "[3](https://k.example), [7]") {
		t.Errorf("want [3](url), [7]; got:\n%s", result.Text)
	}
}

func TestNormalize_ExistingLinkUntouched(t *testing.T) {
	sources := domain.SourceMap{"5": {Title: "T", URL: "https://real.example"}}
	text := "Already linked [5](http://x) stays."

	got := normalizeInlineCitations(text, sources)

	if got != text {
		t.Errorf("existing link modified: %q", got)
	}
}

func TestNormalize_CollapsesDuplicateURL(t *testing.T) {
	sources := domain.SourceMap{}
	text := "See [2](https://a.example)(https://b.example) here."

	got := normalizeInlineCitations(text, sources)

	if got != "See [2](https://a.example) here." {
		t.Errorf("duplicate URL not collapsed: %q", got)
	}
}

func TestProcess_RebuildsCanonicalSection(t *testing.T) {
	engine := NewEngine(nil)
	// Ordinals out of order and double digits to check numeric sort
	text := "Uses [10] and [2] and [9].\n\nSources:\n10. [Ten](https://ten.example)\n2. [Two](https://two.example)\n9. [Nine](https://nine.example)\n"

	result := engine.Process(context.Background(), text)

	idx := strings.Index(result.Text, "## Sources")
	if idx == -1 {
		t.Fatalf("no rebuilt sources section:\n%s", result.Text)
	}
	section := result.Text[idx:]
	i2 := strings.Index(section, "2. [Two]")
	i9 := strings.Index(section, "9. [Nine]")
	i10 := strings.Index(section, "10. [Ten]")
	if i2 == -1 || i9 == -1 || i10 == -1 {
		t.Fatalf("entries missing from rebuilt section:\n%s", section)
	}
	if !(i2 < i9 && i9 < i10) {
		t.Errorf("entries not numerically sorted:\n%s", section)
	}
	if strings.Contains(result.Text[:idx], "Sources:") {
		t.Error("old sources section not removed")
	}
}

func TestProcess_Idempotent(t *testing.T) {
	engine := NewEngine(nil)

	first := engine.Process(context.Background(), sampleReport)
	second := engine.Process(context.Background(), first.Text)

	if second.Text != first.Text {
		t.Errorf("process not idempotent:\nfirst:\n%s\nsecond:\n%s", first.Text, second.Text)
	}
	for num, src := range first.Sources {
		if second.Sources[num] != src {
			t.Errorf("source %s changed on reprocess: %+v != %+v", num, second.Sources[num], src)
		}
	}
}

func TestValidate_MissingSourceAndUnused(t *testing.T) {
	sources := domain.SourceMap{
		"1": {Title: "Used", URL: "https://u.example"},
		"4": {Title: "Never cited", URL: "https://n.example"},
	}
	text := "Cites [1](https://u.example) and phantom [9]."

	errors := validateCitations(text, sources)

	var missing, unused bool
	for _, e := range errors {
		if e == "citation [9] references missing source" {
			missing = true
		}
		if e == "unused sources: [4]" {
			unused = true
		}
	}
	if !missing {
		t.Errorf("missing-source error not reported: %v", errors)
	}
	if !unused {
		t.Errorf("unused-source warning not reported: %v", errors)
	}
}

func TestValidate_SourceWithoutURL(t *testing.T) {
	sources := domain.SourceMap{"2": {Title: "No link"}}
	errors := validateCitations("Refers to [2].", sources)

	found := false
	for _, e := range errors {
		if e == "source 2 missing URL" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing-URL error not reported: %v", errors)
	}
}

func TestResolver_FollowsRedirect(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer final.Close()

	redirect := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL+"/article", http.StatusFound)
	}))
	defer redirect.Close()

	r := NewResolverWithIndicator(5*time.Second, "127.0.0.1")
	got := r.Resolve(context.Background(), redirect.URL+"/grounding")

	if got != final.URL+"/article" {
		t.Errorf("Resolve = %q, want %q", got, final.URL+"/article")
	}
}

func TestResolver_FailureLeavesOriginalURL(t *testing.T) {
	// Closed server: connection refused
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	sources := domain.SourceMap{
		"1": {Title: "Broken", URL: deadURL + "/grounding-api-redirect/x"},
	}

	r := NewResolver(time.Second)
	r.ResolveAll(context.Background(), sources)

	if sources["1"].FinalURL != "" {
		t.Errorf("FinalURL = %q, want unset on failure", sources["1"].FinalURL)
	}

	// Rebuilt bibliography must fall back to the original URL
	section := rebuildSourcesSection(sources)
	if !strings.Contains(section, deadURL+"/grounding-api-redirect/x") {
		t.Errorf("rebuilt section does not use original URL:\n%s", section)
	}
}

func TestResolver_NonIndicatorURLUntouched(t *testing.T) {
	sources := domain.SourceMap{"1": {Title: "Direct", URL: "https://direct.example"}}

	r := NewResolver(time.Second)
	r.ResolveAll(context.Background(), sources)

	if sources["1"].FinalURL != "" {
		t.Errorf("FinalURL = %q, want unset for non-redirect URL", sources["1"].FinalURL)
	}
}
