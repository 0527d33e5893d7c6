package citations

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hochfrequenz/deep-research-orchestrator/internal/domain"
)

var (
	// Sources section headers - supports multiple forms the agent emits:
	// - **Sources:** (bold)
	// - ## Sources (markdown heading)
	// - Sources: (plain)
	// The section body runs until the next heading-like line or end of text.
	sourcesSectionRegex = regexp.MustCompile(`(?i)(?:^|\n)(?:\*\*Sources:\*\*|## Sources|Sources:)[ \t]*\n([\s\S]*?)(?:\n##|\n\*\*[A-Z]|\z)`)

	// Bibliography entries like: 1. [Title](https://example.com)
	sourceEntryRegex = regexp.MustCompile(`(\d+)\.\s*\[([^\]]+)\]\(([^)]+)\)`)

	// Inline markers like [cite: 3] or [cite: 3, 7]
	citeMarkerRegex = regexp.MustCompile(`\[cite:\s*([\d,\s]+)\]`)

	// Bare [N] references; a following "(" means it is already a link
	bareRefRegex = regexp.MustCompile(`\[(\d+)\]`)

	// Accidental duplicate URL right after a citation link: [N](url)(url2)
	duplicateURLRegex = regexp.MustCompile(`(\[\d+\]\([^)]+\))\(https?://[^)]+\)`)

	// Patterns that strip an existing sources section from the document tail
	removeSectionRegexes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\n\*\*Sources:\*\*[ \t]*\n[\s\S]*\z`),
		regexp.MustCompile(`(?i)\n## Sources[ \t]*\n[\s\S]*\z`),
		regexp.MustCompile(`(?i)\nSources:[ \t]*\n[\s\S]*\z`),
	}
)

// Result is the output of processing a report's citations
type Result struct {
	Text    string
	Sources domain.SourceMap
	Errors  []string
}

// Engine rewrites citations in agent-produced markdown. A nil resolver
// disables redirect resolution.
type Engine struct {
	resolver *Resolver
}

// NewEngine creates an Engine with the given redirect resolver
func NewEngine(resolver *Resolver) *Engine {
	return &Engine{resolver: resolver}
}

// Process runs the full citation pipeline:
//  1. Parse the sources section
//  2. Resolve redirect URLs (when a resolver is configured)
//  3. Normalize inline citations to [N](url)
//  4. Replace the sources section with a canonical one
//  5. Validate cross-references
//
// Process never fails on malformed input; worst case it returns the text
// unchanged plus diagnostic findings.
func (e *Engine) Process(ctx context.Context, reportText string) Result {
	sources := parseSources(reportText)

	if len(sources) == 0 {
		return Result{
			Text:    reportText,
			Sources: domain.SourceMap{},
			Errors:  []string{"no sources section found"},
		}
	}

	if e.resolver != nil {
		e.resolver.ResolveAll(ctx, sources)
	}

	text := normalizeInlineCitations(reportText, sources)
	text = removeSourcesSection(text)
	text += rebuildSourcesSection(sources)

	return Result{
		Text:    text,
		Sources: sources,
		Errors:  validateCitations(text, sources),
	}
}

// parseSources extracts the sources section into an ordinal -> Source map
func parseSources(reportText string) domain.SourceMap {
	sources := domain.SourceMap{}

	match := sourcesSectionRegex.FindStringSubmatch(reportText)
	if match == nil {
		return sources
	}

	for _, m := range sourceEntryRegex.FindAllStringSubmatch(match[1], -1) {
		sources[m[1]] = domain.Source{Title: m[2], URL: m[3]}
	}
	return sources
}

// normalizeInlineCitations rewrites [cite: N, M] markers and bare [N]
// references into markdown links against the source map
func normalizeInlineCitations(text string, sources domain.SourceMap) string {
	text = citeMarkerRegex.ReplaceAllStringFunc(text, func(marker string) string {
		nums := citeMarkerRegex.FindStringSubmatch(marker)[1]
		var parts []string
		for _, n := range strings.Split(nums, ",") {
			n = strings.TrimSpace(n)
			if n == "" {
				continue
			}
			if src, ok := sources[n]; ok {
				parts = append(parts, fmt.Sprintf("[%s](%s)", n, src.BestURL()))
			} else {
				// Keep unknown ordinals as bare text
				parts = append(parts, fmt.Sprintf("[%s]", n))
			}
		}
		return strings.Join(parts, ", ")
	})

	text = replaceBareRefs(text, sources)

	// The agent sometimes appends the URL again after a link
	text = duplicateURLRegex.ReplaceAllString(text, "$1")

	return text
}

// replaceBareRefs links bare [N] references that are not already links.
// RE2 has no lookahead, so the "not followed by (" check is done by
// inspecting the byte after each match.
func replaceBareRefs(text string, sources domain.SourceMap) string {
	matches := bareRefRegex.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if end < len(text) && text[end] == '(' {
			continue // already a link
		}
		n := text[m[2]:m[3]]
		src, ok := sources[n]
		if !ok {
			continue
		}
		b.WriteString(text[last:start])
		fmt.Fprintf(&b, "[%s](%s)", n, src.BestURL())
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

// removeSourcesSection strips an existing sources section from the tail
func removeSourcesSection(text string) string {
	for _, re := range removeSectionRegexes {
		text = re.ReplaceAllString(text, "")
	}
	return strings.TrimRight(text, " \t\n")
}

// rebuildSourcesSection renders a canonical ## Sources block, entries
// ordered by numeric ordinal
func rebuildSourcesSection(sources domain.SourceMap) string {
	if len(sources) == 0 {
		return ""
	}

	lines := []string{"", "## Sources", ""}
	for _, num := range sortedOrdinals(sources) {
		src := sources[num]
		lines = append(lines, fmt.Sprintf("%s. [%s](%s)", num, src.Title, src.BestURL()))
	}
	return strings.Join(lines, "\n")
}

// validateCitations collects non-fatal findings: references without
// sources, sources without URLs, and sources never referenced in-body
func validateCitations(text string, sources domain.SourceMap) []string {
	var errors []string

	refs := make(map[string]bool)
	for _, m := range bareRefRegex.FindAllStringSubmatch(text, -1) {
		refs[m[1]] = true
	}

	for _, ref := range sortedKeys(refs) {
		if _, ok := sources[ref]; !ok {
			errors = append(errors, fmt.Sprintf("citation [%s] references missing source", ref))
		}
	}

	for _, num := range sortedOrdinals(sources) {
		if sources[num].URL == "" {
			errors = append(errors, fmt.Sprintf("source %s missing URL", num))
		}
	}

	var unused []string
	for _, num := range sortedOrdinals(sources) {
		if !refs[num] {
			unused = append(unused, num)
		}
	}
	if len(unused) > 0 {
		errors = append(errors, fmt.Sprintf("unused sources: [%s]", strings.Join(unused, ", ")))
	}

	return errors
}

// sortedOrdinals returns map keys sorted by numeric value, not string order
func sortedOrdinals(sources domain.SourceMap) []string {
	nums := make([]string, 0, len(sources))
	for n := range sources {
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool {
		a, _ := strconv.Atoi(nums[i])
		b, _ := strconv.Atoi(nums[j])
		return a < b
	})
	return nums
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})
	return keys
}
