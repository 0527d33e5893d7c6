package domain

import "strings"

// Constraints are optional bounds on a research run
type Constraints struct {
	Timeframe  string   `json:"timeframe,omitempty"`
	Region     string   `json:"region,omitempty"`
	MaxWords   int      `json:"max_words,omitempty"`
	FocusAreas []string `json:"focus_areas,omitempty"`
}

// ParseFocusAreas splits a comma-separated focus list from user input
func ParseFocusAreas(focus string) []string {
	var areas []string
	for _, a := range strings.Split(focus, ",") {
		if a = strings.TrimSpace(a); a != "" {
			areas = append(areas, a)
		}
	}
	return areas
}

// IsZero reports whether no constraint is set
func (c Constraints) IsZero() bool {
	return c.Timeframe == "" && c.Region == "" && c.MaxWords == 0 && len(c.FocusAreas) == 0
}

// RunInputs are the original user inputs for a run, preserved unchanged
// across all revisions
type RunInputs struct {
	Topic       string      `json:"topic"`
	Constraints Constraints `json:"constraints"`
	Questions   []string    `json:"questions,omitempty"`
}
