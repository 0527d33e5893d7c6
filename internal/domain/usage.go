package domain

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Default per-million-token pricing for the deep research agent
const (
	PricePerMInput  = 2.0
	PricePerMOutput = 12.0
)

// Usage holds token counts reported by the remote agent
type Usage struct {
	InputTokens    int `json:"input_tokens"`
	OutputTokens   int `json:"output_tokens"`
	TotalTokens    int `json:"total_tokens"`
	ThinkingTokens int `json:"thinking_tokens,omitempty"`
}

// Cost returns the dollar cost of the usage at default pricing
func (u Usage) Cost() float64 {
	return float64(u.InputTokens)/1_000_000*PricePerMInput +
		float64(u.OutputTokens)/1_000_000*PricePerMOutput
}

// String formats usage and cost for display
func (u Usage) String() string {
	return fmt.Sprintf("Tokens: %s in / %s out / %s total | Cost: $%.4f",
		humanize.Comma(int64(u.InputTokens)),
		humanize.Comma(int64(u.OutputTokens)),
		humanize.Comma(int64(u.TotalTokens)),
		u.Cost())
}
