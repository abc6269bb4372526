// Package cost estimates the USD cost of generation calls from token usage.
package cost

import (
	"github.com/sells-group/claims-cli/internal/config"
)

// Calculator computes costs for generation API usage.
type Calculator struct {
	models map[string]config.ModelPricing
}

// NewCalculator creates a Calculator with the given per-model pricing.
func NewCalculator(pricing config.PricingConfig) *Calculator {
	return &Calculator{models: pricing.Models}
}

// Known reports whether pricing is configured for model.
func (c *Calculator) Known(model string) bool {
	_, ok := c.models[model]
	return ok
}

// Generation computes the cost of one call. Unknown models cost 0.
func (c *Calculator) Generation(model string, input, output int64) float64 {
	rate, ok := c.models[model]
	if !ok {
		return 0
	}
	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	return inCost + outCost
}

// Usage accumulates token counts and cost across several calls.
type Usage struct {
	Calls        int     `json:"calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	USD          float64 `json:"usd"`
}

// Add records one call against u.
func (u *Usage) Add(c *Calculator, model string, input, output int64) {
	u.Calls++
	u.InputTokens += input
	u.OutputTokens += output
	u.USD += c.Generation(model, input, output)
}
