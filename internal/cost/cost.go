package cost

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dgallion1/lossrun/internal/extract"
)

var thousand = decimal.NewFromInt(1000)

// Price is the USD cost per 1K tokens for one model.
type Price struct {
	PromptPer1K     decimal.Decimal
	CompletionPer1K decimal.Decimal
}

func NewPrice(promptPer1K, completionPer1K float64) Price {
	return Price{
		PromptPer1K:     decimal.NewFromFloat(promptPer1K),
		CompletionPer1K: decimal.NewFromFloat(completionPer1K),
	}
}

// PriceTable maps a model name or model-name prefix to its price.
type PriceTable map[string]Price

// Lookup finds the price for model: an exact entry first, then the longest
// prefix (handles date-suffixed names like gpt-4-0613).
func (t PriceTable) Lookup(model string) (Price, bool) {
	if model == "" {
		return Price{}, false
	}
	if p, ok := t[model]; ok {
		return p, true
	}
	best := ""
	for prefix := range t {
		if len(prefix) > len(best) && strings.HasPrefix(model, prefix) {
			best = prefix
		}
	}
	if best == "" {
		return Price{}, false
	}
	return t[best], true
}

// Report is the cost of one document run.
type Report struct {
	Model            string          `json:"model"`
	PromptTokens     int64           `json:"prompt_tokens"`
	CompletionTokens int64           `json:"completion_tokens"`
	TotalTokens      int64           `json:"total_tokens"`
	PromptCost       decimal.Decimal `json:"prompt_cost"`
	CompletionCost   decimal.Decimal `json:"completion_cost"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	Priced           bool            `json:"priced"` // false when the model has no entry in the table
}

// Calculate prices usage for model. Costs are rounded to 4 decimal places; an
// unknown model costs zero with Priced unset.
func Calculate(model string, usage extract.Usage, table PriceTable) Report {
	r := Report{
		Model:            model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}
	price, ok := table.Lookup(model)
	if !ok {
		return r
	}
	prompt := decimal.NewFromInt(usage.PromptTokens).Div(thousand).Mul(price.PromptPer1K)
	completion := decimal.NewFromInt(usage.CompletionTokens).Div(thousand).Mul(price.CompletionPer1K)

	r.PromptCost = prompt.Round(4)
	r.CompletionCost = completion.Round(4)
	r.TotalCost = prompt.Add(completion).Round(4)
	r.Priced = true
	return r
}

// Markdown renders the report for humans.
func (r Report) Markdown() string {
	var sb strings.Builder
	sb.WriteString("# API Cost Report\n\n")
	if r.Model != "" {
		fmt.Fprintf(&sb, "**Model:** %s\n", r.Model)
	}
	fmt.Fprintf(&sb, "**Prompt Tokens:** %d\n", r.PromptTokens)
	fmt.Fprintf(&sb, "**Completion Tokens:** %d\n", r.CompletionTokens)
	fmt.Fprintf(&sb, "**Total Tokens:** %d\n", r.TotalTokens)
	fmt.Fprintf(&sb, "**Prompt Cost:** $%s\n", r.PromptCost.StringFixed(4))
	fmt.Fprintf(&sb, "**Completion Cost:** $%s\n", r.CompletionCost.StringFixed(4))
	fmt.Fprintf(&sb, "**Total Cost:** $%s\n", r.TotalCost.StringFixed(4))
	if !r.Priced {
		sb.WriteString("\n_No price configured for this model._\n")
	}
	return sb.String()
}
