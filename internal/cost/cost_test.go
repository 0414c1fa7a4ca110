package cost

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/lossrun/internal/extract"
)

func testTable() PriceTable {
	return PriceTable{
		"gpt-4":       NewPrice(0.03, 0.06),
		"gpt-4o":      NewPrice(0.0025, 0.01),
		"gpt-4o-mini": NewPrice(0.00015, 0.0006),
	}
}

func TestCalculate(t *testing.T) {
	r := Calculate("gpt-4", extract.Usage{PromptTokens: 500, CompletionTokens: 1500, TotalTokens: 2000}, testTable())

	assert.True(t, r.Priced)
	assert.Equal(t, "0.0150", r.PromptCost.StringFixed(4))
	assert.Equal(t, "0.0900", r.CompletionCost.StringFixed(4))
	assert.Equal(t, "0.1050", r.TotalCost.StringFixed(4))
	assert.EqualValues(t, 2000, r.TotalTokens)
}

func TestCalculate_RoundsToFourPlaces(t *testing.T) {
	r := Calculate("gpt-4o-mini", extract.Usage{PromptTokens: 1234, CompletionTokens: 567}, testTable())
	// 1.234 * 0.00015 = 0.0001851 ; 0.567 * 0.0006 = 0.0003402
	assert.Equal(t, "0.0002", r.PromptCost.String())
	assert.Equal(t, "0.0003", r.CompletionCost.String())
	assert.Equal(t, "0.0005", r.TotalCost.String())
}

func TestCalculate_UnknownModel(t *testing.T) {
	r := Calculate("mystery", extract.Usage{PromptTokens: 10, TotalTokens: 10}, testTable())
	assert.False(t, r.Priced)
	assert.True(t, r.TotalCost.IsZero())
	assert.EqualValues(t, 10, r.PromptTokens)
}

func TestLookup_LongestPrefixWins(t *testing.T) {
	table := testTable()

	p, ok := table.Lookup("gpt-4o-mini-2024-07-18")
	require.True(t, ok)
	assert.Equal(t, table["gpt-4o-mini"], p)

	p, ok = table.Lookup("gpt-4-0613")
	require.True(t, ok)
	assert.Equal(t, table["gpt-4"], p)

	_, ok = table.Lookup("")
	assert.False(t, ok)
	_, ok = PriceTable(nil).Lookup("gpt-4")
	assert.False(t, ok)
}

func TestReport_JSONAndMarkdown(t *testing.T) {
	r := Calculate("gpt-4", extract.Usage{PromptTokens: 500, CompletionTokens: 1500, TotalTokens: 2000}, testTable())

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"total_cost":"0.105"`)

	md := r.Markdown()
	assert.Contains(t, md, "# API Cost Report")
	assert.Contains(t, md, "**Total Tokens:** 2000")
	assert.Contains(t, md, "**Total Cost:** $0.1050")
	assert.NotContains(t, md, "No price configured")
}
