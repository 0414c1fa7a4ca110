package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dgallion1/lossrun/internal/lossrun"
)

// Summary is aggregate statistics over the losses of one report.
type Summary struct {
	PolicyNumber        string          `json:"policy_number"`
	InsuredName         string          `json:"insured_name"`
	TotalClaims         int             `json:"total_claims"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	AverageAmount       decimal.Decimal `json:"average_amount"`
	MaxAmount           decimal.Decimal `json:"max_amount"`
	MinAmount           decimal.Decimal `json:"min_amount"`
	ZeroAmountClaims    int             `json:"zero_amount_claims"`
	UniqueDescriptions  int             `json:"unique_descriptions"`
	ClaimsByDate        map[string]int  `json:"claims_by_date"`
	MostRecentClaimDate string          `json:"most_recent_claim_date,omitempty"`
}

// CleanAmount parses a money string such as "$1,234.50". Currency symbols,
// thousands separators and whitespace are ignored; anything unparseable is 0.
func CleanAmount(s string) decimal.Decimal {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(s)
	cleaned = strings.Join(strings.Fields(cleaned), "")
	if cleaned == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Summarize computes the summary for r. A nil or loss-free report yields zero
// amounts.
func Summarize(r *lossrun.Report) Summary {
	s := Summary{ClaimsByDate: map[string]int{}}
	if r == nil {
		return s
	}
	s.PolicyNumber = r.PolicyNumber
	s.InsuredName = r.InsuredName
	s.TotalClaims = len(r.Losses)
	if s.TotalClaims == 0 {
		return s
	}

	descriptions := make(map[string]struct{})
	var latest time.Time
	for i, loss := range r.Losses {
		amt := CleanAmount(loss.Amount)
		s.TotalAmount = s.TotalAmount.Add(amt)
		if i == 0 || amt.GreaterThan(s.MaxAmount) {
			s.MaxAmount = amt
		}
		if i == 0 || amt.LessThan(s.MinAmount) {
			s.MinAmount = amt
		}
		if amt.IsZero() {
			s.ZeroAmountClaims++
		}
		descriptions[loss.Description] = struct{}{}

		if date := strings.TrimSpace(loss.DateOfLoss); date != "" {
			s.ClaimsByDate[date]++
			if t, ok := parseDate(date); ok && t.After(latest) {
				latest = t
				s.MostRecentClaimDate = date
			}
		}
	}
	s.UniqueDescriptions = len(descriptions)
	s.AverageAmount = s.TotalAmount.Div(decimal.NewFromInt(int64(s.TotalClaims))).Round(2)
	return s
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"01/02/06",
	"1/2/06",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Markdown renders the summary for humans.
func (s Summary) Markdown() string {
	var sb strings.Builder
	sb.WriteString("# Analytics Summary\n\n")
	if s.PolicyNumber != "" {
		fmt.Fprintf(&sb, "**Policy Number:** %s\n", s.PolicyNumber)
	}
	fmt.Fprintf(&sb, "**Total Claims:** %d\n", s.TotalClaims)
	fmt.Fprintf(&sb, "**Total Loss Amount:** $%s\n", s.TotalAmount.StringFixed(2))
	fmt.Fprintf(&sb, "**Average Loss Amount:** $%s\n", s.AverageAmount.StringFixed(2))
	fmt.Fprintf(&sb, "**Largest Loss:** $%s\n", s.MaxAmount.StringFixed(2))
	fmt.Fprintf(&sb, "**Smallest Loss:** $%s\n", s.MinAmount.StringFixed(2))
	fmt.Fprintf(&sb, "**Zero-Amount Claims:** %d\n", s.ZeroAmountClaims)
	fmt.Fprintf(&sb, "**Unique Descriptions:** %d\n", s.UniqueDescriptions)
	if s.MostRecentClaimDate != "" {
		fmt.Fprintf(&sb, "**Most Recent Claim Date:** %s\n", s.MostRecentClaimDate)
	}

	if len(s.ClaimsByDate) > 0 {
		sb.WriteString("\n## Claims by Date\n\n| Date | Claims |\n|------|--------|\n")
		dates := make([]string, 0, len(s.ClaimsByDate))
		for d := range s.ClaimsByDate {
			dates = append(dates, d)
		}
		sort.Strings(dates)
		for _, d := range dates {
			fmt.Fprintf(&sb, "| %s | %d |\n", d, s.ClaimsByDate[d])
		}
	}
	return sb.String()
}
