package lossrun

import "strings"

// Report is the structured form of a loss run: one policy and its losses.
// Every field may be empty; a chunk that mentions nothing yields Empty().
type Report struct {
	PolicyNumber string `json:"policy_number"`
	InsuredName  string `json:"insured_name"`
	Losses       []Loss `json:"losses"`
}

// Loss is a single claim line. ClaimNumber is the natural key used for dedup.
type Loss struct {
	ClaimNumber string `json:"claim_number"`
	DateOfLoss  string `json:"date_of_loss"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

// Empty returns the canonical empty report. Losses is non-nil so it
// serializes as [] rather than null.
func Empty() *Report {
	return &Report{Losses: []Loss{}}
}

// Key returns the dedup key for a loss. An empty key means the loss is never
// treated as a duplicate.
func (l Loss) Key() string {
	return strings.TrimSpace(l.ClaimNumber)
}

// IsEmpty reports whether the report carries no information at all.
func (r *Report) IsEmpty() bool {
	if r == nil {
		return true
	}
	return strings.TrimSpace(r.PolicyNumber) == "" &&
		strings.TrimSpace(r.InsuredName) == "" &&
		len(r.Losses) == 0
}

// Clone returns a deep copy so callers can hand the report to collaborators
// without sharing the losses slice.
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	out := &Report{
		PolicyNumber: r.PolicyNumber,
		InsuredName:  r.InsuredName,
		Losses:       make([]Loss, len(r.Losses)),
	}
	copy(out.Losses, r.Losses)
	return out
}
