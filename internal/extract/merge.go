package extract

import (
	"strings"

	"github.com/dgallion1/lossrun/internal/lossrun"
)

// Merger folds per-chunk reports into one. The first non-blank policy number
// and insured name win; losses are kept in arrival order with later repeats of
// a claim number dropped. Losses without a claim number are never deduplicated.
// A Merger is not safe for concurrent use.
type Merger struct {
	out  *lossrun.Report
	seen map[string]struct{}
}

func NewMerger() *Merger {
	return &Merger{
		out:  lossrun.Empty(),
		seen: make(map[string]struct{}),
	}
}

// Add folds r into the merged report. nil is ignored.
func (m *Merger) Add(r *lossrun.Report) {
	if r == nil {
		return
	}
	if strings.TrimSpace(m.out.PolicyNumber) == "" && strings.TrimSpace(r.PolicyNumber) != "" {
		m.out.PolicyNumber = r.PolicyNumber
	}
	if strings.TrimSpace(m.out.InsuredName) == "" && strings.TrimSpace(r.InsuredName) != "" {
		m.out.InsuredName = r.InsuredName
	}
	for _, loss := range r.Losses {
		key := loss.Key()
		if key != "" {
			if _, dup := m.seen[key]; dup {
				continue
			}
			m.seen[key] = struct{}{}
		}
		m.out.Losses = append(m.out.Losses, loss)
	}
}

// Result returns a copy of the merged report so far.
func (m *Merger) Result() *lossrun.Report {
	return m.out.Clone()
}

// Merge combines reports in order.
func Merge(reports []*lossrun.Report) *lossrun.Report {
	m := NewMerger()
	for _, r := range reports {
		m.Add(r)
	}
	return m.Result()
}
