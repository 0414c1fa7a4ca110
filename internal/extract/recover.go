package extract

import (
	"errors"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dgallion1/lossrun/internal/lossrun"
)

// ErrUnrecoverable marks a completion whose content could not be turned into
// a report even after repair.
var ErrUnrecoverable = errors.New("response could not be recovered as JSON")

// State is a step of the recovery state machine.
type State int

const (
	StateSeekingStart State = iota
	StateBalancingBraces
	StateTrimmingCommas
	StateParsing

	// Terminal states.
	StateNotJSON       // output does not open with '{'; treated as "nothing found"
	StateUnrecoverable // no object could be isolated or parsed
	StateRecovered
)

func (s State) String() string {
	switch s {
	case StateSeekingStart:
		return "seeking_start"
	case StateBalancingBraces:
		return "balancing_braces"
	case StateTrimmingCommas:
		return "trimming_trailing_commas"
	case StateParsing:
		return "parsing"
	case StateNotJSON:
		return "not_json"
	case StateUnrecoverable:
		return "unrecoverable"
	case StateRecovered:
		return "recovered"
	default:
		return "unknown"
	}
}

func (s State) terminal() bool {
	return s >= StateNotJSON
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

type recovery struct {
	state  State
	text   string
	report *lossrun.Report
}

func (r *recovery) step() {
	switch r.state {
	case StateSeekingStart:
		r.text = strings.TrimSpace(r.text)
		if !strings.HasPrefix(r.text, "{") {
			r.state = StateNotJSON
			return
		}
		end := strings.LastIndexByte(r.text, '}')
		if end < 0 {
			r.state = StateUnrecoverable
			return
		}
		r.text = r.text[:end+1]
		r.state = StateBalancingBraces

	case StateBalancingBraces:
		r.text = firstObject(r.text)
		r.state = StateTrimmingCommas

	case StateTrimmingCommas:
		r.text = trailingCommaRe.ReplaceAllString(r.text, "$1")
		r.state = StateParsing

	case StateParsing:
		if !gjson.Valid(r.text) {
			r.state = StateUnrecoverable
			return
		}
		root := gjson.Parse(r.text)
		if !root.IsObject() {
			r.state = StateUnrecoverable
			return
		}
		r.report = coerceReport(root)
		r.state = StateRecovered
	}
}

func (r *recovery) runUntil(stop func(State) bool) {
	for !r.state.terminal() && !stop(r.state) {
		r.step()
	}
}

// Isolate runs the repair steps without parsing and returns the candidate JSON
// text together with the state it stopped in: StateParsing when a candidate
// is ready, or a terminal state.
func Isolate(raw string) (string, State) {
	r := &recovery{state: StateSeekingStart, text: raw}
	r.runUntil(func(s State) bool { return s == StateParsing })
	return r.text, r.state
}

// Recover turns raw completion content into a report. Content that does not
// start with '{' yields the empty report. Content that starts like JSON but
// cannot be repaired yields nil.
func Recover(raw string) *lossrun.Report {
	r := &recovery{state: StateSeekingStart, text: raw}
	r.runUntil(func(State) bool { return false })
	switch r.state {
	case StateNotJSON:
		return lossrun.Empty()
	case StateRecovered:
		return r.report
	default:
		return nil
	}
}

// firstObject cuts s after the brace that closes its first top-level object.
// Braces inside JSON strings are ignored. If the object never closes, s is
// returned unchanged.
func firstObject(s string) string {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return s
}

func coerceReport(root gjson.Result) *lossrun.Report {
	rep := &lossrun.Report{
		PolicyNumber: scalar(root.Get("policy_number")),
		InsuredName:  scalar(root.Get("insured_name")),
		Losses:       []lossrun.Loss{},
	}
	losses := root.Get("losses")
	switch {
	case losses.IsArray():
		losses.ForEach(func(_, v gjson.Result) bool {
			if v.IsObject() {
				rep.Losses = append(rep.Losses, coerceLoss(v))
			}
			return true
		})
	case losses.IsObject():
		rep.Losses = append(rep.Losses, coerceLoss(losses))
	}
	return rep
}

func coerceLoss(v gjson.Result) lossrun.Loss {
	return lossrun.Loss{
		ClaimNumber: scalar(v.Get("claim_number")),
		DateOfLoss:  scalar(v.Get("date_of_loss")),
		Amount:      scalar(v.Get("amount")),
		Description: scalar(v.Get("description")),
	}
}

// scalar renders a JSON scalar as a string. Numbers keep their source text;
// null, objects and arrays become "".
func scalar(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number, gjson.True, gjson.False:
		return v.Raw
	default:
		return ""
	}
}
