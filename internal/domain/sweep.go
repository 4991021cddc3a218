package domain

import "time"

// JobClass is one scheduled sweep cadence
type JobClass string

const (
	SweepDaily     JobClass = "daily"
	SweepMonthly   JobClass = "monthly"
	SweepQuarterly JobClass = "quarterly"
	SweepAnnual    JobClass = "annual"
)

// DocumentOutcome is the per-document result inside a sweep report
type DocumentOutcome struct {
	Key     DocumentKey `json:"key"`
	Outcome ChangeType  `json:"outcome"`
	Err     string      `json:"error,omitempty"`
}

// SweepReport aggregates one sweep's per-document outcomes. It is handed
// to the notification dispatcher once, at sweep end.
type SweepReport struct {
	Class      JobClass          `json:"class"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
	Outcomes   []DocumentOutcome `json:"outcomes"`
}

// Changed returns the outcomes that represent an actual document change
func (r *SweepReport) Changed() []DocumentOutcome {
	var out []DocumentOutcome
	for _, o := range r.Outcomes {
		switch o.Outcome {
		case ChangeNew, ChangeMinor, ChangeRevision, ChangeMajor:
			out = append(out, o)
		}
	}
	return out
}

// ErrorCount returns how many documents failed during the sweep
func (r *SweepReport) ErrorCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != "" {
			n++
		}
	}
	return n
}
