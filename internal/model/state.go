package model

// RunState tracks one institution's progress through an enrichment run.
type RunState string

const (
	StatePending       RunState = "pending"
	StateSearching     RunState = "searching"
	StateConsolidating RunState = "consolidating"
	StateMerged        RunState = "merged"
	StateSkipped       RunState = "skipped"
)

// SkipRecord names an institution the run left untouched and why.
type SkipRecord struct {
	Institution string `json:"institution"`
	Reason      string `json:"reason"`
}
