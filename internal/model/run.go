package model

import "time"

// RunStatus represents the lifecycle state of an enrichment run.
type RunStatus string

const (
	RunStatusRunning     RunStatus = "running"
	RunStatusComplete    RunStatus = "complete"
	RunStatusInterrupted RunStatus = "interrupted"
	RunStatusAborted     RunStatus = "aborted"
)

// Run represents a single enrichment pass over a workbook.
type Run struct {
	ID         string      `json:"id"`
	Workbook   string      `json:"workbook"`
	Status     RunStatus   `json:"status"`
	Summary    *RunSummary `json:"summary,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// RunSummary holds the final counters of a run.
type RunSummary struct {
	Processed        int            `json:"processed"`
	Merged           int            `json:"merged"`
	Skipped          int            `json:"skipped"`
	FieldChanges     int            `json:"field_changes"`
	Disagreements    int            `json:"disagreements"`
	ProviderFailures map[string]int `json:"provider_failures,omitempty"`
	Skips            []SkipRecord   `json:"skips,omitempty"`
}

// AddFailure increments the failure counter for a provider.
func (s *RunSummary) AddFailure(provider string) {
	if s.ProviderFailures == nil {
		s.ProviderFailures = map[string]int{}
	}
	s.ProviderFailures[provider]++
}
