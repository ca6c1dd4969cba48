package model

import "time"

// Disagreement records that providers proposed conflicting values for a
// field, left for human review.
type Disagreement struct {
	Field  FieldKey `json:"field"`
	Values []string `json:"values"`
}

// CandidateRecord is the consolidation engine's per-institution output: one
// proposed FieldValue per field it has evidence for, plus any disagreements
// it refused to resolve. Fields the engine abstains on are simply absent
// from the map.
type CandidateRecord struct {
	Name          string                  `json:"name"`
	Fields        map[FieldKey]FieldValue `json:"fields"`
	Disagreements []Disagreement          `json:"disagreements,omitempty"`
}

// NewCandidateRecord returns an empty candidate for the institution.
func NewCandidateRecord(name string) *CandidateRecord {
	return &CandidateRecord{Name: name, Fields: map[FieldKey]FieldValue{}}
}

// Propose records a consolidated value for the field.
func (c *CandidateRecord) Propose(k FieldKey, value string, conf Confidence, now time.Time) {
	c.Fields[k] = FieldValue{
		Value:      value,
		Confidence: conf,
		Source:     SourceConsolidated,
		UpdatedAt:  now,
	}
}

// Empty reports whether the candidate proposes nothing at all.
func (c *CandidateRecord) Empty() bool {
	return len(c.Fields) == 0 && len(c.Disagreements) == 0
}
