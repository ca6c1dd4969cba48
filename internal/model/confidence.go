package model

// Confidence is the ordered trust level attached to a field value. It gates
// overwrites during merge: an automated update may only replace a value with
// one of strictly greater confidence.
type Confidence int

const (
	// ConfidenceNone marks an absent or never-enriched field.
	ConfidenceNone Confidence = iota
	// ConfidenceLow marks a value loaded from the workbook without provenance.
	ConfidenceLow
	// ConfidenceMedium marks a value supported by a single provider.
	ConfidenceMedium
	// ConfidenceHigh marks a value corroborated by two or more providers.
	ConfidenceHigh
	// ConfidenceVerified marks a human-entered value the pipeline never touches.
	ConfidenceVerified
)

var confidenceNames = map[Confidence]string{
	ConfidenceNone:     "none",
	ConfidenceLow:      "low",
	ConfidenceMedium:   "medium",
	ConfidenceHigh:     "high",
	ConfidenceVerified: "verified",
}

// String returns the canonical lowercase name used in the meta sheet and logs.
func (c Confidence) String() string {
	if s, ok := confidenceNames[c]; ok {
		return s
	}
	return "none"
}

// ParseConfidence maps a stored name back to its level. Unknown or empty
// input parses to ConfidenceNone so stale meta rows degrade instead of failing.
func ParseConfidence(s string) Confidence {
	for c, name := range confidenceNames {
		if name == s {
			return c
		}
	}
	return ConfidenceNone
}

// Beats reports whether c strictly outranks other. This is the single
// comparison the merge policy and its tests share.
func (c Confidence) Beats(other Confidence) bool {
	return c > other
}
