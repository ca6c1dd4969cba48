package model

// FailureKind classifies why a provider contributed no evidence.
type FailureKind string

const (
	FailureRateLimited FailureKind = "rate_limited"
	FailureAuthFailed  FailureKind = "auth_failed"
	FailureTimeout     FailureKind = "timeout"
	FailureUnavailable FailureKind = "unavailable"
)

// EvidenceItem is one unit of raw provider output. Exactly one of the
// concrete types below implements it; consumers switch on the type rather
// than inspecting an untyped bag.
type EvidenceItem interface {
	ProviderID() string
	// Text returns the searchable free text of the item, used for support
	// checks and prompt assembly.
	Text() string
	// SourceURL returns the page the item was drawn from, if known.
	SourceURL() string
}

// TextEvidence is a free-text snippet returned by a search provider.
type TextEvidence struct {
	Provider string `json:"provider"`
	Title    string `json:"title,omitempty"`
	URL      string `json:"url,omitempty"`
	Snippet  string `json:"snippet"`
}

func (e TextEvidence) ProviderID() string { return e.Provider }
func (e TextEvidence) SourceURL() string  { return e.URL }

func (e TextEvidence) Text() string {
	if e.Title == "" {
		return e.Snippet
	}
	return e.Title + "\n" + e.Snippet
}

// StructuredHint is a key/value pair a provider returned in structured form,
// such as a knowledge-panel phone number.
type StructuredHint struct {
	Provider string `json:"provider"`
	Key      string `json:"key"`
	Value    string `json:"value"`
	URL      string `json:"url,omitempty"`
}

func (e StructuredHint) ProviderID() string { return e.Provider }
func (e StructuredHint) SourceURL() string  { return e.URL }
func (e StructuredHint) Text() string       { return e.Key + ": " + e.Value }

// ProviderFailure records that a provider contributed nothing and why. It is
// data, not an error: aggregation absorbs provider errors into these markers.
type ProviderFailure struct {
	Provider string      `json:"provider"`
	Kind     FailureKind `json:"kind"`
	Reason   string      `json:"reason"`
}

// ProviderEvidence is one provider's contribution to an evidence set: either
// a list of items or a failure marker, never both.
type ProviderEvidence struct {
	Items   []EvidenceItem
	Failure *ProviderFailure
}

// EvidenceSet is everything gathered for one institution in one run, keyed by
// provider id. Ephemeral: it lives only between aggregation and consolidation.
type EvidenceSet map[string]ProviderEvidence

// AllFailed reports whether every provider either failed or returned nothing.
// Consolidation short-circuits to "no change" on an all-failed set.
func (s EvidenceSet) AllFailed() bool {
	for _, pe := range s {
		if pe.Failure == nil && len(pe.Items) > 0 {
			return false
		}
	}
	return true
}

// Items flattens the set into a single slice, skipping failed providers.
func (s EvidenceSet) Items() []EvidenceItem {
	var out []EvidenceItem
	for _, pe := range s {
		if pe.Failure != nil {
			continue
		}
		out = append(out, pe.Items...)
	}
	return out
}

// Failures returns the failure markers present in the set.
func (s EvidenceSet) Failures() []ProviderFailure {
	var out []ProviderFailure
	for _, pe := range s {
		if pe.Failure != nil {
			out = append(out, *pe.Failure)
		}
	}
	return out
}
