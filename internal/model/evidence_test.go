package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvidenceSetAllFailed(t *testing.T) {
	t.Parallel()

	t.Run("empty set counts as failed", func(t *testing.T) {
		t.Parallel()
		assert.True(t, EvidenceSet{}.AllFailed())
	})

	t.Run("only failure markers", func(t *testing.T) {
		t.Parallel()
		s := EvidenceSet{
			"tavily": {Failure: &ProviderFailure{Provider: "tavily", Kind: FailureTimeout, Reason: "deadline exceeded"}},
			"brave":  {Failure: &ProviderFailure{Provider: "brave", Kind: FailureAuthFailed, Reason: "401"}},
		}
		assert.True(t, s.AllFailed())
	})

	t.Run("empty item lists count as failed", func(t *testing.T) {
		t.Parallel()
		s := EvidenceSet{"tavily": {Items: nil}}
		assert.True(t, s.AllFailed())
	})

	t.Run("one provider with items", func(t *testing.T) {
		t.Parallel()
		s := EvidenceSet{
			"tavily": {Failure: &ProviderFailure{Provider: "tavily", Kind: FailureRateLimited, Reason: "429"}},
			"brave":  {Items: []EvidenceItem{TextEvidence{Provider: "brave", Snippet: "Rua Central 12"}}},
		}
		assert.False(t, s.AllFailed())
	})
}

func TestEvidenceSetItems(t *testing.T) {
	t.Parallel()

	s := EvidenceSet{
		"tavily": {Items: []EvidenceItem{
			TextEvidence{Provider: "tavily", Title: "Colégio A", Snippet: "contacto@colegioa.pt"},
			StructuredHint{Provider: "tavily", Key: "phone", Value: "912345678"},
		}},
		"brave": {Failure: &ProviderFailure{Provider: "brave", Kind: FailureTimeout, Reason: "timeout"}},
	}

	items := s.Items()
	require.Len(t, items, 2)
	for _, it := range items {
		assert.Equal(t, "tavily", it.ProviderID())
	}

	failures := s.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, FailureTimeout, failures[0].Kind)
}

func TestTextEvidenceText(t *testing.T) {
	t.Parallel()

	withTitle := TextEvidence{Provider: "brave", Title: "Colégio B", Snippet: "Tel: 912 345 678"}
	assert.Equal(t, "Colégio B\nTel: 912 345 678", withTitle.Text())

	noTitle := TextEvidence{Provider: "brave", Snippet: "Tel: 912 345 678"}
	assert.Equal(t, "Tel: 912 345 678", noTitle.Text())
}

func TestStructuredHintText(t *testing.T) {
	t.Parallel()

	h := StructuredHint{Provider: "googlesearch", Key: "address", Value: "Rua Central 12, Porto"}
	assert.Equal(t, "address: Rua Central 12, Porto", h.Text())
	assert.Empty(t, h.SourceURL())
}
