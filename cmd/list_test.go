//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/enrich-cli/internal/model"
)

func listFixture() []*model.Institution {
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

	full := model.NewInstitution("Colégio A", 1)
	full.SetField(model.FieldEmail, model.FieldValue{
		Value: "contacto@colegioa.pt", Confidence: model.ConfidenceMedium,
		Source: model.SourceConsolidated, UpdatedAt: now,
	})
	full.SetField(model.FieldPhone, model.FieldValue{
		Value: "912345678", Confidence: model.ConfidenceHigh,
		Source: model.SourceConsolidated, UpdatedAt: now,
	})

	empty := model.NewInstitution("Colégio B", 2)

	return []*model.Institution{full, empty}
}

func TestFormatInstitutionList(t *testing.T) {
	var buf bytes.Buffer
	formatInstitutionList(&buf, listFixture(), false)

	output := buf.String()
	assert.Contains(t, output, "INSTITUTION")
	assert.Contains(t, output, "E-Mail")
	assert.Contains(t, output, "Telefone")
	assert.Contains(t, output, "Colégio A")
	assert.Contains(t, output, "medium")
	assert.Contains(t, output, "high")
	assert.Contains(t, output, "2/5")
	assert.Contains(t, output, "Colégio B")
	assert.Contains(t, output, "0/5")
}

func TestFormatInstitutionList_Values(t *testing.T) {
	var buf bytes.Buffer
	formatInstitutionList(&buf, listFixture(), true)

	output := buf.String()
	assert.Contains(t, output, "contacto@colegioa.pt")
	assert.Contains(t, output, "912345678")
	assert.NotContains(t, output, "medium")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "uma morada…", truncate("uma morada comprida", 11))
	// Rune-aware: accented characters count as one.
	assert.Equal(t, "Colé…", truncate("Colégio Exemplo", 5))
}
