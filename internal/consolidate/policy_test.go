package consolidate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

func writePolicy(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestDefaultPolicy(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy("")
	assert.Equal(t, PolicyKeep, p.For(model.FieldPhone).OnDisagreement)

	p = DefaultPolicy(PolicyPreferMajority)
	assert.Equal(t, PolicyPreferMajority, p.For(model.FieldEmail).OnDisagreement)
}

func TestLoadPolicy(t *testing.T) {
	t.Parallel()

	path := writePolicy(t, `
policy:
  defaults:
    on_disagreement: prefer-majority
  fields:
    postal_code:
      on_disagreement: keep
    email: {}
`)

	p, err := LoadPolicy(path)
	require.NoError(t, err)

	assert.Equal(t, PolicyKeep, p.For(model.FieldPostalCode).OnDisagreement)
	// Explicit field without a rule inherits the defaults.
	assert.Equal(t, PolicyPreferMajority, p.For(model.FieldEmail).OnDisagreement)
	// Unlisted fields fall back to the defaults.
	assert.Equal(t, PolicyPreferMajority, p.For(model.FieldPhone).OnDisagreement)
}

func TestLoadPolicy_UnknownField(t *testing.T) {
	t.Parallel()

	path := writePolicy(t, `
policy:
  fields:
    fax:
      on_disagreement: keep
`)

	_, err := LoadPolicy(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")
}

func TestLoadPolicy_UnknownRule(t *testing.T) {
	t.Parallel()

	path := writePolicy(t, `
policy:
  defaults:
    on_disagreement: newest-wins
`)

	_, err := LoadPolicy(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown disagreement policy")
}

func TestLoadPolicy_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
