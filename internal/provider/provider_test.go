package provider

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/enrich-cli/internal/model"
)

// staticProvider implements Provider for registry tests.
type staticProvider struct {
	name string
}

func (s *staticProvider) Name() string { return s.name }
func (s *staticProvider) Search(_ context.Context, _ Query) ([]model.EvidenceItem, error) {
	return nil, nil
}

func TestQueryTerms(t *testing.T) {
	t.Parallel()

	q := Query{Institution: "Colégio Bonança"}
	assert.Equal(t, "Colégio Bonança contactos", q.Terms())

	q.Locality = "Vila Nova de Gaia"
	assert.Equal(t, "Colégio Bonança contactos Vila Nova de Gaia", q.Terms())
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	assert.NotNil(t, r)
	assert.Empty(t, r.List())
	assert.Zero(t, r.Len())
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&staticProvider{name: "tavily"})

	got := r.Get("tavily")
	assert.NotNil(t, got)
	assert.Equal(t, "tavily", got.Name())
	assert.Nil(t, r.Get("nonexistent"))
}

func TestRegistry_ListSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&staticProvider{name: "tavily"})
	r.Register(&staticProvider{name: "brave"})
	r.Register(&staticProvider{name: "jina"})

	assert.Equal(t, []string{"brave", "jina", "tavily"}, r.List())

	all := r.All()
	assert.Len(t, all, 3)
	assert.Equal(t, "brave", all[0].Name())
	assert.Equal(t, "tavily", all[2].Name())
}

func TestRegistry_Register_Overwrites(t *testing.T) {
	r := NewRegistry()
	p1 := &staticProvider{name: "tavily"}
	p2 := &staticProvider{name: "tavily"}

	r.Register(p1)
	r.Register(p2)

	assert.Len(t, r.List(), 1)
	assert.Same(t, p2, r.Get("tavily").(*staticProvider))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register(&staticProvider{name: "provider"})
		}()
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Get("provider")
			_ = r.List()
		}()
	}
	wg.Wait()

	assert.Len(t, r.List(), 1)
}
