package provider

import (
	"context"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/pkg/jina"
)

const jinaName = "jina"

type jinaProvider struct {
	client jina.Client
}

// NewJina wraps a Jina AI search client as an evidence provider.
func NewJina(c jina.Client) Provider {
	return &jinaProvider{client: c}
}

func (p *jinaProvider) Name() string { return jinaName }

func (p *jinaProvider) Search(ctx context.Context, q Query) ([]model.EvidenceItem, error) {
	resp, err := p.client.Search(ctx, q.Terms(), jina.WithCountry("PT"))
	if err != nil {
		return nil, Classify(jinaName, err)
	}

	var items []model.EvidenceItem
	for _, r := range resp.Data {
		snippet := r.Content
		if snippet == "" {
			snippet = r.Description
		}
		if snippet == "" && r.Title == "" {
			continue
		}
		items = append(items, model.TextEvidence{
			Provider: jinaName,
			Title:    r.Title,
			URL:      r.URL,
			Snippet:  snippet,
		})
	}
	return items, nil
}
