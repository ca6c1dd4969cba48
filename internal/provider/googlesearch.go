package provider

import (
	"context"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/pkg/googlesearch"
)

const googleName = "googlesearch"

type googleProvider struct {
	client googlesearch.Client
}

// NewGoogleSearch wraps a Google Custom Search client as an evidence provider.
func NewGoogleSearch(c googlesearch.Client) Provider {
	return &googleProvider{client: c}
}

func (p *googleProvider) Name() string { return googleName }

func (p *googleProvider) Search(ctx context.Context, q Query) ([]model.EvidenceItem, error) {
	resp, err := p.client.Search(ctx, q.Terms(),
		googlesearch.WithNum(5),
		googlesearch.WithCountry("pt"),
	)
	if err != nil {
		return nil, Classify(googleName, err)
	}

	var items []model.EvidenceItem
	for _, item := range resp.Items {
		if item.Snippet == "" && item.Title == "" {
			continue
		}
		items = append(items, model.TextEvidence{
			Provider: googleName,
			Title:    item.Title,
			URL:      item.Link,
			Snippet:  item.Snippet,
		})
	}
	return items, nil
}
