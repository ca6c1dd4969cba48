package provider

import (
	"context"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/pkg/brave"
)

const braveName = "brave"

type braveProvider struct {
	client brave.Client
}

// NewBrave wraps a Brave web search client as an evidence provider.
func NewBrave(c brave.Client) Provider {
	return &braveProvider{client: c}
}

func (p *braveProvider) Name() string { return braveName }

func (p *braveProvider) Search(ctx context.Context, q Query) ([]model.EvidenceItem, error) {
	resp, err := p.client.WebSearch(ctx, q.Terms(),
		brave.WithCount(5),
		brave.WithCountry("PT"),
	)
	if err != nil {
		return nil, Classify(braveName, err)
	}

	var items []model.EvidenceItem
	for _, r := range resp.Web.Results {
		if r.Description == "" && r.Title == "" {
			continue
		}
		items = append(items, model.TextEvidence{
			Provider: braveName,
			Title:    r.Title,
			URL:      r.URL,
			Snippet:  r.Description,
		})
	}
	return items, nil
}
