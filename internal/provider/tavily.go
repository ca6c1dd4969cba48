package provider

import (
	"context"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/pkg/tavily"
)

const tavilyName = "tavily"

type tavilyProvider struct {
	client tavily.Client
}

// NewTavily wraps a Tavily client as an evidence provider.
func NewTavily(c tavily.Client) Provider {
	return &tavilyProvider{client: c}
}

func (p *tavilyProvider) Name() string { return tavilyName }

func (p *tavilyProvider) Search(ctx context.Context, q Query) ([]model.EvidenceItem, error) {
	resp, err := p.client.Search(ctx, tavily.SearchRequest{
		Query:         q.Terms(),
		SearchDepth:   "basic",
		MaxResults:    5,
		IncludeAnswer: true,
		Country:       "portugal",
	})
	if err != nil {
		return nil, Classify(tavilyName, err)
	}

	var items []model.EvidenceItem
	if resp.Answer != "" {
		items = append(items, model.TextEvidence{
			Provider: tavilyName,
			Snippet:  resp.Answer,
		})
	}
	for _, r := range resp.Results {
		if r.Content == "" && r.Title == "" {
			continue
		}
		items = append(items, model.TextEvidence{
			Provider: tavilyName,
			Title:    r.Title,
			URL:      r.URL,
			Snippet:  r.Content,
		})
	}
	return items, nil
}
