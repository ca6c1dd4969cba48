package provider

import (
	"context"
	"unicode/utf8"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/pkg/firecrawl"
)

const firecrawlName = "firecrawl"

// firecrawlSnippetCap bounds how much scraped page content one result may
// contribute, so a single long page cannot drown out the other providers in
// the consolidation prompt.
const firecrawlSnippetCap = 2000

type firecrawlProvider struct {
	client firecrawl.Client
}

// NewFirecrawl wraps a Firecrawl search client as an evidence provider. It
// asks the search endpoint for inline markdown so results carry page content,
// not just result snippets.
func NewFirecrawl(c firecrawl.Client) Provider {
	return &firecrawlProvider{client: c}
}

func (p *firecrawlProvider) Name() string { return firecrawlName }

func (p *firecrawlProvider) Search(ctx context.Context, q Query) ([]model.EvidenceItem, error) {
	resp, err := p.client.Search(ctx, firecrawl.SearchRequest{
		Query:         q.Terms(),
		Limit:         3,
		Location:      "Portugal",
		ScrapeOptions: &firecrawl.ScrapeOptions{Formats: []string{"markdown"}},
	})
	if err != nil {
		return nil, Classify(firecrawlName, err)
	}

	var items []model.EvidenceItem
	for _, r := range resp.Data.Web {
		snippet := r.Markdown
		if len(snippet) > firecrawlSnippetCap {
			cut := firecrawlSnippetCap
			for cut > 0 && !utf8.RuneStart(snippet[cut]) {
				cut--
			}
			snippet = snippet[:cut]
		}
		if snippet == "" {
			snippet = r.Description
		}
		if snippet == "" && r.Title == "" {
			continue
		}
		items = append(items, model.TextEvidence{
			Provider: firecrawlName,
			Title:    r.Title,
			URL:      r.URL,
			Snippet:  snippet,
		})
	}
	return items, nil
}
