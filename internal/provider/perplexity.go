package provider

import (
	"context"
	"fmt"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/pkg/perplexity"
)

const perplexityName = "perplexity"

type perplexityProvider struct {
	client perplexity.Client
}

// NewPerplexity wraps a Perplexity client as an evidence provider. Unlike the
// plain search providers it asks a focused question and returns the grounded
// answer plus its source pages.
func NewPerplexity(c perplexity.Client) Provider {
	return &perplexityProvider{client: c}
}

func (p *perplexityProvider) Name() string { return perplexityName }

func (p *perplexityProvider) Search(ctx context.Context, q Query) ([]model.EvidenceItem, error) {
	question := fmt.Sprintf(
		"Quais são os contactos oficiais da instituição %q em Portugal? "+
			"Indica direção, e-mail, telefone, morada e código postal, citando as fontes.",
		q.Institution)
	if q.Locality != "" {
		question += fmt.Sprintf(" A instituição fica perto de: %s.", q.Locality)
	}

	temp := 0.1
	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages:    []perplexity.Message{{Role: "user", Content: question}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, Classify(perplexityName, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, nil
	}

	answerURL := ""
	if len(resp.Citations) > 0 {
		answerURL = resp.Citations[0]
	}

	items := []model.EvidenceItem{
		model.TextEvidence{
			Provider: perplexityName,
			Title:    q.Institution,
			URL:      answerURL,
			Snippet:  resp.Choices[0].Message.Content,
		},
	}
	if len(resp.Citations) > 1 {
		for _, c := range resp.Citations[1:] {
			items = append(items, model.StructuredHint{
				Provider: perplexityName,
				Key:      "fonte",
				Value:    c,
				URL:      c,
			})
		}
	}
	return items, nil
}
