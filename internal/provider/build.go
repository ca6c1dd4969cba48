package provider

import (
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/pkg/brave"
	"github.com/sells-group/enrich-cli/pkg/firecrawl"
	"github.com/sells-group/enrich-cli/pkg/googlesearch"
	"github.com/sells-group/enrich-cli/pkg/jina"
	"github.com/sells-group/enrich-cli/pkg/perplexity"
	"github.com/sells-group/enrich-cli/pkg/tavily"
)

// FromConfig builds the registry of providers that have credentials. A
// provider without a key is disabled for the run, not an error.
func FromConfig(cfg *config.Config) *Registry {
	r := NewRegistry()

	if cfg.Tavily.Key != "" {
		r.Register(NewTavily(tavily.NewClient(cfg.Tavily.Key,
			tavily.WithBaseURL(cfg.Tavily.BaseURL))))
	}
	if cfg.Brave.Key != "" {
		r.Register(NewBrave(brave.NewClient(cfg.Brave.Key,
			brave.WithBaseURL(cfg.Brave.BaseURL))))
	}
	if cfg.Google.Key != "" && cfg.Google.EngineID != "" {
		r.Register(NewGoogleSearch(googlesearch.NewClient(cfg.Google.Key, cfg.Google.EngineID,
			googlesearch.WithBaseURL(cfg.Google.BaseURL))))
	}
	if cfg.Perplexity.Key != "" {
		r.Register(NewPerplexity(perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model))))
	}
	if cfg.Jina.Key != "" {
		r.Register(NewJina(jina.NewClient(cfg.Jina.Key,
			jina.WithBaseURL(cfg.Jina.SearchBaseURL))))
	}
	if cfg.Firecrawl.Key != "" {
		r.Register(NewFirecrawl(firecrawl.NewClient(cfg.Firecrawl.Key,
			firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))))
	}

	zap.L().Info("provider: registry built", zap.Strings("providers", r.List()))
	return r
}
