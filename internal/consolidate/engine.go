// Package consolidate reduces gathered evidence into candidate field values
// with confidence and provenance. One model call per institution arbitrates
// every pending field; the engine then verifies support against the raw
// evidence, counts corroborating providers itself, and builds the Observações
// provenance. The model's own claims about agreement are never trusted.
package consolidate

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/pkg/anthropic"
)

// Engine is the consolidation core. It is stateless across calls and safe to
// share between pipeline workers.
type Engine struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	policy    *Policy
	nowFunc   func() time.Time
}

// New builds an engine on the configured model. A nil policy falls back to
// the config's global disagreement rule.
func New(client anthropic.Client, cfg *config.Config, policy *Policy) *Engine {
	if policy == nil {
		policy = DefaultPolicy(cfg.Enrich.DisagreementPolicy)
	}
	maxTokens := int64(cfg.Anthropic.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &Engine{
		client:    client,
		model:     cfg.Anthropic.Model,
		maxTokens: maxTokens,
		policy:    policy,
		nowFunc:   time.Now,
	}
}

// Consolidate proposes values for the institution's pending fields from the
// gathered evidence. An all-failed evidence set or a fully verified record
// short-circuits to an empty candidate without calling the model. The engine
// never touches the store; the returned candidate is the only output.
func (e *Engine) Consolidate(ctx context.Context, inst *model.Institution, evidence model.EvidenceSet) (*model.CandidateRecord, error) {
	cand := model.NewCandidateRecord(inst.Name)

	if evidence.AllFailed() {
		zap.L().Info("consolidate: no usable evidence",
			zap.String("institution", inst.Name),
			zap.Int("failures", len(evidence.Failures())),
		)
		return cand, nil
	}

	targets := pendingFields(inst)
	if len(targets) == 0 {
		return cand, nil
	}

	temp := 0.0
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System: []anthropic.SystemBlock{{
			Text:         systemPrompt,
			CacheControl: &anthropic.CacheControl{TTL: "5m"},
		}},
		Messages: []anthropic.Message{
			{Role: "user", Content: buildUserPrompt(inst, targets, evidence)},
		},
		Temperature: &temp,
	})
	if err != nil {
		return nil, &Error{Kind: LLMUnavailable, Err: err}
	}
	resp.Usage.LogCost(e.model, inst.Name)

	proposals, err := decodeProposals(resp.Text(), targets)
	if err != nil {
		return nil, &Error{Kind: LLMMalformedOutput, Err: err}
	}

	now := e.nowFunc()
	var supportURLs []string
	for _, k := range targets {
		p := proposals[k]
		if p == nil || strings.TrimSpace(p.Value) == "" {
			continue
		}
		out := e.arbitrate(k, p.Value, inst.Field(k), evidence)
		if out.disagreement != nil {
			cand.Disagreements = append(cand.Disagreements, *out.disagreement)
		}
		if out.value == "" {
			continue
		}
		cand.Propose(k, out.value, out.confidence, now)
		supportURLs = append(supportURLs, out.urls...)
	}

	e.proposeNotes(cand, inst, supportURLs, now)
	return cand, nil
}

// arbitration is the engine's verdict on one proposed field value.
type arbitration struct {
	value        string
	confidence   model.Confidence
	urls         []string
	disagreement *model.Disagreement
}

// arbitrate applies the engine-side checks to one proposal: canonical form,
// evidence support, provider corroboration, and conflict handling.
func (e *Engine) arbitrate(k model.FieldKey, raw string, current model.FieldValue, evidence model.EvidenceSet) arbitration {
	value := CanonicalValue(k, raw)
	if value == "" {
		return arbitration{}
	}

	backers, urls := supporters(k, value, evidence)
	if len(backers) == 0 {
		zap.L().Warn("consolidate: unsupported value discarded",
			zap.String("field", string(k)),
			zap.String("value", value),
		)
		return arbitration{}
	}

	conflicts := conflictingValues(k, value, evidence)
	currentConflict := !current.Absent() && CompareKey(k, current.Value) != CompareKey(k, value)

	if len(conflicts) == 0 && !currentConflict {
		conf := model.ConfidenceMedium
		if len(backers) >= 2 {
			conf = model.ConfidenceHigh
		}
		return arbitration{value: value, confidence: conf, urls: urls}
	}

	d := &model.Disagreement{Field: k, Values: disagreementValues(value, conflicts, current, currentConflict)}

	if e.policy.For(k).OnDisagreement == PolicyPreferMajority &&
		hasMajority(k, len(backers), conflicts, currentConflict, evidence) {
		// The contested value wins, but never with full confidence.
		return arbitration{value: value, confidence: model.ConfidenceMedium, urls: urls, disagreement: d}
	}
	return arbitration{disagreement: d}
}

// proposeNotes rebuilds the Observações value from provenance URLs and this
// run's disagreement markers. A verified notes column is never touched.
func (e *Engine) proposeNotes(cand *model.CandidateRecord, inst *model.Institution, urls []string, now time.Time) {
	notes := inst.Field(model.FieldNotes)
	if notes.Confidence == model.ConfidenceVerified {
		return
	}
	v := buildNotes(notes.Value, urls, cand.Disagreements)
	if v == "" || v == notes.Value {
		return
	}
	cand.Propose(model.FieldNotes, v, model.ConfidenceMedium, now)
}

// pendingFields returns the fields the model should consolidate: everything
// enrichable except the engine-owned notes column and fields a human already
// verified.
func pendingFields(inst *model.Institution) []model.FieldKey {
	var out []model.FieldKey
	for _, k := range model.EnrichableFields {
		if k == model.FieldNotes {
			continue
		}
		if inst.Field(k).Confidence == model.ConfidenceVerified {
			continue
		}
		out = append(out, k)
	}
	return out
}

// supporters returns the providers whose evidence contains the value, plus
// the source URLs of the supporting items.
func supporters(k model.FieldKey, value string, evidence model.EvidenceSet) ([]string, []string) {
	var names, urls []string
	for name, pe := range evidence {
		if pe.Failure != nil {
			continue
		}
		backed := false
		for _, item := range pe.Items {
			if !Supports(k, item.Text(), value) {
				continue
			}
			backed = true
			if u := item.SourceURL(); u != "" {
				urls = append(urls, u)
			}
		}
		if backed {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, urls
}

// conflictingValues returns other values of the field kind asserted by
// providers whose evidence does not also contain the proposed one. A page
// listing the proposed number alongside a fax line corroborates; a provider
// that only carries a different number conflicts.
func conflictingValues(k model.FieldKey, value string, evidence model.EvidenceSet) []string {
	key := CompareKey(k, value)
	seen := map[string]bool{}
	var out []string

	for _, pe := range evidence {
		if pe.Failure != nil || len(pe.Items) == 0 {
			continue
		}
		var found []string
		backed := false
		for _, item := range pe.Items {
			if Supports(k, item.Text(), value) {
				backed = true
				break
			}
			found = append(found, ExtractValues(k, item.Text())...)
		}
		if backed {
			continue
		}
		for _, v := range found {
			if CompareKey(k, v) != key && !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}

	sort.Strings(out)
	return out
}

// hasMajority reports whether the proposed value has strictly more backing
// providers than every alternative, counting a conflicting stored value as
// one vote. Ties withhold, per the default policy.
func hasMajority(k model.FieldKey, votes int, conflicts []string, currentConflict bool, evidence model.EvidenceSet) bool {
	if currentConflict && votes <= 1 {
		return false
	}
	for _, alt := range conflicts {
		altBackers, _ := supporters(k, alt, evidence)
		if votes <= len(altBackers) {
			return false
		}
	}
	return true
}

func disagreementValues(value string, conflicts []string, current model.FieldValue, currentConflict bool) []string {
	seen := map[string]bool{value: true}
	values := []string{value}
	for _, v := range conflicts {
		if !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	}
	if currentConflict && !seen[current.Value] {
		values = append(values, current.Value)
	}
	sort.Strings(values)
	return values
}
