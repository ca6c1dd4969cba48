package consolidate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
)

// systemPrompt is the static instruction block. It must stay byte-identical
// across calls so the prompt cache can serve it.
const systemPrompt = `You consolidate contact records for Portuguese institutions from web search evidence.

Rules:
- Propose a value only when it appears in the evidence. Never invent, complete, or guess values.
- When sources conflict, pick the best supported value and list every provider whose evidence backs it.
- Keep values exactly as written in the evidence. Do not translate or reformat them.
- Abstain with null when the evidence is silent or too ambiguous to decide.
- Respond with a single JSON object and nothing else: one key per requested field, each mapping to {"value": string, "providers": [provider ids], "note": string} or null.

Field meanings:
- direction: the person or role leading the institution (diretor, diretora, presidente).
- email: the institution's general contact e-mail address.
- phone: the main telephone number.
- address: the street address (morada).
- postal_code: the Portuguese postal code, formato 1234-567.`

// buildUserPrompt renders the varying half of the conversation: the current
// record, the evidence grouped by provider, and the requested fields.
func buildUserPrompt(inst *model.Institution, targets []model.FieldKey, evidence model.EvidenceSet) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Institution: %s\n\n", inst.Name)

	b.WriteString("Current record:\n")
	for _, k := range targets {
		v := inst.Field(k)
		if v.Absent() {
			fmt.Fprintf(&b, "- %s: (absent)\n", k)
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", k, v.Value)
	}

	b.WriteString("\nEvidence by provider:\n")
	names := make([]string, 0, len(evidence))
	for name := range evidence {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pe := evidence[name]
		fmt.Fprintf(&b, "\n## %s\n", name)
		if pe.Failure != nil {
			fmt.Fprintf(&b, "(failed: %s)\n", pe.Failure.Kind)
			continue
		}
		if len(pe.Items) == 0 {
			b.WriteString("(no results)\n")
			continue
		}
		for i, item := range pe.Items {
			fmt.Fprintf(&b, "%d. %s\n", i+1, item.Text())
			if u := item.SourceURL(); u != "" {
				fmt.Fprintf(&b, "   %s\n", u)
			}
		}
	}

	keys := make([]string, len(targets))
	for i, k := range targets {
		keys[i] = string(k)
	}
	fmt.Fprintf(&b, "\nConsolidate the fields: %s.\n", strings.Join(keys, ", "))

	return b.String()
}

// fieldProposal is the per-field entry of the model's response contract.
type fieldProposal struct {
	Value     string   `json:"value"`
	Providers []string `json:"providers"`
	Note      string   `json:"note"`
}

// decodeProposals parses the model's answer into one proposal (or abstention)
// per requested field. Anything outside the contract is an error; the caller
// turns it into LLMMalformedOutput.
func decodeProposals(text string, targets []model.FieldKey) (map[model.FieldKey]*fieldProposal, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, eris.New("empty response")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, eris.Wrap(err, "decode response object")
	}

	allowed := make(map[model.FieldKey]bool, len(targets))
	for _, k := range targets {
		allowed[k] = true
	}

	out := make(map[model.FieldKey]*fieldProposal, len(raw))
	for key, msg := range raw {
		k := model.FieldKey(key)
		if !allowed[k] {
			return nil, eris.Errorf("response names unrequested field %q", key)
		}
		if string(bytes.TrimSpace(msg)) == "null" {
			out[k] = nil
			continue
		}

		var p fieldProposal
		dec := json.NewDecoder(bytes.NewReader(msg))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return nil, eris.Wrapf(err, "decode field %q", key)
		}
		out[k] = &p
	}
	return out, nil
}

// cleanJSON extracts a JSON object from text that may carry markdown code
// fences or prose around it.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
