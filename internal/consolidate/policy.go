package consolidate

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Disagreement policies. Keep withholds a contested value and leaves the
// stored one alone; prefer-majority takes the value with strictly more
// supporting providers than any alternative.
const (
	PolicyKeep           = "keep"
	PolicyPreferMajority = "prefer-majority"
)

// FieldPolicy configures consolidation behavior for one field.
type FieldPolicy struct {
	OnDisagreement string `yaml:"on_disagreement"`
}

// Policy is the per-field consolidation policy, usually loaded from YAML.
type Policy struct {
	Defaults FieldPolicy            `yaml:"defaults"`
	Fields   map[string]FieldPolicy `yaml:"fields"`
}

// DefaultPolicy returns a policy applying one disagreement rule to every
// field, used when no policy file is configured.
func DefaultPolicy(onDisagreement string) *Policy {
	if onDisagreement == "" {
		onDisagreement = PolicyKeep
	}
	return &Policy{Defaults: FieldPolicy{OnDisagreement: onDisagreement}}
}

// LoadPolicy reads a field policy from a YAML file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "consolidate: read policy %s", path)
	}

	var wrapper struct {
		Policy Policy `yaml:"policy"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "consolidate: parse policy")
	}

	p := &wrapper.Policy
	if p.Defaults.OnDisagreement == "" {
		p.Defaults.OnDisagreement = PolicyKeep
	}
	if err := validRule(p.Defaults.OnDisagreement); err != nil {
		return nil, err
	}
	for key, fp := range p.Fields {
		if !model.ValidField(model.FieldKey(key)) {
			return nil, eris.Errorf("consolidate: policy names unknown field %q", key)
		}
		if fp.OnDisagreement == "" {
			fp.OnDisagreement = p.Defaults.OnDisagreement
			p.Fields[key] = fp
			continue
		}
		if err := validRule(fp.OnDisagreement); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// For returns the policy for a field, falling back to the defaults.
func (p *Policy) For(k model.FieldKey) FieldPolicy {
	if fp, ok := p.Fields[string(k)]; ok {
		return fp
	}
	return p.Defaults
}

func validRule(rule string) error {
	switch rule {
	case PolicyKeep, PolicyPreferMajority:
		return nil
	default:
		return eris.Errorf("consolidate: unknown disagreement policy %q", rule)
	}
}
