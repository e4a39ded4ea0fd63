// Package validate runs post-provisioning checks against a new account and
// aggregates the results. Which checks apply is driven by a plan document
// keyed on the account's organizational unit.
package validate

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// CheckSpec selects one check kind and the resources it inspects. Kinds
// without per-resource targets (placement, tags, alias) leave Targets empty.
type CheckSpec struct {
	Kind    string   `yaml:"kind" json:"kind"`
	Targets []string `yaml:"targets,omitempty" json:"targets,omitempty"`
}

// Plan maps organizational unit categories to the checks that apply to
// accounts placed there. The "default" category is used when no other
// category matches.
type Plan struct {
	Checks map[string][]CheckSpec `yaml:"checks"`
}

// ParsePlan decodes a validation plan document.
func ParsePlan(data []byte) (*Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse validation plan: %w", err)
	}
	if len(plan.Checks) == 0 {
		return nil, fmt.Errorf("validation plan defines no checks")
	}
	for category, specs := range plan.Checks {
		for _, spec := range specs {
			if spec.Kind == "" {
				return nil, fmt.Errorf("validation plan category %q has a check with no kind", category)
			}
		}
	}
	return &plan, nil
}

// For returns the checks for an organizational unit path. Every category
// whose name appears in the path (case-insensitively) contributes its
// checks; categories are merged by kind in sorted category order, so a
// later-sorting category overrides an earlier one's targets for the same
// kind and repeated sweeps always see the same check set. "default" applies
// only when no category matches.
func (p *Plan) For(ouPath string) []CheckSpec {
	lowered := strings.ToLower(ouPath)

	categories := make([]string, 0, len(p.Checks))
	for category := range p.Checks {
		if category != "default" && strings.Contains(lowered, strings.ToLower(category)) {
			categories = append(categories, category)
		}
	}
	if len(categories) == 0 {
		return p.Checks["default"]
	}
	sort.Strings(categories)

	merged := make([]CheckSpec, 0)
	byKind := make(map[string]int)
	for _, category := range categories {
		for _, spec := range p.Checks[category] {
			if i, ok := byKind[spec.Kind]; ok {
				merged[i] = spec
				continue
			}
			byKind[spec.Kind] = len(merged)
			merged = append(merged, spec)
		}
	}
	return merged
}
