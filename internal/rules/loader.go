package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

type fileConfig struct {
	Transitions []transitionConfig `yaml:"transitions"`
}

type transitionConfig struct {
	From           []string `yaml:"from"`
	To             string   `yaml:"to"`
	Roles          []string `yaml:"roles"`
	RequiresReason bool     `yaml:"requires_reason"`
	SideEffects    []string `yaml:"side_effects"`
}

// LoadFile reads a YAML rule table from path.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}

// Parse builds a table from YAML. Each entry's from list expands into one
// rule per source status.
func Parse(data []byte) (*Table, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	var out []Rule
	for _, tc := range cfg.Transitions {
		if len(tc.From) == 0 {
			return nil, fmt.Errorf("rules: transition to %q has no source", tc.To)
		}
		roles := make([]domain.Role, 0, len(tc.Roles))
		for _, r := range tc.Roles {
			roles = append(roles, domain.Role(r))
		}
		var effects []SideEffect
		for _, e := range tc.SideEffects {
			effects = append(effects, SideEffect(e))
		}
		for _, from := range tc.From {
			out = append(out, Rule{
				From:           domain.TicketStatus(from),
				To:             domain.TicketStatus(tc.To),
				AllowedRoles:   roles,
				RequiresReason: tc.RequiresReason,
				SideEffects:    effects,
			})
		}
	}
	return NewTable(out)
}
