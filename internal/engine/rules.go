// internal/engine/rules.go
package engine

import (
	"encoding/json"
	"fmt"
)

// RuleType describes the value shape of a configurable rule.
type RuleType string

const (
	RuleInt  RuleType = "int"
	RuleBool RuleType = "bool"
	RuleEnum RuleType = "enum"
)

// RuleSpec declares one configurable rule: its type, allowed range or
// enumeration, default, and a description for the catalog endpoint.
type RuleSpec struct {
	Name        string      `json:"name"`
	Type        RuleType    `json:"type"`
	Min         int         `json:"min,omitempty"`
	Max         int         `json:"max,omitempty"`
	Options     []string    `json:"options,omitempty"`
	Default     interface{} `json:"default"`
	Description string      `json:"description"`
}

// Meta is the static, class-level description of a game: identity,
// player-count bounds, and the full rule schema (including the shared
// timing rules).
type Meta struct {
	Name        string     `json:"name"`
	DisplayName string     `json:"display_name"`
	MinPlayers  int        `json:"min_players"`
	MaxPlayers  int        `json:"max_players"`
	Rules       []RuleSpec `json:"rules"`
}

// Names of the timing rules shared by every engine.
const (
	RuleTimeoutType    = "timeout_type"
	RuleTimeoutSeconds = "timeout_seconds"
	RuleTimeoutPolicy  = "timeout_policy"
)

// Timeout policy values.
const (
	PolicyEndGame  = "end_game"
	PolicySkipTurn = "skip_turn"
)

// timingRules returns the RuleSpecs every engine declares. The skip/end
// consequence of an expired turn is itself a rule so game variants can
// pick their policy; defaultPolicy sets the per-game default.
func timingRules(defaultPolicy string) []RuleSpec {
	return []RuleSpec{
		{
			Name: RuleTimeoutType, Type: RuleEnum,
			Options: []string{string(TimeoutNone), string(TimeoutPerTurn), string(TimeoutTotalTime)},
			Default: string(TimeoutNone), Description: "time limit mode: none, per turn, or a total per-player budget",
		},
		{
			Name: RuleTimeoutSeconds, Type: RuleInt, Min: 5, Max: 600,
			Default: 60, Description: "seconds per turn, or per-player total budget",
		},
		{
			Name: RuleTimeoutPolicy, Type: RuleEnum,
			Options: []string{PolicyEndGame, PolicySkipTurn},
			Default: defaultPolicy, Description: "consequence of an expired turn",
		},
	}
}

// ResolveRules validates overrides against the schema and merges them
// over the declared defaults. Unknown rule names and out-of-range or
// mistyped values produce a ConfigError.
func ResolveRules(meta Meta, overrides map[string]interface{}) (map[string]interface{}, error) {
	specs := make(map[string]RuleSpec, len(meta.Rules))
	resolved := make(map[string]interface{}, len(meta.Rules))
	for _, spec := range meta.Rules {
		specs[spec.Name] = spec
		resolved[spec.Name] = spec.Default
	}

	for name, raw := range overrides {
		spec, ok := specs[name]
		if !ok {
			return nil, &ConfigError{Field: name, Detail: "unknown rule"}
		}
		val, err := coerceRuleValue(spec, raw)
		if err != nil {
			return nil, err
		}
		resolved[name] = val
	}
	return resolved, nil
}

// coerceRuleValue normalizes a single override to its declared type.
// JSON decoding hands numbers over as float64, so int rules accept both.
func coerceRuleValue(spec RuleSpec, raw interface{}) (interface{}, error) {
	switch spec.Type {
	case RuleInt:
		var n int
		switch v := raw.(type) {
		case int:
			n = v
		case float64:
			n = int(v)
		case json.Number:
			i, err := v.Int64()
			if err != nil {
				return nil, &ConfigError{Field: spec.Name, Detail: "value must be an integer"}
			}
			n = int(i)
		default:
			return nil, &ConfigError{Field: spec.Name, Detail: "value must be an integer"}
		}
		if n < spec.Min || n > spec.Max {
			return nil, &ConfigError{Field: spec.Name, Detail: fmt.Sprintf("value %d out of range [%d, %d]", n, spec.Min, spec.Max)}
		}
		return n, nil
	case RuleBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, &ConfigError{Field: spec.Name, Detail: "value must be a boolean"}
		}
		return b, nil
	case RuleEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, &ConfigError{Field: spec.Name, Detail: "value must be a string"}
		}
		for _, opt := range spec.Options {
			if s == opt {
				return s, nil
			}
		}
		return nil, &ConfigError{Field: spec.Name, Detail: fmt.Sprintf("value %q not one of %v", s, spec.Options)}
	default:
		return nil, &ConfigError{Field: spec.Name, Detail: "unsupported rule type"}
	}
}

// validatePlayers checks the ordered player list against the game's
// declared bounds and rejects duplicates.
func validatePlayers(meta Meta, playerIDs []string) error {
	if len(playerIDs) < meta.MinPlayers || len(playerIDs) > meta.MaxPlayers {
		return &ConfigError{
			Field:  "player_ids",
			Detail: fmt.Sprintf("%s requires %d-%d players, got %d", meta.Name, meta.MinPlayers, meta.MaxPlayers, len(playerIDs)),
		}
	}
	seen := make(map[string]bool, len(playerIDs))
	for _, id := range playerIDs {
		if id == "" {
			return &ConfigError{Field: "player_ids", Detail: "empty player id"}
		}
		if seen[id] {
			return &ConfigError{Field: "player_ids", Detail: fmt.Sprintf("duplicate player id %s", id)}
		}
		seen[id] = true
	}
	return nil
}

// ruleInt reads a resolved int rule, tolerating float64 from a JSON
// round-trip through the store.
func ruleInt(rules map[string]interface{}, name string) int {
	switch v := rules[name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func ruleString(rules map[string]interface{}, name string) string {
	s, _ := rules[name].(string)
	return s
}

func ruleBool(rules map[string]interface{}, name string) bool {
	b, _ := rules[name].(bool)
	return b
}
