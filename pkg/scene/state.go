// Package scene holds the scene state model and its patch-merge semantics.
package scene

import (
	"encoding/json"
	"slices"
	"strings"
)

// Unknown is the placeholder for string fields before the first patch.
const Unknown = "unknown"

// State is the current scene. Every field always holds a value.
type State struct {
	TimeOfDay          string      `json:"time_of_day"`
	Region             string      `json:"region"`
	SubRegion          string      `json:"sub_region"`
	SpecificLocation   string      `json:"specific_location"`
	Participants       []string    `json:"participants"`
	Exits              []string    `json:"exits"`
	HostileEnvironment bool        `json:"hostile_environment"`
	CombatPlan         *CombatPlan `json:"combat_plan"`
}

// New returns a scene with placeholder values.
func New() State {
	return State{
		TimeOfDay:        Unknown,
		Region:           Unknown,
		SubRegion:        Unknown,
		SpecificLocation: Unknown,
		Participants:     []string{},
		Exits:            []string{},
	}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	out.Participants = cloneStrings(s.Participants)
	out.Exits = cloneStrings(s.Exits)
	if s.CombatPlan != nil {
		p := s.CombatPlan.Clone()
		out.CombatPlan = &p
	}
	return out
}

// Location returns the specific location, or "" while it is still a placeholder.
func (s State) Location() string {
	if strings.EqualFold(strings.TrimSpace(s.SpecificLocation), Unknown) {
		return ""
	}
	return s.SpecificLocation
}

// JSON renders the state compactly. Marshal of this type cannot fail.
func (s State) JSON() string {
	b, _ := json.Marshal(s.normalized())
	return string(b)
}

// normalized replaces nil slices so they serialize as [] rather than null.
func (s State) normalized() State {
	if s.Participants == nil {
		s.Participants = []string{}
	}
	if s.Exits == nil {
		s.Exits = []string{}
	}
	return s
}

// CombatPlan is background encounter preparation for the current scene.
// PreparedForNPCs and PreparedForLocation record the scene it was built for.
type CombatPlan struct {
	EncounterName           string   `json:"encounter_name"`
	EncounterSummary        string   `json:"encounter_summary"`
	EncounterRole           string   `json:"encounter_role"`
	TargetDifficulty        string   `json:"target_difficulty"`
	BattlefieldAndMechanics string   `json:"battlefield_and_mechanics"`
	Tactics                 string   `json:"tactics"`
	Opponents               []any    `json:"opponents"`
	PreparedForNPCs         []string `json:"prepared_for_npcs"`
	PreparedForLocation     string   `json:"prepared_for_location"`
}

// Clone returns a deep copy. Opponent entries are copied through JSON.
func (p CombatPlan) Clone() CombatPlan {
	out := p
	out.Opponents = cloneOpponents(p.Opponents)
	out.PreparedForNPCs = cloneStrings(p.PreparedForNPCs)
	return out
}

func cloneOpponents(in []any) []any {
	if in == nil {
		return nil
	}
	data, err := json.Marshal(in)
	if err != nil {
		return slices.Clone(in)
	}
	var out []any
	if err := json.Unmarshal(data, &out); err != nil {
		return slices.Clone(in)
	}
	return out
}

// NormalizeNames lowercases and trims names, dropping empties and duplicates.
// Order of first appearance is kept.
func NormalizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return slices.Clone(in)
}
