package scene

import (
	"encoding/json"
	"strings"
)

// Patch is a sparse set of field overrides keyed by the JSON field name.
// A missing key and an explicit null are both "no change".
type Patch map[string]json.RawMessage

// Field names accepted in a patch.
const (
	FieldTimeOfDay          = "time_of_day"
	FieldRegion             = "region"
	FieldSubRegion          = "sub_region"
	FieldSpecificLocation   = "specific_location"
	FieldParticipants       = "participants"
	FieldExits              = "exits"
	FieldHostileEnvironment = "hostile_environment"
	FieldCombatPlan         = "combat_plan"
)

var setters = map[string]func(*State, json.RawMessage) error{
	FieldTimeOfDay:          func(s *State, raw json.RawMessage) error { return json.Unmarshal(raw, &s.TimeOfDay) },
	FieldRegion:             func(s *State, raw json.RawMessage) error { return json.Unmarshal(raw, &s.Region) },
	FieldSubRegion:          func(s *State, raw json.RawMessage) error { return json.Unmarshal(raw, &s.SubRegion) },
	FieldSpecificLocation:   func(s *State, raw json.RawMessage) error { return json.Unmarshal(raw, &s.SpecificLocation) },
	FieldParticipants:       func(s *State, raw json.RawMessage) error { return decodeList(raw, &s.Participants) },
	FieldExits:              func(s *State, raw json.RawMessage) error { return decodeList(raw, &s.Exits) },
	FieldHostileEnvironment: func(s *State, raw json.RawMessage) error { return json.Unmarshal(raw, &s.HostileEnvironment) },
	FieldCombatPlan: func(s *State, raw json.RawMessage) error {
		var p CombatPlan
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		s.CombatPlan = &p
		return nil
	},
}

func decodeList(raw json.RawMessage, dst *[]string) error {
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return err
	}
	if list == nil {
		list = []string{}
	}
	*dst = list
	return nil
}

// Merge applies patch to a copy of base. Non-null values overwrite their
// field; null values, unknown keys and values of the wrong shape are skipped.
// The returned list reports skipped keys that were present but unusable.
func Merge(base State, patch Patch) (State, []string) {
	next := base.Clone()
	var skipped []string
	for key, raw := range patch {
		if isNull(raw) {
			continue
		}
		set, ok := setters[key]
		if !ok {
			skipped = append(skipped, key)
			continue
		}
		// Decode into a scratch copy so a failed decode cannot half-write a field.
		scratch := next
		if err := set(&scratch, raw); err != nil {
			skipped = append(skipped, key)
			continue
		}
		next = scratch
	}
	return next, skipped
}

// PatchFromObject converts a decoded JSON object into a Patch.
func PatchFromObject(obj map[string]json.RawMessage) Patch {
	if obj == nil {
		return Patch{}
	}
	return Patch(obj)
}

// Has reports whether key is present with a non-null value.
func (p Patch) Has(key string) bool {
	raw, ok := p[key]
	return ok && !isNull(raw)
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
