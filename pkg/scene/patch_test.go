package scene

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func patchOf(t *testing.T, src string) Patch {
	t.Helper()
	var p Patch
	require.NoError(t, json.Unmarshal([]byte(src), &p))
	return p
}

func TestMergeNullIsNoOp(t *testing.T) {
	base := New()
	base.TimeOfDay = "dusk"
	base.Region = "Sword Coast"
	base.SubRegion = "Neverwinter Wood"

	merged, skipped := Merge(base, patchOf(t, `{"time_of_day": "night", "region": null}`))

	assert.Empty(t, skipped)
	assert.Equal(t, "night", merged.TimeOfDay)
	assert.Equal(t, "Sword Coast", merged.Region, "explicit null must not clear")
	assert.Equal(t, "Neverwinter Wood", merged.SubRegion, "absent key must not change")
}

func TestMergeDoesNotMutateBase(t *testing.T) {
	base := New()
	base.Participants = []string{"Goblin"}
	base.CombatPlan = &CombatPlan{EncounterName: "Ambush", PreparedForNPCs: []string{"goblin"}}

	merged, _ := Merge(base, patchOf(t, `{"participants": ["Goblin", "Orc"], "hostile_environment": true}`))
	merged.CombatPlan.PreparedForNPCs[0] = "mutated"

	assert.Equal(t, []string{"Goblin"}, base.Participants)
	assert.False(t, base.HostileEnvironment)
	assert.Equal(t, "goblin", base.CombatPlan.PreparedForNPCs[0])
	assert.Equal(t, []string{"Goblin", "Orc"}, merged.Participants)
	assert.True(t, merged.HostileEnvironment)
}

func TestMergeSkipsBadShapesAndUnknownKeys(t *testing.T) {
	base := New()
	base.Exits = []string{"north"}

	merged, skipped := Merge(base, patchOf(t, `{"exits": "south", "weather": "rain", "specific_location": "Crypt"}`))

	assert.ElementsMatch(t, []string{"exits", "weather"}, skipped)
	assert.Equal(t, []string{"north"}, merged.Exits)
	assert.Equal(t, "Crypt", merged.SpecificLocation)
}

func TestMergeEmptyListClears(t *testing.T) {
	base := New()
	base.Participants = []string{"Bandit"}

	merged, _ := Merge(base, patchOf(t, `{"participants": []}`))
	assert.Empty(t, merged.Participants)
	assert.NotNil(t, merged.Participants)
}

func TestMergeCombatPlan(t *testing.T) {
	merged, _ := Merge(New(), patchOf(t, `{"combat_plan": {"encounter_name": "Bridge Trolls", "opponents": [{"name": "troll", "count": 2}]}}`))
	require.NotNil(t, merged.CombatPlan)
	assert.Equal(t, "Bridge Trolls", merged.CombatPlan.EncounterName)
	assert.Len(t, merged.CombatPlan.Opponents, 1)

	kept, _ := Merge(merged, patchOf(t, `{"combat_plan": null}`))
	assert.NotNil(t, kept.CombatPlan)
}

func TestCombatPlanCloneCopiesOpponents(t *testing.T) {
	merged, _ := Merge(New(), patchOf(t, `{"combat_plan": {"opponents": [{"name": "troll", "count": 2}], "prepared_for_npcs": ["troll"]}}`))
	require.NotNil(t, merged.CombatPlan)

	clone := merged.CombatPlan.Clone()
	entry, ok := clone.Opponents[0].(map[string]any)
	require.True(t, ok)
	entry["name"] = "ogre"
	clone.PreparedForNPCs[0] = "ogre"

	orig := merged.CombatPlan.Opponents[0].(map[string]any)
	assert.Equal(t, "troll", orig["name"])
	assert.Equal(t, []string{"troll"}, merged.CombatPlan.PreparedForNPCs)
	assert.Nil(t, CombatPlan{}.Clone().Opponents)
}

func TestNormalizeNames(t *testing.T) {
	assert.Equal(t, []string{"goblin", "orc chief"}, NormalizeNames([]string{" Goblin", "", "ORC Chief", "goblin "}))
}

func TestLocationPlaceholder(t *testing.T) {
	s := New()
	assert.Equal(t, "", s.Location())
	s.SpecificLocation = "Yawning Portal"
	assert.Equal(t, "Yawning Portal", s.Location())
	assert.Contains(t, s.JSON(), `"participants":[]`)
}
