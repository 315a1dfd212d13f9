package combat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dungeonmaster/pkg/scene"
)

func planFor(location string, npcs ...string) *scene.CombatPlan {
	return &scene.CombatPlan{
		EncounterName:       "Crossroads Ambush",
		PreparedForNPCs:     npcs,
		PreparedForLocation: location,
	}
}

func TestEvaluate(t *testing.T) {
	fourFoes := planFor("Old Bridge", "goblin", "orc", "troll", "ghost")

	tests := []struct {
		name         string
		participants []string
		location     string
		hostile      bool
		plan         *scene.CombatPlan
		want         Action
	}{
		{"empty safe scene without plan", nil, "", false, nil, ActionKeep},
		{"empty safe scene with stale plan", []string{}, "Inn", false, fourFoes, ActionClear},
		{"blank names count as empty", []string{" ", ""}, "Inn", false, nil, ActionKeep},
		{"npc arrives with no plan", []string{"Goblin"}, "", false, nil, ActionUpdate},
		{"hostile ground with no plan", nil, "Crypt", true, nil, ActionUpdate},
		{"three of four gone", []string{"Goblin"}, "Old Bridge", false, fourFoes, ActionUpdate},
		{"one of four gone", []string{"Goblin", "Orc", "Troll"}, "Old Bridge", false, fourFoes, ActionKeep},
		{"exactly half gone keeps", []string{"goblin", "orc"}, "Old Bridge", false, fourFoes, ActionKeep},
		{"newcomer forces update", []string{"Goblin", "Orc", "Troll", "Ghost", "Hag"}, "Old Bridge", false, fourFoes, ActionUpdate},
		{"case and spacing ignored", []string{" GOBLIN ", "orc", "Troll", "ghost"}, "old bridge", false, fourFoes, ActionKeep},
		{"location moved", []string{"Goblin", "Orc", "Troll", "Ghost"}, "Ruined Tower", false, fourFoes, ActionUpdate},
		{"unknown current location keeps", []string{"Goblin", "Orc", "Troll", "Ghost"}, "", false, fourFoes, ActionKeep},
		{"hostile plan without npcs keeps", nil, "Crypt", true, planFor("Crypt"), ActionKeep},
		{"all foes left but still hostile", nil, "Old Bridge", true, fourFoes, ActionUpdate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.participants, tt.location, tt.hostile, tt.plan)
			assert.Equal(t, tt.want, got.Action, got.Reason)
			assert.NotEmpty(t, got.Reason)
		})
	}
}

func TestDepartureRatioIsTunable(t *testing.T) {
	plan := planFor("Docks", "smuggler", "thug", "captain", "lookout")
	participants := []string{"smuggler", "thug", "captain"}

	assert.Equal(t, ActionKeep, DefaultPolicy().Evaluate(participants, "Docks", false, plan).Action)

	strict := Policy{DepartureRatio: 0.2}
	assert.Equal(t, ActionUpdate, strict.Evaluate(participants, "Docks", false, plan).Action)
}

func TestEvaluateReasonPreview(t *testing.T) {
	got := Evaluate([]string{"a", "b", "c", "d", "e"}, "", false, nil)
	assert.Equal(t, "No combat plan exists but NPCs present: [a, b, c]", got.Reason)
}
