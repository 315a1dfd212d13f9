// Package combat decides whether the prepared combat plan still fits the scene.
package combat

import (
	"fmt"
	"slices"
	"strings"

	"dungeonmaster/pkg/scene"
)

// Action is the readiness decision.
type Action string

const (
	ActionKeep   Action = "keep"
	ActionClear  Action = "clear"
	ActionUpdate Action = "update"
)

// DefaultDepartureRatio: strictly more than this share of the plan's
// participants must be gone before the plan is considered stale.
const DefaultDepartureRatio = 0.5

// Status is the result of an evaluation. It is not stored.
type Status struct {
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

// Policy holds the tunable thresholds.
type Policy struct {
	DepartureRatio float64
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{DepartureRatio: DefaultDepartureRatio}
}

// Evaluate is Policy.Evaluate with the default policy.
func Evaluate(participants []string, location string, hostile bool, plan *scene.CombatPlan) Status {
	return DefaultPolicy().Evaluate(participants, location, hostile, plan)
}

// Evaluate decides keep, clear or update from the current scene inputs.
func (p Policy) Evaluate(participants []string, location string, hostile bool, plan *scene.CombatPlan) Status {
	current := scene.NormalizeNames(participants)

	if len(current) == 0 && !hostile {
		if plan != nil {
			return Status{ActionClear, "No NPCs present and environment is not hostile"}
		}
		return Status{ActionKeep, "No plan needed - no NPCs and safe environment"}
	}

	if plan == nil {
		var why []string
		if len(current) > 0 {
			why = append(why, fmt.Sprintf("NPCs present: %s", preview(participants)))
		}
		if hostile {
			why = append(why, "hostile environment")
		}
		return Status{ActionUpdate, "No combat plan exists but " + strings.Join(why, " and ")}
	}

	prepared := scene.NormalizeNames(plan.PreparedForNPCs)

	var arrived []string
	for _, name := range current {
		if !slices.Contains(prepared, name) {
			arrived = append(arrived, name)
		}
	}
	if len(arrived) > 0 {
		return Status{ActionUpdate, fmt.Sprintf("New NPCs entered the scene: %s", preview(arrived))}
	}

	var departed []string
	for _, name := range prepared {
		if !slices.Contains(current, name) {
			departed = append(departed, name)
		}
	}
	if len(departed) > 0 && float64(len(departed)) > p.DepartureRatio*float64(len(prepared)) {
		return Status{ActionUpdate, fmt.Sprintf("Significant NPCs left the scene: %s", preview(departed))}
	}

	planLocation := strings.TrimSpace(plan.PreparedForLocation)
	location = strings.TrimSpace(location)
	if planLocation != "" && location != "" && !strings.EqualFold(planLocation, location) {
		return Status{ActionUpdate, fmt.Sprintf("Location changed from '%s' to '%s'", planLocation, location)}
	}

	return Status{ActionKeep, "Combat plan still valid for current NPCs and location"}
}

func preview(names []string) string {
	if len(names) > 3 {
		names = names[:3]
	}
	return "[" + strings.Join(names, ", ") + "]"
}
