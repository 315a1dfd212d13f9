// Package router classifies player input, dispatches it to the matching
// specialist responder and assembles the turn outcome.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"dungeonmaster/pkg/extract"
)

// Intent is the closed set of routing labels.
type Intent string

const (
	IntentNarrativeShort Intent = "narrative_short"
	IntentNarrativeLong  Intent = "narrative_long"
	IntentQASituation    Intent = "qa_situation"
	IntentQARules        Intent = "qa_rules"
	IntentNPCDialogue    Intent = "npc_dialogue"
	IntentCombatDesigner Intent = "combat_designer"
	IntentTravel         Intent = "travel"
	IntentGameplay       Intent = "gameplay"
)

// Intents lists every valid label.
var Intents = []Intent{
	IntentNarrativeShort,
	IntentNarrativeLong,
	IntentQASituation,
	IntentQARules,
	IntentNPCDialogue,
	IntentCombatDesigner,
	IntentTravel,
	IntentGameplay,
}

// Valid reports whether i is in the closed set.
func (i Intent) Valid() bool {
	for _, known := range Intents {
		if i == known {
			return true
		}
	}
	return false
}

// Confidence is the classifier's self-reported certainty.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// RouterIntent is a validated classification.
type RouterIntent struct {
	Intent     Intent     `json:"intent"`
	Confidence Confidence `json:"confidence"`
	Note       string     `json:"note"`
}

// OutputKind tags the shape a classifier answered with.
type OutputKind int

const (
	// OutputRawText is free text that may hold a JSON object, bare or fenced.
	OutputRawText OutputKind = iota
	// OutputStructured is an already-decoded classification.
	OutputStructured
)

// ClassifierOutput is the tagged classifier answer.
type ClassifierOutput struct {
	Kind       OutputKind
	Text       string
	Structured RouterIntent
}

// RawText wraps a free-text classifier answer.
func RawText(text string) ClassifierOutput {
	return ClassifierOutput{Kind: OutputRawText, Text: text}
}

// Structured wraps a decoded classifier answer.
func Structured(ri RouterIntent) ClassifierOutput {
	return ClassifierOutput{Kind: OutputStructured, Structured: ri}
}

// ErrNoIntent means the classifier answer had no usable intent.
var ErrNoIntent = errors.New("classifier output has no recognized intent")

// Resolve turns either variant into a validated RouterIntent.
func (o ClassifierOutput) Resolve() (RouterIntent, error) {
	switch o.Kind {
	case OutputStructured:
		return validate(o.Structured)
	case OutputRawText:
		return parseRaw(o.Text)
	default:
		return RouterIntent{}, fmt.Errorf("unknown classifier output kind %d", o.Kind)
	}
}

func parseRaw(text string) (RouterIntent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &fields); err != nil {
		res := extract.Split(text)
		if !res.Found {
			return RouterIntent{}, fmt.Errorf("%w: %s", ErrNoIntent, preview(text))
		}
		fields = res.Payload
	}

	p := extract.Payload(fields)
	if _, ok := p["intent"]; !ok {
		return RouterIntent{}, fmt.Errorf("%w: %s", ErrNoIntent, preview(text))
	}
	return validate(RouterIntent{
		Intent:     Intent(p.String("intent")),
		Confidence: Confidence(p.String("confidence")),
		Note:       p.String("note"),
	})
}

func validate(ri RouterIntent) (RouterIntent, error) {
	ri.Intent = Intent(strings.ToLower(strings.TrimSpace(string(ri.Intent))))
	if !ri.Intent.Valid() {
		return RouterIntent{}, fmt.Errorf("%w: %q", ErrNoIntent, ri.Intent)
	}
	switch Confidence(strings.ToLower(string(ri.Confidence))) {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		ri.Confidence = Confidence(strings.ToLower(string(ri.Confidence)))
	default:
		ri.Confidence = ConfidenceMedium
	}
	return ri, nil
}

func preview(text string) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) > 100 {
		return string(r[:100]) + "..."
	}
	return string(r)
}
