package contextmgr

import "strings"

// Exchange is one player input and the narrative it produced.
type Exchange struct {
	Player string
	DM     string
}

// Recap joins the last maxTurns exchanges and keeps at most maxWords words
// from the end. Zero limits disable the corresponding cap.
func Recap(history []Exchange, maxTurns, maxWords int) string {
	if maxTurns > 0 && len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}
	parts := make([]string, 0, len(history))
	for _, ex := range history {
		parts = append(parts, "Player: "+strings.TrimSpace(ex.Player)+" DM: "+strings.TrimSpace(ex.DM))
	}
	recap := strings.Join(parts, " ")

	if maxWords > 0 {
		words := strings.Fields(recap)
		if len(words) > maxWords {
			recap = strings.Join(words[len(words)-maxWords:], " ")
		}
	}
	return recap
}

// ClipRecap appends a turn summary to a running recap and keeps the last limit characters.
func ClipRecap(prev, summary string, limit int) string {
	rec := strings.TrimSpace(prev + " " + summary)
	r := []rune(rec)
	if limit > 0 && len(r) > limit {
		return string(r[len(r)-limit:])
	}
	return rec
}
