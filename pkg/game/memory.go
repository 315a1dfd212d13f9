package game

import (
	"encoding/json"
	"strings"

	"dungeonmaster/pkg/extract"
	"dungeonmaster/pkg/persistence"
	"dungeonmaster/pkg/router"
)

// memoryWrites reads the payload's memory_writes list. Objects use type/kind,
// keys/key and summary/content; bare strings become notes. Anything else is skipped.
func memoryWrites(p extract.Payload) []persistence.Memory {
	var items []json.RawMessage
	if !p.Decode(router.KeyMemoryWrites, &items) {
		return nil
	}

	out := make([]persistence.Memory, 0, len(items))
	for _, raw := range items {
		var note string
		if json.Unmarshal(raw, &note) == nil {
			if note = strings.TrimSpace(note); note != "" {
				out = append(out, persistence.Memory{Kind: "note", Keys: []string{}, Summary: note, Raw: raw})
			}
			continue
		}

		var obj extract.Payload
		if json.Unmarshal(raw, &obj) != nil || obj == nil {
			continue
		}
		m := persistence.Memory{
			Kind:    firstString(obj, "type", "kind"),
			Summary: firstString(obj, "summary", "content"),
			Raw:     raw,
		}
		if !obj.Decode("keys", &m.Keys) || m.Keys == nil {
			m.Keys = []string{}
			if key := obj.String("key"); key != "" {
				m.Keys = []string{key}
			}
		}
		if m.Kind == "" {
			m.Kind = "note"
		}
		if m.Summary == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

func firstString(p extract.Payload, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(p.String(k)); v != "" {
			return v
		}
	}
	return ""
}
