// Package extract splits generated text into player-facing narrative and the
// structured update payload carried in a trailing ```json fenced block.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedJSON = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

	envelopeBody = regexp.MustCompile(
		"(?s)Final output \\(str\\):\\s*(.*?)(?:\\s*-\\s*\\d+\\s+(?:new item\\(s\\)|raw response\\(s\\)|input guardrail result\\(s\\)|output guardrail result\\(s\\))|\\s*\\(See `RunResult`|$)")
	envelopeTail = regexp.MustCompile(
		"(?s)(?:\\s*-\\s*\\d+\\s+(?:new item\\(s\\)|raw response\\(s\\)|input guardrail result\\(s\\)|output guardrail result\\(s\\))|\\s*\\(See `RunResult`).*$")
)

// Payload is the parsed structured update. Values stay raw until a consumer decodes them.
type Payload map[string]json.RawMessage

// Result is the outcome of Split.
type Result struct {
	Narrative string
	Payload   Payload
	// Found is true when a fenced block was present and the last one parsed.
	Found bool
}

// Split finds every fenced JSON block, parses the last one as the payload and
// returns the text with all blocks removed. Each block is matched on its own,
// so a malformed earlier block does not affect the last one. If there is no
// block or the last block is not a JSON object, the payload is empty and the
// text is returned as is.
func Split(text string) Result {
	text = StripEnvelope(text)

	matches := fencedJSON.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return Result{Narrative: text, Payload: Payload{}}
	}

	last := matches[len(matches)-1][1]
	var payload Payload
	if err := json.Unmarshal([]byte(last), &payload); err != nil || payload == nil {
		return Result{Narrative: text, Payload: Payload{}}
	}

	return Result{
		Narrative: StripBlocks(text),
		Payload:   payload,
		Found:     true,
	}
}

// StripBlocks removes all fenced JSON blocks and surrounding whitespace.
func StripBlocks(text string) string {
	return strings.TrimSpace(fencedJSON.ReplaceAllString(text, ""))
}

// StripEnvelope unwraps a "RunResult: ... Final output (str): ..." diagnostic
// envelope. Text without the envelope is returned unchanged.
func StripEnvelope(text string) string {
	if !strings.HasPrefix(text, "RunResult:") || !strings.Contains(text, "Final output (str):") {
		return text
	}
	m := envelopeBody.FindStringSubmatch(text)
	if m == nil {
		return text
	}
	body := envelopeTail.ReplaceAllString(m[1], "")
	return strings.TrimSpace(body)
}

// String returns the string value at key, or "" when absent or not a string.
func (p Payload) String(key string) string {
	var s string
	if raw, ok := p[key]; ok && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return ""
}

// Object returns the JSON object at key, or nil when absent, null, or not an object.
func (p Payload) Object(key string) map[string]json.RawMessage {
	var obj map[string]json.RawMessage
	if raw, ok := p[key]; ok && json.Unmarshal(raw, &obj) == nil {
		return obj
	}
	return nil
}

// Decode unmarshals the value at key into v and reports whether it succeeded.
func (p Payload) Decode(key string, v any) bool {
	raw, ok := p[key]
	if !ok || IsNull(raw) {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

// Set marshals v under key. Marshal failures leave the payload unchanged.
func (p Payload) Set(key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	p[key] = raw
}

// IsNull reports whether raw is empty or the JSON literal null.
func IsNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
