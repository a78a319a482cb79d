package checklist

import (
	"encoding/json"
	"regexp"
	"strings"
)

// CRM rich-text editors wrap stored values in markup and escape quotes.
// Decoding tries the raw value first, then progressively undoes the damage.

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// entityReplacer covers the entities HubSpot's editor is known to emit.
// Order matters: &amp; last so "&amp;quot;" does not double-decode.
var entityReplacer = strings.NewReplacer(
	"&quot;", `"`,
	"&#34;", `"`,
	"&#39;", "'",
	"&lt;", "<",
	"&gt;", ">",
	"&nbsp;", " ",
	"&amp;", "&",
)

// DecodeState parses a stored property value into checklist state. It
// recovers values mangled by rich-text editing: first a direct JSON parse,
// then with HTML tags stripped, then with HTML entities decoded as well.
// Returns nil when no pass yields valid JSON, which callers treat the same
// as an absent property.
func DecodeState(raw string) *State {
	candidates := []string{raw}

	stripped := strings.TrimSpace(htmlTagRe.ReplaceAllString(raw, ""))
	if stripped != raw {
		candidates = append(candidates, stripped)
	}

	unescaped := entityReplacer.Replace(stripped)
	if unescaped != stripped {
		candidates = append(candidates, unescaped)
	}

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		var state State
		if err := json.Unmarshal([]byte(candidate), &state); err != nil {
			continue
		}
		if state.ItemStatuses == nil {
			state.ItemStatuses = map[string]string{}
		}
		return &state
	}
	return nil
}

// EncodeState serializes state for storage in a deal property.
func EncodeState(state *State) (string, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
