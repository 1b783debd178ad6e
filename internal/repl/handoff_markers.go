package repl

import (
	"regexp"

	"github.com/pi-cli/pi/internal/handoff"
)

// collapsedMarkerPattern matches the "[+N read filenames]" / "[+N modified
// filename]" markers a handoff prompt collapses file-op lists into (see
// internal/handoff/fileops.go's Collapse).
var collapsedMarkerPattern = regexp.MustCompile(`\[\+\d+ (?:read|modified) filenames?\]`)

// expandHandoffMarkers replaces every collapsed-file-op marker in text with
// its full expansion, then clears engine's entire marker store — not just
// the keys matched in text. A handoff can collapse several file-op lists
// into several markers; if the user edits the prompt before submitting and
// only some of those markers survive into text, the rest must not linger in
// the store past this pass, or a later unrelated occurrence of that literal
// string would spuriously expand.
func expandHandoffMarkers(text string, engine *handoff.Engine) string {
	if engine == nil {
		return text
	}
	expanded := collapsedMarkerPattern.ReplaceAllStringFunc(text, func(marker string) string {
		expansion, ok := engine.ExpandMarker(marker)
		if !ok {
			return marker
		}
		return expansion
	})
	engine.ClearMarkers()
	return expanded
}
