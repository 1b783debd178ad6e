package handoff

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pi-cli/pi/internal/chat"
)

// ExtractFileOps walks assistant messages for toolCall blocks naming
// read/write/edit tools with a string "path" argument and produces the
// normalized, disjoint-by-construction file-op record described in the
// data model: a path in written ∪ edited is removed from read.
func ExtractFileOps(messages []chat.Message) FileOps {
	readSet := map[string]bool{}
	writtenSet := map[string]bool{}
	editedSet := map[string]bool{}

	for _, msg := range messages {
		if msg.Role != "assistant" {
			continue
		}
		for _, call := range msg.ToolCalls {
			path := toolCallPath(call)
			if path == "" {
				continue
			}
			switch call.Function.Name {
			case "read":
				readSet[path] = true
			case "write":
				writtenSet[path] = true
			case "edit":
				editedSet[path] = true
			}
		}
	}

	modified := make(map[string]bool, len(writtenSet)+len(editedSet))
	for p := range writtenSet {
		modified[p] = true
	}
	for p := range editedSet {
		modified[p] = true
	}
	for p := range modified {
		delete(readSet, p)
	}

	return FileOps{
		Read:     sortedKeys(readSet),
		Modified: sortedKeys(modified),
	}
}

func toolCallPath(call chat.ToolCall) string {
	if call.Type != "" && call.Type != "function" {
		return ""
	}
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return ""
	}
	return strings.TrimSpace(args.Path)
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Collapse produces the editor-facing collapsed markers plus their
// XML-tagged expansions. The ok result is false when both groups are
// empty, matching ExtractFileOps's no-file-operations case.
func Collapse(ops FileOps) (Collapsed, bool) {
	if ops.IsEmpty() {
		return Collapsed{}, false
	}
	expansions := make(map[string]string)
	var markers []string

	if len(ops.Read) > 0 {
		marker := fmt.Sprintf("[+%d read %s]", len(ops.Read), pluralize("filename", len(ops.Read)))
		expansions[marker] = wrapFiles("read-files", ops.Read)
		markers = append(markers, marker)
	}
	if len(ops.Modified) > 0 {
		marker := fmt.Sprintf("[+%d modified %s]", len(ops.Modified), pluralize("filename", len(ops.Modified)))
		expansions[marker] = wrapFiles("modified-files", ops.Modified)
		markers = append(markers, marker)
	}

	return Collapsed{
		MarkersText: strings.Join(markers, "\n"),
		Expansions:  expansions,
	}, true
}

func pluralize(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func wrapFiles(tag string, paths []string) string {
	return fmt.Sprintf("<%s>\n%s\n</%s>", tag, strings.Join(paths, "\n"), tag)
}
