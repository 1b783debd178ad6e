package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pi-cli/pi/internal/handoff"
)

// replUI implements handoff.UI for the line-mode REPL. There is no
// persistent "editor buffer" to pre-fill here the way a TUI text area would
// have one, so SetEditorText instead arms loop.pendingInput: the next
// iteration of Run's read loop submits that text immediately instead of
// blocking on stdin, which is the REPL's closest equivalent to "the editor
// is pre-filled and one Enter away from sending".
type replUI struct {
	loop *Loop
	// selectInput backs Select's numbered prompt; os.Stdin outside tests.
	selectInput io.Reader
}

func newReplUI(loop *Loop) *replUI {
	return &replUI{loop: loop, selectInput: os.Stdin}
}

func (u *replUI) SetEditorText(text string) {
	u.loop.pendingInput = text
}

func (u *replUI) Notify(text string, severity handoff.Severity) {
	prefix := ""
	switch severity {
	case handoff.SeverityWarning:
		prefix = "[warn] "
	case handoff.SeverityError:
		prefix = "[error] "
	}
	fmt.Println(prefix + text)
}

// Select blocks on a numbered stdin prompt. It is only ever invoked from
// the compaction hook, which runs synchronously inside RunTurn before the
// read loop goes back to blocking on stdin itself, so a direct blocking
// read here cannot race the main loop's own input handling.
func (u *replUI) Select(_ context.Context, title string, choices []string) (int, error) {
	if len(choices) == 0 {
		return -1, fmt.Errorf("no choices offered")
	}
	fmt.Println(title)
	for i, choice := range choices {
		fmt.Printf("  %d. %s\n", i+1, choice)
	}
	fmt.Print("> ")
	line, err := bufio.NewReader(u.selectInput).ReadString('\n')
	if err != nil {
		return -1, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || n < 1 || n > len(choices) {
		return -1, nil
	}
	return n - 1, nil
}
