package cli

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
)

// confirm asks a yes/no question and reports whether the user answered
// yes. A real terminal gets a liner prompt; piped input falls back to
// reading one line from in. Anything but an explicit yes, including
// EOF and Ctrl-C, counts as no.
func confirm(in io.Reader, o *IO, question string) bool {
	if isTerminal(in) {
		return confirmTerminal(question)
	}

	o.Printf("%s ", question)

	// No input stream at all means nobody can say yes.
	if in == nil {
		return false
	}

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}

	return isYes(scanner.Text())
}

func confirmTerminal(question string) bool {
	state := liner.NewLiner()
	defer state.Close()

	state.SetCtrlCAborts(true)

	answer, err := state.Prompt(question + " ")
	if err != nil {
		// liner.ErrPromptAborted or EOF, either way the user did not say yes.
		return false
	}

	return isYes(answer)
}

// isTerminal reports whether in is the process's real stdin attached to
// a terminal, the only input liner can drive.
func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)

	return ok && f == os.Stdin && liner.TerminalSupported()
}

func isYes(answer string) bool {
	answer = strings.TrimSpace(strings.ToLower(answer))

	return answer == "y" || answer == "yes"
}
