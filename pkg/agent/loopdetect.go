package agent

import (
	"fmt"
)

const (
	loopWindow    = 5
	loopThreshold = 3
)

// DetectLoop inspects the trailing window of the trace ring and counts
// consecutive trailing entries with identical tool name and arguments.
// It returns a synthetic warning message when the run length reaches the
// threshold. Detection runs after every tracked tool execution, success
// or failure, so the 3rd identical call warns and a 4th warns again.
func DetectLoop(traces []ToolTrace, tracked func(name string) bool) (Message, bool) {
	if len(traces) == 0 {
		return Message{}, false
	}

	window := traces
	if len(window) > loopWindow {
		window = window[len(window)-loopWindow:]
	}

	last := window[len(window)-1]
	if tracked != nil && !tracked(last.Tool) {
		return Message{}, false
	}

	count := 0
	for i := len(window) - 1; i >= 0; i-- {
		if window[i].Tool != last.Tool || !sameArgs(window[i].Args, last.Args) {
			break
		}
		count++
	}

	if count < loopThreshold {
		return Message{}, false
	}

	warning := InternalMessage(fmt.Sprintf(
		"[LOOP_WARNING] Tool '%s' has been called %d times in a row with the same arguments. Stop repeating it: either answer the user directly or call 'done'.",
		last.Tool, count,
	))
	return warning, true
}

func sameArgs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
