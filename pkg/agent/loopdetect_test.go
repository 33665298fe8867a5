package agent

import (
	"strings"
	"testing"
	"time"
)

func trace(tool string, args ...string) ToolTrace {
	return ToolTrace{Time: time.Now(), Tool: tool, Args: args, Status: TraceStatusOK}
}

func trackAll(string) bool { return true }

func TestDetectLoopThreshold(t *testing.T) {
	traces := []ToolTrace{
		trace("update_context", "company_name", "Acme"),
	}

	// 1st and 2nd identical calls: no warning.
	if _, ok := DetectLoop(traces, trackAll); ok {
		t.Fatal("warned after 1 call")
	}
	traces = append(traces, trace("update_context", "company_name", "Acme"))
	if _, ok := DetectLoop(traces, trackAll); ok {
		t.Fatal("warned after 2 calls")
	}

	// 3rd identical call warns.
	traces = append(traces, trace("update_context", "company_name", "Acme"))
	msg, ok := DetectLoop(traces, trackAll)
	if !ok {
		t.Fatal("no warning after 3 identical calls")
	}
	if !strings.Contains(msg.Content, "update_context") || !strings.Contains(msg.Content, "3 times") {
		t.Errorf("unexpected warning content: %q", msg.Content)
	}
	if !msg.IsInternal() {
		t.Error("loop warning must be internal")
	}

	// 4th identical call warns again.
	traces = append(traces, trace("update_context", "company_name", "Acme"))
	msg, ok = DetectLoop(traces, trackAll)
	if !ok {
		t.Fatal("no warning after 4 identical calls")
	}
	if !strings.Contains(msg.Content, "4 times") {
		t.Errorf("expected count 4 in warning, got %q", msg.Content)
	}
}

func TestDetectLoopDifferentArgsBreakRun(t *testing.T) {
	traces := []ToolTrace{
		trace("update_context", "company_name", "Acme"),
		trace("update_context", "company_name", "Acme"),
		trace("update_context", "company_size", "10"),
	}
	if _, ok := DetectLoop(traces, trackAll); ok {
		t.Error("different args must break the run")
	}
}

func TestDetectLoopDifferentToolBreaksRun(t *testing.T) {
	traces := []ToolTrace{
		trace("scf_add_control", "AC-1"),
		trace("scf_add_control", "AC-1"),
		trace("scf_get_progress"),
	}
	if _, ok := DetectLoop(traces, trackAll); ok {
		t.Error("a different trailing tool must break the run")
	}
}

func TestDetectLoopUntrackedTool(t *testing.T) {
	tracked := func(name string) bool { return name != "search_web" }
	traces := []ToolTrace{
		trace("search_web", "soc2"),
		trace("search_web", "soc2"),
		trace("search_web", "soc2"),
	}
	if _, ok := DetectLoop(traces, tracked); ok {
		t.Error("untracked tools must not warn")
	}
}

func TestDetectLoopWindowCapsCount(t *testing.T) {
	var traces []ToolTrace
	for i := 0; i < 8; i++ {
		traces = append(traces, trace("update_context", "company_name", "Acme"))
	}
	msg, ok := DetectLoop(traces, trackAll)
	if !ok {
		t.Fatal("expected warning")
	}
	// Only the trailing window of 5 is inspected.
	if !strings.Contains(msg.Content, "5 times") {
		t.Errorf("expected window-capped count 5, got %q", msg.Content)
	}
}
