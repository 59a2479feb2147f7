package stats

import (
	"strings"
	"testing"
)

func TestTrackerCounts(t *testing.T) {
	tr := NewTracker()
	tr.IncrementMethod("getblockchaininfo")
	tr.IncrementMethod("getblockchaininfo")
	tr.IncrementMethod("GetMempoolInfo")
	tr.IncrementOutcome("ok")
	tr.IncrementOutcome("node")

	methods := tr.GetMethodCounts()
	if methods["getblockchaininfo"] != 2 {
		t.Fatalf("expected getblockchaininfo=2, got %d", methods["getblockchaininfo"])
	}
	if methods["getmempoolinfo"] != 1 {
		t.Fatalf("expected method keys normalized to lowercase, got %v", methods)
	}
	if got := tr.GetTotal(); got != 3 {
		t.Fatalf("expected total 3, got %d", got)
	}

	outcomes := tr.GetOutcomeCounts()
	if outcomes["ok"] != 1 || outcomes["node"] != 1 {
		t.Fatalf("unexpected outcome counts: %v", outcomes)
	}
}

func TestTrackerIgnoresEmptyKeys(t *testing.T) {
	tr := NewTracker()
	tr.IncrementMethod("  ")
	if got := tr.GetTotal(); got != 0 {
		t.Fatalf("expected blank keys to be ignored, total %d", got)
	}
}

func TestTrackerReset(t *testing.T) {
	tr := NewTracker()
	tr.IncrementMethod("uptime")
	tr.Reset()
	if got := tr.GetTotal(); got != 0 {
		t.Fatalf("expected 0 after reset, got %d", got)
	}
}

func TestSnapshotLines(t *testing.T) {
	tr := NewTracker()
	tr.IncrementMethod("uptime")
	lines := tr.SnapshotLines()
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "uptime=1") {
		t.Fatalf("expected method line to contain uptime=1, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "none") {
		t.Fatalf("expected empty outcome line, got %q", lines[1])
	}
}
