package ui

import (
	"fmt"
	"strings"
	"testing"
)

func newTestDashboard() *Dashboard {
	return &Dashboard{
		events: make(chan string, 8),
		quit:   make(chan struct{}),
	}
}

func TestSystemPaneLineCap(t *testing.T) {
	d := newTestDashboard()
	for i := 0; i < systemMaxLines+5; i++ {
		d.appendSystemLine(fmt.Sprintf("line %d", i))
	}
	if len(d.systemLines) != systemMaxLines {
		t.Fatalf("expected %d lines, got %d", systemMaxLines, len(d.systemLines))
	}
	last := d.systemLines[len(d.systemLines)-1]
	if !strings.HasSuffix(last, fmt.Sprintf("line %d", systemMaxLines+4)) {
		t.Fatalf("unexpected newest line: %q", last)
	}
	first := d.systemLines[0]
	if !strings.HasSuffix(first, "line 5") {
		t.Fatalf("oldest lines not evicted, head is %q", first)
	}
}

func TestSystemWriterFeedsEventQueue(t *testing.T) {
	d := newTestDashboard()
	w := d.SystemWriter()

	if _, err := w.Write([]byte("one\ntwo\r\npart")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := drainEvents(d); len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("unexpected queued lines: %q", got)
	}

	// The partial line waits for its newline.
	if _, err := w.Write([]byte("ial\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := drainEvents(d); len(got) != 1 || got[0] != "partial" {
		t.Fatalf("unexpected queued lines: %q", got)
	}
}

func TestAppendSystemAfterStopDrops(t *testing.T) {
	d := newTestDashboard()
	d.Stop()
	d.Stop() // idempotent

	d.AppendSystem("late")
	if got := drainEvents(d); len(got) != 0 {
		t.Fatalf("expected no lines after stop, got %q", got)
	}
}

func drainEvents(d *Dashboard) []string {
	var lines []string
	for {
		select {
		case line := <-d.events:
			lines = append(lines, line)
		default:
			return lines
		}
	}
}
