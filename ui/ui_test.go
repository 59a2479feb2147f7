package ui

import (
	"strings"
	"testing"
	"time"

	"btcstats/config"
	"btcstats/drift"
	"btcstats/snapshot"
)

func TestTableRenderAligned(t *testing.T) {
	table := NewTable("Demo", "Name", "Value")
	table.AddRow("height", "905000")
	table.AddRow("peers", "12")
	table.SetFooter("2 rows")

	var b strings.Builder
	table.Render(&b)
	out := b.String()

	if !strings.Contains(out, "| Demo") {
		t.Fatalf("missing title:\n%s", out)
	}
	if !strings.Contains(out, "| height | 905000 |") {
		t.Fatalf("missing aligned row:\n%s", out)
	}
	if !strings.Contains(out, "| 2 rows") {
		t.Fatalf("missing footer:\n%s", out)
	}

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	width := len(lines[0])
	for i, line := range lines {
		if len(line) != width {
			t.Fatalf("line %d width %d, expected %d:\n%s", i, len(line), width, out)
		}
	}
}

func TestTableRowPadding(t *testing.T) {
	table := NewTable("", "A", "B", "C")
	table.AddRow("only")

	var b strings.Builder
	table.Render(&b)
	if !strings.Contains(b.String(), "| only |   |   |") {
		t.Fatalf("short row not padded:\n%s", b.String())
	}
}

func TestProgressPlainOutputSteps(t *testing.T) {
	var b strings.Builder
	p := NewProgress(&b, 100, "headers", false)
	for i := 0; i <= 100; i++ {
		p.Update(i)
	}
	p.Finish("done")

	out := b.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	// 0%..100% in 10% steps plus the closing message.
	if len(lines) != 12 {
		t.Fatalf("expected 12 lines, got %d:\n%s", len(lines), out)
	}
	if lines[1] != "headers: 10/100 (10%)" {
		t.Fatalf("unexpected step line: %q", lines[1])
	}
	if lines[11] != "done" {
		t.Fatalf("unexpected final line: %q", lines[11])
	}
	// Plain output must never carry terminal control characters; it is what
	// ends up in redirected files.
	if strings.Contains(out, "\r") {
		t.Fatalf("plain output contains carriage returns:\n%q", out)
	}
}

func TestProgressTTYRedrawsInPlace(t *testing.T) {
	var b strings.Builder
	p := NewProgress(&b, 10, "headers", true)
	p.Update(3)
	p.Update(7)

	out := b.String()
	if strings.Count(out, "\r") != 2 {
		t.Fatalf("expected one carriage return per update:\n%q", out)
	}
	if strings.Contains(out, "\n") {
		t.Fatalf("redraws must not emit newlines before Finish:\n%q", out)
	}
	if !strings.Contains(out, "7/10 (70%)") {
		t.Fatalf("missing redrawn counter:\n%q", out)
	}
}

func TestProgressFinishIdempotent(t *testing.T) {
	var b strings.Builder
	p := NewProgress(&b, 10, "x", false)
	p.Update(10)
	p.Finish("done")
	before := b.String()
	p.Finish("again")
	p.Update(5)
	if b.String() != before {
		t.Fatalf("output changed after Finish:\n%s", b.String())
	}
}

func TestProgressBarString(t *testing.T) {
	got := ProgressBarString(0.5, 10)
	if !strings.Contains(got, "=====") || !strings.Contains(got, "50.0000%") {
		t.Fatalf("unexpected bar: %q", got)
	}
	if !strings.HasPrefix(ProgressBarString(-1, 10), "[          ]") {
		t.Fatalf("negative ratio not clamped: %q", ProgressBarString(-1, 10))
	}
}

func TestFormatMetric(t *testing.T) {
	cases := []struct {
		metric snapshot.Metric
		want   string
	}{
		{snapshot.Metric{Name: snapshot.MetricBlockRate, Value: 0.01, Defined: true}, "0.60 blocks/min"},
		{snapshot.Metric{Name: snapshot.MetricBlockRate, Defined: false}, "n/a"},
		{snapshot.Metric{Name: snapshot.MetricSyncETA, Value: 0, Defined: true}, "synced"},
		{snapshot.Metric{Name: snapshot.MetricSyncETA, Value: 3600, Defined: true}, "1h0m0s"},
		{snapshot.Metric{Name: snapshot.MetricPeerDelta, Value: -2, Defined: true}, "-2 peers"},
		{snapshot.Metric{Name: snapshot.MetricPeerDelta, Value: 3, Defined: true}, "+3 peers"},
	}
	for _, tc := range cases {
		if got := FormatMetric(tc.metric); got != tc.want {
			t.Fatalf("FormatMetric(%s) = %q, want %q", tc.metric.Name, got, tc.want)
		}
	}
}

func TestWriteSnapshotJSON(t *testing.T) {
	s := &snapshot.Snapshot{
		Chain:      "main",
		Height:     905000,
		CapturedAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	}
	var b strings.Builder
	if err := WriteSnapshot(&b, s, config.FormatJSON); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if !strings.Contains(b.String(), `"height": 905000`) {
		t.Fatalf("unexpected JSON:\n%s", b.String())
	}
}

func TestWriteSnapshotYAML(t *testing.T) {
	s := &snapshot.Snapshot{Chain: "main", Height: 905000}
	var b strings.Builder
	if err := WriteSnapshot(&b, s, config.FormatYAML); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if !strings.Contains(b.String(), "height: 905000") {
		t.Fatalf("unexpected YAML:\n%s", b.String())
	}
}

func TestWriteSnapshotTable(t *testing.T) {
	s := &snapshot.Snapshot{
		Chain:         "main",
		Height:        905000,
		BestBlockHash: "00000000000000000001",
	}
	var b strings.Builder
	if err := WriteSnapshot(&b, s, config.FormatTable); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	out := b.String()
	if !strings.Contains(out, "Node Snapshot (main)") {
		t.Fatalf("missing title:\n%s", out)
	}
	if !strings.Contains(out, "905,000") {
		t.Fatalf("height not comma-formatted:\n%s", out)
	}
}

func TestWriteDriftSummaryFooter(t *testing.T) {
	summary := drift.Summary{
		Rows: []drift.Row{
			{ParentHash: "aa", ChildHash: "bb", DriftMinutes: 150},
			{ParentHash: "bb", ChildHash: "cc", DriftMinutes: 120},
		},
		Occurrences:  2,
		MeanMinutes:  135,
		StdDeviation: 21.21,
		PoissonHours: 27126,
		Pairs:        500,
	}
	var b strings.Builder
	if err := WriteDriftSummary(&b, summary, 7200); err != nil {
		t.Fatalf("WriteDriftSummary: %v", err)
	}
	out := b.String()
	if !strings.Contains(out, "| aa | bb | 150 m |") {
		t.Fatalf("missing drift row:\n%s", out)
	}
	if !strings.Contains(out, "Occurrences: 2, Mean: 135 minutes, Standard Deviation: 21.21, Poisson Probability: 1 / 27126 hours") {
		t.Fatalf("unexpected footer:\n%s", out)
	}
}
