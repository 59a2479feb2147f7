package drift

import (
	"testing"

	"btcstats/headercache"
)

func headerAt(height, time int64) headercache.Header {
	h := headercache.Header{Height: height, Time: time}
	h.Hash[0] = byte(height)
	h.Hash[1] = byte(height >> 8)
	return h
}

func TestAnalyzeOrdersRowsByDrift(t *testing.T) {
	headers := []headercache.Header{
		headerAt(100, 0), headerAt(101, 7200), // 120 minutes
		headerAt(500, 100000), headerAt(501, 100600), // 10 minutes
		headerAt(900, 200000), headerAt(901, 209000), // 150 minutes
	}

	summary := Analyze(headers, 7200, 2, false)
	if summary.Pairs != 3 {
		t.Fatalf("expected 3 pairs, got %d", summary.Pairs)
	}
	if summary.Occurrences != 2 {
		t.Fatalf("expected 2 threshold rows, got %d", summary.Occurrences)
	}
	if summary.Rows[0].DriftMinutes != 150 || summary.Rows[1].DriftMinutes != 120 {
		t.Fatalf("expected descending drifts [150 120], got %+v", summary.Rows)
	}
	if summary.Rows[0].ParentHash != headers[4].Hash.String() {
		t.Fatalf("unexpected parent hash on top row")
	}
	if summary.Rows[0].ChildHash != headers[5].Hash.String() {
		t.Fatalf("unexpected child hash on top row")
	}

	// deltas are 120, 10, 150 minutes.
	wantMean := (120.0 + 10.0 + 150.0) / 3.0
	if diff := summary.MeanMinutes - wantMean; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("mean = %v, want %v", summary.MeanMinutes, wantMean)
	}
	if summary.PoissonHours <= 0 {
		t.Fatalf("expected positive Poisson recurrence, got %v", summary.PoissonHours)
	}
}

func TestAnalyzeSkipsDeltasAcrossRuns(t *testing.T) {
	// Two runs of window 2; the jump between heights 101 and 500 must not
	// produce a delta.
	headers := []headercache.Header{
		headerAt(100, 0), headerAt(101, 600),
		headerAt(500, 1000000), headerAt(501, 1000600),
	}

	summary := Analyze(headers, 7200, 2, false)
	if summary.Pairs != 2 {
		t.Fatalf("expected 2 pairs (no cross-run delta), got %d", summary.Pairs)
	}
	if summary.Occurrences != 0 {
		t.Fatalf("expected no threshold rows, got %d", summary.Occurrences)
	}
}

func TestAnalyzeWiderWindow(t *testing.T) {
	// One run of window 3 yields two deltas.
	headers := []headercache.Header{
		headerAt(100, 0), headerAt(101, 600), headerAt(102, 9000),
	}

	summary := Analyze(headers, 7200, 3, false)
	if summary.Pairs != 2 {
		t.Fatalf("expected 2 pairs, got %d", summary.Pairs)
	}
	if summary.Occurrences != 1 {
		t.Fatalf("expected 1 threshold row, got %d", summary.Occurrences)
	}
	if summary.Rows[0].DriftMinutes != 140 {
		t.Fatalf("expected 140 minute drift, got %d", summary.Rows[0].DriftMinutes)
	}
}

func TestAnalyzeEmptyInput(t *testing.T) {
	summary := Analyze(nil, 7200, 2, false)
	if summary.Pairs != 0 || summary.Occurrences != 0 {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
	if summary.MeanMinutes != 0 || summary.PoissonHours != 0 {
		t.Fatalf("expected zero statistics on empty input, got %+v", summary)
	}
}
