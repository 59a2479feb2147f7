package drift

import (
	"container/heap"

	"btcstats/headercache"
	"btcstats/statmath"
)

// Row is one block pair whose mining time met the drift threshold.
type Row struct {
	ParentHash   string
	ChildHash    string
	DriftMinutes int64
}

// Summary is the result of one drift analysis.
type Summary struct {
	// Rows holds the threshold-exceeding pairs in descending drift order.
	Rows []Row
	// Occurrences is len(Rows); kept explicit for the report footer.
	Occurrences int
	// MeanMinutes is the mean inter-block mining time across the whole sample.
	MeanMinutes float64
	// StdDeviation of inter-block minutes (Bessel-corrected unless the full
	// population was analyzed).
	StdDeviation float64
	// PoissonHours estimates how many hours pass between gaps at least as
	// long as the threshold, from the sampled block rate.
	PoissonHours float64
	// Pairs is the number of block pairs that contributed deltas.
	Pairs int
}

// Analyze computes the drift report from fetched headers. driftTime is the
// threshold in seconds; window is the contiguous run length used during
// sampling, so deltas are only taken within runs and never across the random
// jumps between them. fullPopulation selects the population standard
// deviation instead of the sample one.
func Analyze(headers []headercache.Header, driftTime, window int64, fullPopulation bool) Summary {
	if window < 2 {
		window = 2
	}

	rows := &rowHeap{}
	heap.Init(rows)
	var deltas []float64

	for start := int64(0); start+window <= int64(len(headers)); start += window {
		run := headers[start : start+window]
		prev := run[0]
		for _, header := range run[1:] {
			driftSecs := header.Time - prev.Time
			deltas = append(deltas, float64(driftSecs)/60.0)
			heap.Push(rows, Row{
				ParentHash:   prev.Hash.String(),
				ChildHash:    header.Hash.String(),
				DriftMinutes: driftSecs / 60,
			})
			prev = header
		}
	}

	if len(deltas) == 0 {
		return Summary{}
	}

	summary := Summary{Pairs: len(deltas)}
	thresholdMinutes := driftTime / 60
	for rows.Len() > 0 {
		row := heap.Pop(rows).(Row)
		if row.DriftMinutes < thresholdMinutes {
			break
		}
		summary.Rows = append(summary.Rows, row)
	}
	summary.Occurrences = len(summary.Rows)

	summary.MeanMinutes = statmath.Mean(deltas)
	summary.StdDeviation = statmath.StdDeviation(deltas, !fullPopulation)
	if summary.MeanMinutes > 0 {
		// Blocks per hour against the threshold gap expressed in hours.
		hours := -(float64(driftTime) / 3600.0)
		summary.PoissonHours = statmath.PoissonProbability(60.0/summary.MeanMinutes, hours)
	}
	return summary
}

// rowHeap is a max-heap on drift so rows pop in descending order.
type rowHeap []Row

func (h rowHeap) Len() int           { return len(h) }
func (h rowHeap) Less(i, j int) bool { return h[i].DriftMinutes > h[j].DriftMinutes }
func (h rowHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *rowHeap) Push(x any)        { *h = append(*h, x.(Row)) }
func (h *rowHeap) Pop() any {
	old := *h
	n := len(old)
	row := old[n-1]
	*h = old[:n-1]
	return row
}
