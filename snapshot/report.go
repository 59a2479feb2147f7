package snapshot

// Metric is a scalar derived from a pair of snapshots. Rates are expressed
// per second; presentation converts to friendlier units. Defined is false for
// time-normalized metrics computed over a degenerate (zero or negative)
// elapsed window, so callers never see a division fault.
type Metric struct {
	Name    string  `json:"name" yaml:"name"`
	Value   float64 `json:"value" yaml:"value"`
	Unit    string  `json:"unit" yaml:"unit"`
	Defined bool    `json:"defined" yaml:"defined"`
}

// Metric names emitted by Report, in emission order.
const (
	MetricBlockRate     = "block_rate"
	MetricHeaderRate    = "header_rate"
	MetricMempoolTxRate = "mempool_tx_rate"
	MetricMempoolGrowth = "mempool_growth"
	MetricProgressRate  = "progress_rate"
	MetricSyncETA       = "sync_eta"
	MetricPeerDelta     = "peer_delta"
)

// Report derives metrics from two snapshots ordered by capture time. It never
// fails: degenerate input yields undefined time-normalized metrics.
func Report(prev, cur *Snapshot) []Metric {
	elapsed := cur.CapturedAt.Sub(prev.CapturedAt).Seconds()

	rate := func(name, unit string, delta float64) Metric {
		if elapsed <= 0 {
			return Metric{Name: name, Unit: unit}
		}
		return Metric{Name: name, Value: delta / elapsed, Unit: unit, Defined: true}
	}

	progressRate := rate(MetricProgressRate, "/s", cur.VerificationProgress-prev.VerificationProgress)
	metrics := []Metric{
		rate(MetricBlockRate, "blocks/s", float64(cur.Height-prev.Height)),
		rate(MetricHeaderRate, "headers/s", float64(cur.Headers-prev.Headers)),
		rate(MetricMempoolTxRate, "tx/s", float64(cur.MempoolTxCount-prev.MempoolTxCount)),
		rate(MetricMempoolGrowth, "B/s", float64(cur.MempoolBytes-prev.MempoolBytes)),
		progressRate,
	}

	metrics = append(metrics, syncETA(cur, progressRate))
	// Peer delta is a plain difference, meaningful even for equal timestamps.
	metrics = append(metrics, Metric{
		Name:    MetricPeerDelta,
		Value:   float64(cur.PeerCount - prev.PeerCount),
		Unit:    "peers",
		Defined: true,
	})
	return metrics
}

// syncETA estimates seconds until verification progress reaches 1.0. A node
// that is already synced reports zero; a stalled or degenerate window reports
// the undefined sentinel.
func syncETA(cur *Snapshot, progressRate Metric) Metric {
	const synced = 0.9999
	if cur.VerificationProgress >= synced {
		return Metric{Name: MetricSyncETA, Unit: "s", Defined: true}
	}
	if !progressRate.Defined || progressRate.Value <= 0 {
		return Metric{Name: MetricSyncETA, Unit: "s"}
	}
	remaining := 1.0 - cur.VerificationProgress
	return Metric{
		Name:    MetricSyncETA,
		Value:   remaining / progressRate.Value,
		Unit:    "s",
		Defined: true,
	}
}
