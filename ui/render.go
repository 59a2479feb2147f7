package ui

import (
	"fmt"
	"io"
	"time"

	"btcstats/config"
	"btcstats/drift"
	"btcstats/snapshot"
	"btcstats/statmath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// WriteSnapshot renders a snapshot in the requested format.
func WriteSnapshot(w io.Writer, s *snapshot.Snapshot, format string) error {
	switch format {
	case config.FormatJSON:
		return encodeJSON(w, s)
	case config.FormatYAML:
		return encodeYAML(w, s)
	default:
		snapshotTable(s).Render(w)
		return nil
	}
}

// WriteReport renders the metrics derived from two snapshots.
func WriteReport(w io.Writer, metrics []snapshot.Metric, format string) error {
	switch format {
	case config.FormatJSON:
		return encodeJSON(w, metrics)
	case config.FormatYAML:
		return encodeYAML(w, metrics)
	default:
		table := NewTable("Report", "Metric", "Value")
		for _, m := range metrics {
			table.AddRow(m.Name, FormatMetric(m))
		}
		table.Render(w)
		return nil
	}
}

// WriteHistory renders archived snapshots, newest first.
func WriteHistory(w io.Writer, snaps []snapshot.Snapshot, format string) error {
	switch format {
	case config.FormatJSON:
		return encodeJSON(w, snaps)
	case config.FormatYAML:
		return encodeYAML(w, snaps)
	default:
		table := NewTable("Snapshot History", "Captured", "Height", "Headers", "Mempool", "Peers", "Progress")
		for _, s := range snaps {
			table.AddRow(
				s.CapturedAt.Format(time.RFC3339),
				humanize.Comma(s.Height),
				humanize.Comma(s.Headers),
				fmt.Sprintf("%s tx / %s", humanize.Comma(s.MempoolTxCount), humanize.Bytes(uint64(s.MempoolBytes))),
				fmt.Sprintf("%d", s.PeerCount),
				fmt.Sprintf("%.4f%%", s.VerificationProgress*100),
			)
		}
		table.SetFooter(fmt.Sprintf("%d snapshots", len(snaps)))
		table.Render(w)
		return nil
	}
}

// WriteDriftSummary renders the drift analysis table with the statistics
// footer, driftTime in seconds.
func WriteDriftSummary(w io.Writer, summary drift.Summary, driftTime int64) error {
	table := NewTable(
		fmt.Sprintf("Block Times (threshold %d m)", driftTime/60),
		"Parent Block Hash", "Child Block Hash", "Mining Time",
	)
	for _, row := range summary.Rows {
		table.AddRow(row.ParentHash, row.ChildHash, fmt.Sprintf("%d m", row.DriftMinutes))
	}
	table.SetFooter(fmt.Sprintf(
		"Occurrences: %d, Mean: %v minutes, Standard Deviation: %v, Poisson Probability: 1 / %v hours",
		summary.Occurrences,
		statmath.RoundedBy(summary.MeanMinutes, 2),
		summary.StdDeviation,
		statmath.RoundedBy(summary.PoissonHours, 2),
	))
	table.Render(w)
	return nil
}

// FormatMetric renders one metric for humans. Per-second rates are shown per
// minute, the sync ETA as a duration, and undefined metrics as n/a.
func FormatMetric(m snapshot.Metric) string {
	if !m.Defined {
		return "n/a"
	}
	switch m.Name {
	case snapshot.MetricBlockRate:
		return fmt.Sprintf("%.2f blocks/min", m.Value*60)
	case snapshot.MetricHeaderRate:
		return fmt.Sprintf("%.2f headers/min", m.Value*60)
	case snapshot.MetricMempoolTxRate:
		return fmt.Sprintf("%.2f tx/min", m.Value*60)
	case snapshot.MetricMempoolGrowth:
		return fmt.Sprintf("%s/min", humanizeSignedBytes(m.Value*60))
	case snapshot.MetricProgressRate:
		return fmt.Sprintf("%.6f%%/min", m.Value*60*100)
	case snapshot.MetricSyncETA:
		if m.Value == 0 {
			return "synced"
		}
		return (time.Duration(m.Value) * time.Second).Round(time.Second).String()
	case snapshot.MetricPeerDelta:
		return fmt.Sprintf("%+d peers", int64(m.Value))
	default:
		return fmt.Sprintf("%.4f %s", m.Value, m.Unit)
	}
}

func snapshotTable(s *snapshot.Snapshot) *Table {
	table := NewTable(fmt.Sprintf("Node Snapshot (%s)", s.Chain), "Field", "Value")
	table.AddRow("Height", humanize.Comma(s.Height))
	table.AddRow("Headers", humanize.Comma(s.Headers))
	table.AddRow("Best Block", s.BestBlockHash)
	table.AddRow("Difficulty", humanize.SIWithDigits(s.Difficulty, 2, ""))
	table.AddRow("Verification", ProgressBarString(s.VerificationProgress, 20))
	table.AddRow("Initial Block Download", fmt.Sprintf("%t", s.InitialBlockDownload))
	table.AddRow("Chain Work", s.ChainWork)
	table.AddRow("Size On Disk", humanize.Bytes(uint64(s.SizeOnDisk)))
	table.AddRow("Pruned", fmt.Sprintf("%t", s.Pruned))
	table.AddRow("Mempool Transactions", humanize.Comma(s.MempoolTxCount))
	table.AddRow("Mempool Size", humanize.Bytes(uint64(s.MempoolBytes)))
	table.AddRow("Mempool Usage", humanize.Bytes(uint64(s.MempoolUsage)))
	table.AddRow("Mempool Min Fee", formatFeeRate(s.MempoolMinFee))
	table.AddRow("Peers", fmt.Sprintf("%d", s.PeerCount))
	table.AddRow("Subversion", s.Subversion)
	table.AddRow("Protocol", fmt.Sprintf("%d", s.ProtocolVersion))
	table.AddRow("Time Offset", fmt.Sprintf("%ds", s.TimeOffset))
	table.AddRow("Node Uptime", (time.Duration(s.NodeUptime) * time.Second).String())
	table.SetFooter("Captured " + s.CapturedAt.Format(time.RFC3339))
	return table
}

func formatFeeRate(btcPerKvB float64) string {
	amount, err := btcutil.NewAmount(btcPerKvB)
	if err != nil {
		return fmt.Sprintf("%f BTC/kvB", btcPerKvB)
	}
	return amount.String() + "/kvB"
}

func humanizeSignedBytes(v float64) string {
	if v < 0 {
		return "-" + humanize.Bytes(uint64(-v))
	}
	return humanize.Bytes(uint64(v))
}

func encodeJSON(w io.Writer, v any) error {
	enc := codec.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func encodeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(v)
}
