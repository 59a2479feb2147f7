package ui

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"btcstats/snapshot"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Dashboard renders the monitor layout when a compatible terminal is
// available. It shows chain, mempool, and network panes refreshed on every
// poll, a metrics pane for the derived rates, and a scrolling system log.
type Dashboard struct {
	app         *tview.Application
	chainView   *tview.TextView
	mempoolView *tview.TextView
	networkView *tview.TextView
	metricsView *tview.TextView
	systemView  *tview.TextView
	systemLines []string
	paneMu      sync.Mutex
	events      chan string
	quit        chan struct{}
	closed      atomic.Bool
	ready       chan struct{}
}

const systemMaxLines = 8

// NewDashboard builds and starts the dashboard. Returns nil when disabled so
// callers can use nil-safe method calls throughout.
func NewDashboard(enable bool) *Dashboard {
	if !enable {
		return nil
	}

	makePane := func(title string) *tview.TextView {
		tv := tview.NewTextView().
			SetDynamicColors(true).
			SetWrap(false)
		tv.SetTitle(title).SetTitleAlign(tview.AlignLeft)
		return tv
	}

	chainPane := makePane("Chain")
	chainPane.SetTextColor(tcell.ColorYellow)
	mempoolPane := makePane("Mempool")
	networkPane := makePane("Network")
	metricsPane := makePane("Rates")
	systemPane := makePane("System")
	systemPane.SetTextColor(tcell.ColorYellow)

	top := tview.NewFlex().
		AddItem(chainPane, 0, 1, false).
		AddItem(mempoolPane, 0, 1, false)
	middle := tview.NewFlex().
		AddItem(networkPane, 0, 1, false).
		AddItem(metricsPane, 0, 1, false)
	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(top, 10, 0, false).
		AddItem(tview.NewBox(), 1, 0, false).
		AddItem(middle, 10, 0, false).
		AddItem(tview.NewBox(), 1, 0, false).
		AddItem(systemPane, 0, 1, false)

	app := tview.NewApplication().SetRoot(layout, true).EnableMouse(false)
	ready := make(chan struct{})
	var once sync.Once
	app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		once.Do(func() { close(ready) })
		return false
	})
	d := &Dashboard{
		app:         app,
		chainView:   chainPane,
		mempoolView: mempoolPane,
		networkView: networkPane,
		metricsView: metricsPane,
		systemView:  systemPane,
		events:      make(chan string, 256),
		quit:        make(chan struct{}),
		ready:       ready,
	}

	// Dedicated flusher so log callers drop instead of blocking when the UI lags.
	go d.runEventLoop()

	go func() {
		if err := app.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "dashboard error: %v\n", err)
		}
	}()

	return d
}

func (d *Dashboard) Stop() {
	if d == nil || d.closed.Swap(true) {
		return
	}
	// The events channel is never closed; late AppendSystem callers just
	// drop once closed is set.
	if d.quit != nil {
		close(d.quit)
	}
	if d.app != nil {
		d.app.Stop()
	}
}

func (d *Dashboard) WaitReady() {
	if d == nil || d.ready == nil {
		return
	}
	<-d.ready
}

// SetSnapshot refreshes the chain, mempool, and network panes.
func (d *Dashboard) SetSnapshot(s *snapshot.Snapshot) {
	if d == nil || s == nil {
		return
	}
	chain := strings.Join([]string{
		fmt.Sprintf("Chain:    %s", s.Chain),
		fmt.Sprintf("Height:   %s", humanize.Comma(s.Height)),
		fmt.Sprintf("Headers:  %s", humanize.Comma(s.Headers)),
		fmt.Sprintf("Best:     %s", s.BestBlockHash),
		fmt.Sprintf("Verify:   %s", ProgressBarString(s.VerificationProgress, 24)),
		fmt.Sprintf("IBD:      %t  Pruned: %t", s.InitialBlockDownload, s.Pruned),
		fmt.Sprintf("On Disk:  %s", humanize.Bytes(uint64(s.SizeOnDisk))),
	}, "\n")
	mempool := strings.Join([]string{
		fmt.Sprintf("Transactions: %s", humanize.Comma(s.MempoolTxCount)),
		fmt.Sprintf("Size:         %s", humanize.Bytes(uint64(s.MempoolBytes))),
		fmt.Sprintf("Usage:        %s", humanize.Bytes(uint64(s.MempoolUsage))),
		fmt.Sprintf("Min Fee:      %s", formatFeeRate(s.MempoolMinFee)),
	}, "\n")
	network := strings.Join([]string{
		fmt.Sprintf("Peers:       %d", s.PeerCount),
		fmt.Sprintf("Subversion:  %s", s.Subversion),
		fmt.Sprintf("Protocol:    %d", s.ProtocolVersion),
		fmt.Sprintf("Time Offset: %ds", s.TimeOffset),
		fmt.Sprintf("Uptime:      %s", (time.Duration(s.NodeUptime) * time.Second).String()),
	}, "\n")
	d.app.QueueUpdateDraw(func() {
		d.chainView.SetText(chain)
		d.mempoolView.SetText(mempool)
		d.networkView.SetText(network)
	})
}

// SetMetrics refreshes the rates pane.
func (d *Dashboard) SetMetrics(metrics []snapshot.Metric) {
	if d == nil {
		return
	}
	lines := make([]string, 0, len(metrics))
	for _, m := range metrics {
		lines = append(lines, fmt.Sprintf("%-16s %s", m.Name, FormatMetric(m)))
	}
	text := strings.Join(lines, "\n")
	d.app.QueueUpdateDraw(func() {
		d.metricsView.SetText(text)
	})
}

// AppendSystem queues a line for the system log pane.
func (d *Dashboard) AppendSystem(line string) {
	if d == nil || d.closed.Load() {
		return
	}
	select {
	case d.events <- line:
	default:
		// Drop on saturation to keep callers non-blocking.
	}
}

// SystemWriter returns a writer suitable for log.SetOutput so standard log
// lines land in the system pane while the dashboard owns the terminal. Lines
// flow through AppendSystem, so the pane's line cap applies.
func (d *Dashboard) SystemWriter() *paneWriter {
	if d == nil {
		return nil
	}
	return &paneWriter{d: d}
}

type paneWriter struct {
	d   *Dashboard
	mu  sync.Mutex
	buf []byte
}

func (w *paneWriter) Write(p []byte) (int, error) {
	if w == nil || w.d == nil {
		return len(p), nil
	}
	w.mu.Lock()
	w.buf = append(w.buf, p...)
	var lines []string
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx == -1 {
			break
		}
		lines = append(lines, string(bytes.TrimRight(w.buf[:idx], "\r")))
		w.buf = w.buf[idx+1:]
	}
	w.mu.Unlock()

	for _, line := range lines {
		w.d.AppendSystem(line)
	}
	return len(p), nil
}

func (d *Dashboard) runEventLoop() {
	if d == nil {
		return
	}
	for {
		select {
		case line := <-d.events:
			d.appendSystemLine(line)
		case <-d.quit:
			return
		}
	}
}

func (d *Dashboard) appendSystemLine(line string) {
	tsLine := time.Now().Format("2006/01/02 15:04:05 ") + line

	d.paneMu.Lock()
	d.systemLines = append(d.systemLines, tsLine)
	if len(d.systemLines) > systemMaxLines {
		d.systemLines = d.systemLines[len(d.systemLines)-systemMaxLines:]
	}
	text := strings.Join(d.systemLines, "\n")
	d.paneMu.Unlock()

	if d.systemView == nil || d.app == nil {
		return
	}
	d.app.QueueUpdateDraw(func() {
		d.systemView.SetText(text)
		d.systemView.ScrollToEnd()
	})
}
