// Package stats tracks per-method and per-outcome RPC call counters for
// display in the dashboard footer and the shutdown summary.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Tracker tracks RPC call statistics by method and outcome.
type Tracker struct {
	// counters live in sync.Map + atomic.Uint64 so per-call increments don't fight over a mutex
	methodCounts  sync.Map // string -> *atomic.Uint64
	outcomeCounts sync.Map // string -> *atomic.Uint64
	start         atomic.Int64
}

// NewTracker creates a new call tracker.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.start.Store(time.Now().UnixNano())
	return t
}

// IncrementMethod increases the count for an RPC method (getblockchaininfo, uptime, etc.)
func (t *Tracker) IncrementMethod(method string) {
	incrementCounter(&t.methodCounts, method)
}

// IncrementOutcome increases the count for a call outcome (ok, connection, auth, protocol, node).
func (t *Tracker) IncrementOutcome(outcome string) {
	incrementCounter(&t.outcomeCounts, outcome)
}

// GetMethodCounts returns a copy of method counts.
func (t *Tracker) GetMethodCounts() map[string]uint64 {
	return copyCounts(&t.methodCounts)
}

// GetOutcomeCounts returns a copy of outcome counts.
func (t *Tracker) GetOutcomeCounts() map[string]uint64 {
	return copyCounts(&t.outcomeCounts)
}

// GetTotal returns the total call count across all methods.
func (t *Tracker) GetTotal() uint64 {
	var total uint64
	t.methodCounts.Range(func(_, value any) bool {
		total += value.(*atomic.Uint64).Load()
		return true
	})
	return total
}

// GetUptime returns how long the tracker has been running.
func (t *Tracker) GetUptime() time.Duration {
	start := t.start.Load()
	return time.Since(time.Unix(0, start))
}

// Reset resets all counters.
func (t *Tracker) Reset() {
	t.methodCounts.Range(func(key, _ any) bool {
		t.methodCounts.Delete(key)
		return true
	})
	t.outcomeCounts.Range(func(key, _ any) bool {
		t.outcomeCounts.Delete(key)
		return true
	})
	t.start.Store(time.Now().UnixNano())
}

// SnapshotLines returns human-readable stats ready for console display.
func (t *Tracker) SnapshotLines() []string {
	lines := make([]string, 0, 2)
	lines = append(lines, formatMapCounts("RPC calls by method", &t.methodCounts))
	lines = append(lines, formatMapCounts("RPC calls by outcome", &t.outcomeCounts))
	return lines
}

func incrementCounter(m *sync.Map, key string) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return
	}
	value, _ := m.LoadOrStore(key, &atomic.Uint64{})
	value.(*atomic.Uint64).Add(1)
}

func copyCounts(m *sync.Map) map[string]uint64 {
	counts := make(map[string]uint64)
	m.Range(func(key, value any) bool {
		counts[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})
	return counts
}

func formatMapCounts(label string, m *sync.Map) string {
	counts := copyCounts(m)
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	if len(parts) == 0 {
		return label + ": none"
	}
	return label + ": " + strings.Join(parts, " ")
}
