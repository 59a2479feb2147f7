package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

const progressBarWidth = 30

// Progress is a terminal progress bar. On a TTY it redraws in place with a
// carriage return; otherwise it emits a plain line every ten percent so logs
// stay readable.
type Progress struct {
	mu       sync.Mutex
	w        io.Writer
	label    string
	total    int
	done     int
	isTTY    bool
	lastStep int
	finished bool
}

// NewProgress creates a bar for total units of work.
func NewProgress(w io.Writer, total int, label string, isTTY bool) *Progress {
	return &Progress{w: w, total: total, label: label, isTTY: isTTY, lastStep: -1}
}

// Update advances the bar to done units. Safe for concurrent use; fetch
// workers call it from the progress callback.
func (p *Progress) Update(done int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished || p.total <= 0 {
		return
	}
	if done > p.total {
		done = p.total
	}
	p.done = done

	percent := done * 100 / p.total
	if p.isTTY {
		fmt.Fprintf(p.w, "\r%s", p.renderLocked(percent))
		return
	}
	// Every 10% on plain output.
	step := percent / 10
	if step > p.lastStep {
		p.lastStep = step
		fmt.Fprintf(p.w, "%s: %d/%d (%d%%)\n", p.label, done, p.total, percent)
	}
}

// Finish completes the bar and prints the closing message.
func (p *Progress) Finish(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.finished = true
	if p.isTTY {
		fmt.Fprintf(p.w, "\r%s\n", p.renderLocked(100))
	}
	if msg != "" {
		fmt.Fprintln(p.w, msg)
	}
}

func (p *Progress) renderLocked(percent int) string {
	filled := percent * progressBarWidth / 100
	if filled > progressBarWidth {
		filled = progressBarWidth
	}
	bar := strings.Repeat("=", filled)
	if filled > 0 && filled < progressBarWidth {
		bar = bar[:filled-1] + ">"
	}
	return fmt.Sprintf("%s [%-*s] %d/%d (%d%%)", p.label, progressBarWidth, bar, p.done, p.total, percent)
}

// ProgressBarString renders a static bar for a 0..1 ratio, used by the
// dashboard's verification progress line.
func ProgressBarString(ratio float64, width int) string {
	if width <= 0 {
		width = progressBarWidth
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * float64(width))
	return fmt.Sprintf("[%-*s] %.4f%%", width, strings.Repeat("=", filled), ratio*100)
}
