package tui

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// KeyProgress counts processed keys. The total is unknown until discovery
// finishes, so it renders as a spinner with a counter.
type KeyProgress struct {
	bar *progressbar.ProgressBar
}

// NewKeyProgress writes progress to w.
func NewKeyProgress(w io.Writer, description string) *KeyProgress {
	return &KeyProgress{bar: progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)}
}

// Key records one processed key. It is safe for concurrent use.
func (p *KeyProgress) Key(string) {
	p.bar.Add(1)
}

// Count returns the number of keys recorded.
func (p *KeyProgress) Count() int64 {
	return int64(p.bar.State().CurrentNum)
}

// Finish clears the progress line.
func (p *KeyProgress) Finish() {
	p.bar.Finish()
}
