// Package tui renders discovery reports and run progress for terminals.
package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/logflow/batchflow/internal/model"
	"github.com/logflow/batchflow/pkg/discovery"
	bferrors "github.com/logflow/batchflow/pkg/errors"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

type styles struct {
	title, accent, muted, success lipgloss.Style
	header, cell                  lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(white),
		accent:  r.NewStyle().Foreground(accent).Bold(true),
		muted:   r.NewStyle().Foreground(muted),
		success: r.NewStyle().Foreground(success).Bold(true),
		header:  r.NewStyle().Bold(true).Padding(0, 1),
		cell:    r.NewStyle().Padding(0, 1),
	}
}

// Summary describes how a report was produced.
type Summary struct {
	Input    string
	Elapsed  time.Duration
	Cached   bool
	Outputs  []string
	Warnings bool
}

// RenderReport writes a human summary of r to w.
func RenderReport(w io.Writer, r *discovery.Report, s Summary) {
	st := newStyles(w)

	fmt.Fprintln(w)
	status := "✓ DISCOVERY COMPLETE"
	if s.Cached {
		status = "✓ DISCOVERY COMPLETE (cached)"
	}
	fmt.Fprintln(w, st.success.Render("  "+status))
	fmt.Fprintln(w)
	if s.Input != "" {
		fmt.Fprintf(w, "  %s %s\n", st.muted.Render("Input:"), st.title.Render(s.Input))
	}
	fmt.Fprintf(w, "  %s %s\n", st.muted.Render("Instances:"), st.title.Render(formatNumber(int64(r.Instances))))

	var batches []string
	for _, t := range model.BatchTypes {
		if n := r.Batches[t]; n > 0 {
			batches = append(batches, fmt.Sprintf("%d %s", n, strings.ToLower(string(t))))
		}
	}
	if len(batches) == 0 {
		batches = []string{"none"}
	}
	fmt.Fprintf(w, "  %s %s\n", st.muted.Render("Batches:"), st.title.Render(strings.Join(batches, ", ")))
	if s.Elapsed > 0 {
		fmt.Fprintf(w, "  %s %s\n", st.muted.Render("Time:"), st.title.Render(formatDuration(s.Elapsed)))
	}

	if len(r.Characteristics) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, Characteristics(w, r.Characteristics))
	}

	if len(r.Diagnostics) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, st.accent.Render("  ▸ DIAGNOSTICS"))
		for _, d := range r.Diagnostics {
			line := "  " + d.String()
			if d.Severity == bferrors.SeverityInfo {
				fmt.Fprintln(w, st.muted.Render(line))
			} else {
				fmt.Fprintln(w, line)
			}
		}
	}

	for _, out := range s.Outputs {
		fmt.Fprintf(w, "  %s %s\n", st.muted.Render("Wrote:"), out)
	}
	fmt.Fprintln(w)
}

// Characteristics renders one table row per key.
func Characteristics(w io.Writer, cs []discovery.Characteristic) string {
	st := newStyles(w)
	rows := make([][]string, len(cs))
	for i, c := range cs {
		rules := "-"
		if c.FiringRules != nil && len(c.FiringRules.Rules) > 0 {
			rules = c.FiringRules.RuleSet().String()
		}
		durations := formatFactors(c.DurationDistribution)
		if c.DurationBaselineMissing {
			durations += " (no baseline)"
		}
		rows[i] = []string{
			c.Key().String(),
			string(c.Type),
			formatPercent(c.BatchFrequency),
			formatSizes(c.SizeDistribution),
			durations,
			rules,
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(st.muted).
		Headers("KEY", "TYPE", "FREQUENCY", "SIZES", "DURATION FACTORS", "FIRING RULES").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return st.header
			}
			return st.cell
		})
	return t.Render()
}
