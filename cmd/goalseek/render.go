package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/fyrsmithlabs/goalseek/internal/goalseek"
)

type styles struct {
	title   lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	dim     lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	border  lipgloss.Style
}

// newStyles binds the palette to w so colour is only emitted to terminals.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("51")),
		label:   r.NewStyle().Foreground(lipgloss.Color("45")).Width(14),
		value:   r.NewStyle().Foreground(lipgloss.Color("231")),
		dim:     r.NewStyle().Foreground(lipgloss.Color("245")),
		success: r.NewStyle().Bold(true).Foreground(lipgloss.Color("46")),
		warning: r.NewStyle().Bold(true).Foreground(lipgloss.Color("226")),
		failure: r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		border:  r.NewStyle().Foreground(lipgloss.Color("238")),
	}
}

func (s styles) outcome(o goalseek.Outcome) lipgloss.Style {
	switch o {
	case goalseek.OutcomeSuccess:
		return s.success
	case goalseek.OutcomeFailed:
		return s.failure
	default:
		return s.warning
	}
}

// renderResult formats a finished seek for humans.
func renderResult(w io.Writer, cfg goalseek.Config, r goalseek.Result, step goalseek.StepOutcome) string {
	st := newStyles(w)
	h := r.History()

	var b strings.Builder
	b.WriteString(st.title.Render("goalseek: "+cfg.Goal) + "\n\n")

	field := func(label, value string) {
		b.WriteString(st.label.Render(label) + st.value.Render(value) + "\n")
	}
	field("Outcome", st.outcome(r.Outcome()).Render(string(r.Outcome())))
	field("Attempts", fmt.Sprintf("%d/%d", h.Len(), cfg.MaxAttempts))
	field("Final score", fmt.Sprintf("%s (threshold %s)", goalseek.FinalScore(r), strconv.FormatFloat(cfg.Threshold, 'f', -1, 64)))
	if best, ok := goalseek.BestAttempt(r); ok {
		field("Best attempt", strconv.Itoa(best.Index))
	}
	field("Elapsed", r.Elapsed().Round(time.Millisecond).String())
	field("Run", st.dim.Render(r.RunID()))

	if h.Len() > 0 {
		b.WriteString("\n" + attemptTable(st, h.Attempts()) + "\n")
	}

	msg := step.Message
	if f, ok := r.(*goalseek.Failed); ok {
		msg = f.Error()
	}
	if msg != "" {
		b.WriteString("\n" + st.outcome(r.Outcome()).Render(msg))
	}
	return b.String()
}

func attemptTable(st styles, attempts []goalseek.Attempt) string {
	rows := make([][]string, 0, len(attempts))
	for _, a := range attempts {
		rows = append(rows, []string{
			strconv.Itoa(a.Index),
			a.Score.String(),
			string(a.Format),
			strconv.Itoa(a.ActionExitCode),
			a.Elapsed.Round(time.Millisecond).String(),
			attemptNotes(a),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(st.border).
		Headers("#", "SCORE", "FORMAT", "EXIT", "ELAPSED", "NOTES").
		Rows(rows...).
		String()
}

func attemptNotes(a goalseek.Attempt) string {
	var notes []string
	if a.TimedOut {
		notes = append(notes, "timed out")
	}
	if a.ValidationError != "" {
		notes = append(notes, "validation error: "+a.ValidationError)
	}
	if n := len(a.Gaps); n > 0 {
		notes = append(notes, fmt.Sprintf("%d gaps", n))
	}
	return strings.Join(notes, "; ")
}
