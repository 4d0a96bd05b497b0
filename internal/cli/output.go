package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/gmsas95/dosewise/internal/dose"
	"github.com/gmsas95/dosewise/internal/tracker"
)

// IsTerminal reports whether f is an interactive terminal that accepts color.
func IsTerminal(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

type palette struct {
	decorate bool
	title    lipgloss.Style
	done     lipgloss.Style
	current  lipgloss.Style
	missed   lipgloss.Style
	dim      lipgloss.Style
}

func newPalette(out io.Writer, decorate bool) *palette {
	r := lipgloss.NewRenderer(out)
	return &palette{
		decorate: decorate,
		title:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		done:     r.NewStyle().Foreground(lipgloss.Color("42")),
		current:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		missed:   r.NewStyle().Foreground(lipgloss.Color("196")),
		dim:      r.NewStyle().Faint(true),
	}
}

func (p *palette) paint(s lipgloss.Style, text string) string {
	if !p.decorate {
		return text
	}
	return s.Render(text)
}

func (p *palette) marker(status dose.DoseStatus) string {
	if !p.decorate {
		switch status {
		case dose.StatusCompleted:
			return "[x]"
		case dose.StatusCurrent:
			return "[>]"
		case dose.StatusMissed:
			return "[!]"
		default:
			return "[ ]"
		}
	}

	switch status {
	case dose.StatusCompleted:
		return p.done.Render("✓")
	case dose.StatusCurrent:
		return p.current.Render("●")
	case dose.StatusMissed:
		return p.missed.Render("✗")
	default:
		return p.dim.Render("○")
	}
}

// formatClock renders HH:MM in the user's preferred clock. Malformed input
// is returned unchanged.
func formatClock(hhmm string, use24 bool) string {
	if use24 {
		return hhmm
	}
	h, m, err := dose.ParseClock(hhmm)
	if err != nil {
		return hhmm
	}
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h %= 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, m, suffix)
}

func medicationList(g tracker.GroupView) string {
	out := ""
	for i, d := range g.Doses {
		if i > 0 {
			out += ", "
		}
		out += d.Medication.Name
		if d.Medication.Dosage != "" {
			out += " " + d.Medication.Dosage
		}
	}
	return out
}

func groupDetail(g tracker.GroupView) string {
	switch g.Status {
	case dose.StatusCompleted:
		return "taken"
	case dose.StatusMissed:
		return "missed, " + g.Relative
	default:
		return g.Relative
	}
}

func enabledStatus(enabled bool) string {
	if enabled {
		return "✅ enabled"
	}
	return "❌ disabled"
}

func maskToken(token string) string {
	if len(token) < 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
