package controller

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"calendarapp/internal/calendar"
	appLog "calendarapp/internal/log"
	"calendarapp/internal/model"
)

type theme struct {
	prompt  lipgloss.Style
	subject lipgloss.Style
	dim     lipgloss.Style
	busy    lipgloss.Style
	free    lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
}

// newTheme renders through out, so plain writers get unstyled text.
func newTheme(out io.Writer) theme {
	r := lipgloss.NewRenderer(out)
	return theme{
		prompt:  r.NewStyle().Foreground(lipgloss.Color("86")).Bold(true),
		subject: r.NewStyle().Bold(true),
		dim:     r.NewStyle().Foreground(lipgloss.Color("245")),
		busy:    r.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
		free:    r.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		warn:    r.NewStyle().Foreground(lipgloss.Color("214")),
		err:     r.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

func (c *Controller) printf(format string, a ...any) {
	fmt.Fprintf(c.out, format, a...)
}

func (c *Controller) printRows(rows []model.Details) {
	if len(rows) == 0 {
		c.printf("%s\n", c.theme.dim.Render("No events found"))
		return
	}
	for _, row := range rows {
		line := fmt.Sprintf("- %s: %s %s to %s %s",
			c.theme.subject.Render(row[model.KeySubject]),
			row[model.KeyStartDate], row[model.KeyStartTime],
			row[model.KeyEndDate], row[model.KeyEndTime])
		if loc := row[model.KeyLocation]; loc != "" {
			line += " at " + loc
		}
		if row[model.KeyPrivate] == "True" {
			line += c.theme.dim.Render(" (private)")
		}
		c.printf("%s\n", line)
	}
}

func (c *Controller) printStatus(status string) {
	style := c.theme.free
	if status == calendar.StatusBusy {
		style = c.theme.busy
	}
	c.printf("%s\n", style.Render(status))
}

func (c *Controller) printWarning(err error) {
	c.printf("%s\n", c.theme.warn.Render("skipped "+err.Error()))
}

func (c *Controller) printError(err error) {
	var me *model.Error
	if !errors.As(err, &me) {
		appLog.Error("command failed", err)
	}
	c.printf("%s\n", c.theme.err.Render("Error: "+err.Error()))
}
