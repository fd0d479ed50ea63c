package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// SectionCount is one row of the section summary.
type SectionCount struct {
	Name    string
	Count   int
	Visible bool
}

// Status is what `cvsync status` shows.
type Status struct {
	Identity     string
	SyncState    string
	Dirty        bool
	LastSyncedAt *time.Time
	Template     string
	Sections     []SectionCount
	Now          time.Time
}

var labelStyle = lipgloss.NewStyle().Width(14).Foreground(ColorMuted)

// RenderStatus formats s as a block of labelled lines.
func RenderStatus(s Status) string {
	var b strings.Builder
	line := func(label, value string) {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value))
		b.WriteByte('\n')
	}

	line("Identity", RenderBold(s.Identity))

	syncText := RenderPass("✓ in sync")
	if s.Dirty {
		syncText = RenderWarn("● unsynced changes")
	}
	if s.SyncState != "" && s.SyncState != "idle" {
		syncText += RenderMuted(" (" + s.SyncState + ")")
	}
	line("Sync", syncText)
	line("Last synced", formatSynced(s.LastSyncedAt, s.Now))
	line("Template", RenderAccent(s.Template))

	if len(s.Sections) > 0 {
		b.WriteByte('\n')
		for _, sec := range s.Sections {
			mark := RenderPass("shown")
			if !sec.Visible {
				mark = RenderMuted("hidden")
			}
			line(sec.Name, fmt.Sprintf("%-4d %s", sec.Count, mark))
		}
	}
	return b.String()
}

func formatSynced(at *time.Time, now time.Time) string {
	if at == nil {
		return RenderMuted("never")
	}
	if now.IsZero() {
		now = time.Now()
	}
	ago := now.Sub(*at).Round(time.Second)
	if ago < 0 {
		ago = 0
	}
	return fmt.Sprintf("%s %s", at.Local().Format("2006-01-02 15:04:05"), RenderMuted("("+ago.String()+" ago)"))
}
