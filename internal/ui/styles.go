// Package ui renders terminal output for the cvsync CLI.
package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	ColorPass   = lipgloss.AdaptiveColor{Light: "#15803d", Dark: "#4ade80"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#b45309", Dark: "#fbbf24"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#b91c1c", Dark: "#f87171"}
	ColorAccent = lipgloss.AdaptiveColor{Light: "#1d4ed8", Dark: "#60a5fa"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#6b7280", Dark: "#9ca3af"}

	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	BoldStyle   = lipgloss.NewStyle().Bold(true)
)

// Init picks the color profile for out. Color is disabled when out is not a
// terminal or NO_COLOR is set.
func Init(out io.Writer) {
	lipgloss.SetColorProfile(ProfileFor(out))
}

// ProfileFor returns the color profile to use when writing to out.
func ProfileFor(out io.Writer) termenv.Profile {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return termenv.Ascii
	}
	if !IsTerminal(out) {
		return termenv.Ascii
	}
	return termenv.NewOutput(out).EnvColorProfile()
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w any) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

func RenderPass(s string) string   { return PassStyle.Render(s) }
func RenderWarn(s string) string   { return WarnStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderAccent(s string) string { return AccentStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }
func RenderBold(s string) string   { return BoldStyle.Render(s) }
