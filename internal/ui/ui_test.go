package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"

	"github.com/resumely/cvsync/internal/types"
)

func TestProfileFor_NonTerminal(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, termenv.Ascii, ProfileFor(&buf))
	assert.False(t, IsTerminal(&buf))
}

func TestRenderStatus(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	synced := now.Add(-90 * time.Second)
	out := RenderStatus(Status{
		Identity:     "alice",
		SyncState:    "pending",
		Dirty:        true,
		LastSyncedAt: &synced,
		Template:     "modern",
		Now:          now,
		Sections: []SectionCount{
			{Name: "work", Count: 2, Visible: true},
			{Name: "interests", Count: 0, Visible: false},
		},
	})

	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "unsynced changes (pending)")
	assert.Contains(t, out, "1m30s ago")
	assert.Contains(t, out, "modern")
	assert.Contains(t, out, "hidden")

	clean := RenderStatus(Status{Identity: "bob", SyncState: "idle"})
	assert.Contains(t, clean, "in sync")
	assert.Contains(t, clean, "never")
	assert.NotContains(t, clean, "(idle)")
}

func TestValidators(t *testing.T) {
	assert.NoError(t, ValidateEmail(""))
	assert.NoError(t, ValidateEmail("ada@example.com"))
	assert.Error(t, ValidateEmail("Ada <ada@example.com>"))
	assert.Error(t, ValidateEmail("nope"))

	assert.NoError(t, ValidateURL(""))
	assert.NoError(t, ValidateURL("https://ada.dev"))
	assert.Error(t, ValidateURL("ada.dev"))
	assert.Error(t, ValidateURL("ftp://ada.dev"))

	assert.Error(t, required("first name")("  "))
}

func TestTrimProfile(t *testing.T) {
	p := trimProfile(types.Profile{FirstName: " Ada ", GitHub: "ada\n"})
	assert.Equal(t, "Ada", p.FirstName)
	assert.Equal(t, "ada", p.GitHub)
}

func TestProfileFormBindsFields(t *testing.T) {
	p := types.Profile{FirstName: "Ada"}
	form := ProfileForm(&p, FormOptions{Accessible: true})
	assert.NotNil(t, form)
}
