package ui

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"net/url"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/resumely/cvsync/internal/types"
)

// ErrAborted is returned when the user cancels a form.
var ErrAborted = huh.ErrUserAborted

// FormOptions configures interactive forms.
type FormOptions struct {
	In  io.Reader
	Out io.Writer
	// Accessible uses plain line prompts instead of the full-screen form.
	Accessible bool
}

// ProfileForm builds the form that edits p in place.
func ProfileForm(p *types.Profile, opts FormOptions) *huh.Form {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("First name").Value(&p.FirstName).Validate(required("first name")),
			huh.NewInput().Title("Last name").Value(&p.LastName),
			huh.NewInput().Title("Headline").Placeholder("Senior Backend Engineer").Value(&p.Headline),
		).Title("Profile"),
		huh.NewGroup(
			huh.NewInput().Title("Email").Value(&p.Email).Validate(ValidateEmail),
			huh.NewInput().Title("Phone").Value(&p.Phone),
			huh.NewInput().Title("Location").Value(&p.Location),
		).Title("Contact"),
		huh.NewGroup(
			huh.NewInput().Title("Website").Value(&p.Website).Validate(ValidateURL),
			huh.NewInput().Title("LinkedIn").Value(&p.LinkedIn),
			huh.NewInput().Title("GitHub").Value(&p.GitHub),
		).Title("Links"),
	).WithAccessible(opts.Accessible)
	if opts.In != nil {
		form = form.WithInput(opts.In)
	}
	if opts.Out != nil {
		form = form.WithOutput(opts.Out)
	}
	return form
}

// EditProfile runs the profile form on a copy of current and returns the
// edited profile. current is left untouched when the user aborts.
func EditProfile(ctx context.Context, current types.Profile, opts FormOptions) (types.Profile, error) {
	edited := current
	if err := ProfileForm(&edited, opts).RunWithContext(ctx); err != nil {
		return current, err
	}
	return trimProfile(edited), nil
}

// ConfirmDiscard asks whether unsynced changes may be dropped.
func ConfirmDiscard(ctx context.Context, opts FormOptions) (bool, error) {
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Unsynced changes will be lost. Continue?").
			Affirmative("Discard").
			Negative("Keep").
			Value(&ok),
	)).WithAccessible(opts.Accessible)
	if opts.In != nil {
		form = form.WithInput(opts.In)
	}
	if opts.Out != nil {
		form = form.WithOutput(opts.Out)
	}
	if err := form.RunWithContext(ctx); err != nil {
		return false, err
	}
	return ok, nil
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

// ValidateEmail accepts a blank value or a single address.
func ValidateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return fmt.Errorf("not a valid email address")
	}
	return nil
}

// ValidateURL accepts a blank value or an absolute http(s) URL.
func ValidateURL(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an http(s) URL")
	}
	return nil
}

func trimProfile(p types.Profile) types.Profile {
	for _, f := range []*string{&p.FirstName, &p.LastName, &p.Headline, &p.Email, &p.Phone,
		&p.Location, &p.Website, &p.LinkedIn, &p.GitHub} {
		*f = strings.TrimSpace(*f)
	}
	return p
}
