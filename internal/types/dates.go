package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// DateLayout is the month precision used for entry start/end dates.
const DateLayout = "2006-01"

var exactLayouts = []string{
	"2006-01",
	"2006-01-02",
	"January 2006",
	"Jan 2006",
	"01/2006",
	"2006",
}

var parser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// NormalizeDate turns loosely formatted input ("March 2019", "2019-03-14",
// "2 years ago") into YYYY-MM. Blank input stays blank and "present" style
// words return ok=false with no error so callers can mark an entry current.
func NormalizeDate(input string, base time.Time) (date string, ok bool, err error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", false, nil
	}
	switch strings.ToLower(s) {
	case "present", "current", "now", "today":
		return "", false, nil
	}

	for _, layout := range exactLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout), true, nil
		}
	}

	r, err := parser.Parse(s, base)
	if err != nil {
		return "", false, fmt.Errorf("failed to parse date %q: %w", input, err)
	}
	if r == nil {
		return "", false, fmt.Errorf("unrecognized date %q", input)
	}
	return r.Time.Format(DateLayout), true, nil
}
