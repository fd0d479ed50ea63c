package export

import (
	"strings"
	"unicode"

	"github.com/resumely/cvsync/internal/types"
)

// FallbackFileName is used when the profile carries no usable name.
const FallbackFileName = "resume.pdf"

// FileName derives the export file name from the profile: First_Last_CV.pdf.
// Characters other than letters, digits and hyphens are dropped, inner
// whitespace becomes an underscore.
func FileName(p types.Profile) string {
	var parts []string
	for _, name := range []string{p.FirstName, p.LastName} {
		if s := sanitize(name); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return FallbackFileName
	}
	return strings.Join(parts, "_") + "_CV.pdf"
}

func sanitize(name string) string {
	var words []string
	for _, field := range strings.Fields(name) {
		var b strings.Builder
		for _, r := range field {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			words = append(words, b.String())
		}
	}
	return strings.Join(words, "_")
}
