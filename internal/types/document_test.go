package types

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_IsMeaningful(t *testing.T) {
	tests := []struct {
		name string
		doc  *Document
		want bool
	}{
		{"nil", nil, false},
		{"empty shell", &Document{}, false},
		{"whitespace only", &Document{Summary: "   ", Profile: Profile{FirstName: " "}}, false},
		{"empty lists", &Document{Work: []WorkEntry{}, Skills: []SkillEntry{}}, false},
		{"profile name", &Document{Profile: Profile{FirstName: "Ada"}}, true},
		{"summary", &Document{Summary: "Engineer"}, true},
		{"one skill", &Document{Skills: []SkillEntry{{ID: "s1"}}}, true},
		{"one reference", &Document{References: []ReferenceEntry{{ID: "r1"}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.doc.IsMeaningful())
		})
	}
}

func TestDocument_CloneDoesNotShare(t *testing.T) {
	doc := Document{
		Work:   []WorkEntry{{ID: "w1", Company: "Acme", Highlights: []string{"shipped"}}},
		Skills: []SkillEntry{{ID: "s1", Keywords: []string{"go"}}},
	}

	cp := doc.Clone()
	cp.Work[0].Company = "Other"
	cp.Work[0].Highlights[0] = "changed"
	cp.Skills[0].Keywords[0] = "rust"

	assert.Equal(t, "Acme", doc.Work[0].Company)
	assert.Equal(t, "shipped", doc.Work[0].Highlights[0])
	assert.Equal(t, "go", doc.Skills[0].Keywords[0])
}

func TestVisibility_DefaultsToVisible(t *testing.T) {
	v := Visibility{SectionWork: false, Section("bogus"): false}

	assert.False(t, v.IsVisible(SectionWork))
	assert.True(t, v.IsVisible(SectionSkills))

	norm := v.Normalize()
	assert.Len(t, norm, len(OptionalSections))
	assert.False(t, norm[SectionWork])
	assert.True(t, norm[SectionSummary])
	_, hasBogus := norm[Section("bogus")]
	assert.False(t, hasBogus)
}

func TestParseSection(t *testing.T) {
	for input, want := range map[string]Section{
		"work":      SectionWork,
		"Project":   SectionProjects,
		" skills ":  SectionSkills,
		"reference": SectionReferences,
		"summary":   SectionSummary,
		"interest":  SectionInterests,
		"education": SectionEducation,
	} {
		got, ok := ParseSection(input)
		require.True(t, ok, input)
		assert.Equal(t, want, got, input)
	}

	_, ok := ParseSection("hobbies")
	assert.False(t, ok)
}

func TestNormalizeDate(t *testing.T) {
	base := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"", "", false},
		{"present", "", false},
		{"2019-03", "2019-03", true},
		{"2019-03-14", "2019-03", true},
		{"March 2019", "2019-03", true},
		{"Jan 2020", "2020-01", true},
		{"2018", "2018-01", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok, err := NormalizeDate(tt.input, base)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDocumentFile_YAMLAndJSON(t *testing.T) {
	doc := &Document{
		Profile: Profile{FirstName: "Ada", LastName: "Lovelace"},
		Work:    []WorkEntry{{ID: "w1", Company: "Analytical Engines"}},
	}

	for _, name := range []string{"cv.yaml", "cv.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, WriteDocumentFile(path, doc))

			got, err := ReadDocumentFile(path)
			require.NoError(t, err)
			assert.Equal(t, "Ada Lovelace", got.Profile.FullName())
			require.Len(t, got.Work, 1)
			assert.Equal(t, "Analytical Engines", got.Work[0].Company)
		})
	}

	err := WriteDocumentFile(filepath.Join(t.TempDir(), "cv.txt"), doc)
	assert.Error(t, err)
}
