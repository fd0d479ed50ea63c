// Package render caches remote preview renders by content fingerprint.
//
// Rendering is expensive and rate limited, so every artifact is memoized under
// the fingerprint of the snapshot that produced it. Identical inputs never
// reach the renderer twice while the artifact is still cached.
package render

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/resumely/cvsync/internal/types"
)

// Fingerprint returns the canonical content hash of snap.
//
// Canonical form: the snapshot is encoded as JSON with every nil list replaced
// by an empty one, the visibility map materialized for every optional section
// and an empty template id replaced by the default. The JSON is then decoded
// into generic maps and re-encoded, which sorts object keys at every level.
// HTML characters are not escaped. The result is the lowercase hex SHA-256 of
// those bytes.
func Fingerprint(snap types.Snapshot) string {
	sum := sha256.Sum256(Canonical(snap))
	return hex.EncodeToString(sum[:])
}

// Canonical returns the canonical JSON encoding used by Fingerprint.
func Canonical(snap types.Snapshot) []byte {
	norm := types.Snapshot{
		Document:   normalizeDocument(snap.Document),
		Visibility: snap.Visibility.Normalize(),
		TemplateID: snap.TemplateID,
	}
	if norm.TemplateID == "" {
		norm.TemplateID = types.DefaultTemplateID
	}

	raw, err := json.Marshal(norm)
	if err != nil {
		// Snapshot holds only strings, bools and slices of them.
		panic("render: snapshot is not JSON encodable: " + err.Error())
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		panic("render: snapshot JSON does not round trip: " + err.Error())
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(tree)
	return bytes.TrimRight(buf.Bytes(), "\n")
}

func normalizeDocument(in types.Document) types.Document {
	d := in.Clone()
	d.Work = nonNil(d.Work)
	for i := range d.Work {
		d.Work[i].Highlights = nonNil(d.Work[i].Highlights)
	}
	d.Education = nonNil(d.Education)
	d.Projects = nonNil(d.Projects)
	for i := range d.Projects {
		d.Projects[i].Technologies = nonNil(d.Projects[i].Technologies)
	}
	d.Skills = nonNil(d.Skills)
	for i := range d.Skills {
		d.Skills[i].Keywords = nonNil(d.Skills[i].Keywords)
	}
	d.Interests = nonNil(d.Interests)
	for i := range d.Interests {
		d.Interests[i].Keywords = nonNil(d.Interests[i].Keywords)
	}
	d.References = nonNil(d.References)
	return d
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
