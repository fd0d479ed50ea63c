// Package templates holds the catalog of CV templates a document can select.
package templates

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/resumely/cvsync/internal/types"
)

//go:embed catalog.toml
var builtin []byte

var (
	// ErrUnknownTemplate is returned when a template id is not in the catalog.
	ErrUnknownTemplate = errors.New("unknown template")

	idPattern    = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
	colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

// Template describes one layout.
type Template struct {
	ID          string          `toml:"id"`
	Name        string          `toml:"name"`
	Description string          `toml:"description"`
	Columns     int             `toml:"columns"`
	Accent      string          `toml:"accent"`
	Sidebar     []types.Section `toml:"sidebar"`
	Sections    []types.Section `toml:"sections"`
}

type catalogFile struct {
	Default   string     `toml:"default"`
	Templates []Template `toml:"template"`
}

// Catalog is an immutable set of templates keyed by id.
type Catalog struct {
	defaultID string
	byID      map[string]Template
	order     []string
}

// Builtin returns the catalog shipped with cvsync.
func Builtin() *Catalog {
	c, err := Parse(builtin)
	if err != nil {
		panic(fmt.Sprintf("builtin template catalog is invalid: %v", err))
	}
	return c
}

// Parse decodes and validates a self-contained TOML catalog.
func Parse(data []byte) (*Catalog, error) {
	c, err := decode(data)
	if err != nil {
		return nil, err
	}
	if c.defaultID == "" {
		c.defaultID = types.DefaultTemplateID
	}
	if _, ok := c.byID[c.defaultID]; !ok {
		return nil, fmt.Errorf("default template %q not defined", c.defaultID)
	}
	return c, nil
}

// Load returns the builtin catalog merged with the user catalog at path.
// User entries replace builtin ones with the same id. A missing file yields
// the builtin catalog unchanged.
func Load(path string) (*Catalog, error) {
	base := Builtin()
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return base, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read template catalog: %w", err)
	}
	user, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	merged := base.Merge(user)
	if _, ok := merged.byID[merged.defaultID]; !ok {
		return nil, fmt.Errorf("%s: default template %q not defined", path, merged.defaultID)
	}
	return merged, nil
}

func decode(data []byte) (*Catalog, error) {
	var f catalogFile
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template catalog: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown catalog key %q", undecoded[0].String())
	}

	c := &Catalog{defaultID: f.Default, byID: make(map[string]Template, len(f.Templates))}
	for _, t := range f.Templates {
		if err := validate(t); err != nil {
			return nil, err
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %q", t.ID)
		}
		c.byID[t.ID] = t
		c.order = append(c.order, t.ID)
	}
	return c, nil
}

// Merge returns a catalog with other's templates added to or replacing c's.
func (c *Catalog) Merge(other *Catalog) *Catalog {
	out := &Catalog{defaultID: c.defaultID, byID: make(map[string]Template, len(c.byID)+len(other.byID))}
	for _, id := range c.order {
		out.byID[id] = c.byID[id]
		out.order = append(out.order, id)
	}
	for _, id := range other.order {
		if _, exists := out.byID[id]; !exists {
			out.order = append(out.order, id)
		}
		out.byID[id] = other.byID[id]
	}
	if other.defaultID != "" {
		out.defaultID = other.defaultID
	}
	return out
}

// Default returns the id used for documents without a valid selection.
func (c *Catalog) Default() string { return c.defaultID }

// Lookup returns the template with id.
func (c *Catalog) Lookup(id string) (Template, error) {
	t, ok := c.byID[id]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, id)
	}
	return t, nil
}

// Resolve returns id when it exists and the default id otherwise.
func (c *Catalog) Resolve(id string) string {
	if _, ok := c.byID[id]; ok {
		return id
	}
	return c.defaultID
}

// List returns templates in catalog order.
func (c *Catalog) List() []Template {
	out := make([]Template, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// IDs returns the sorted template ids.
func (c *Catalog) IDs() []string {
	ids := append([]string(nil), c.order...)
	sort.Strings(ids)
	return ids
}

func validate(t Template) error {
	if !idPattern.MatchString(t.ID) {
		return fmt.Errorf("invalid template id %q", t.ID)
	}
	if t.Name == "" {
		return fmt.Errorf("template %q: name is required", t.ID)
	}
	if t.Columns < 1 || t.Columns > 2 {
		return fmt.Errorf("template %q: columns must be 1 or 2", t.ID)
	}
	if t.Accent != "" && !colorPattern.MatchString(t.Accent) {
		return fmt.Errorf("template %q: invalid accent color %q", t.ID, t.Accent)
	}
	for _, sec := range append(append([]types.Section(nil), t.Sections...), t.Sidebar...) {
		if _, ok := types.ParseSection(string(sec)); !ok {
			return fmt.Errorf("template %q: unknown section %q", t.ID, sec)
		}
	}
	if len(t.Sidebar) > 0 && t.Columns != 2 {
		return fmt.Errorf("template %q: sidebar requires two columns", t.ID)
	}
	return nil
}
