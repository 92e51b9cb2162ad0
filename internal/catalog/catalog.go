package catalog

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/localnerve/lite/data"
	"github.com/localnerve/lite/internal/types"
	"gopkg.in/yaml.v3"
)

// Column describes one typed column of a category table
type Column struct {
	Name       string     `yaml:"name" json:"name"`
	Type       ColumnType `yaml:"type" json:"type"`
	Scale      int        `yaml:"scale,omitempty" json:"scale,omitempty"`
	Required   bool       `yaml:"required,omitempty" json:"required,omitempty"`
	Searchable bool       `yaml:"searchable,omitempty" json:"searchable,omitempty"`
	Aliases    []string   `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// Definition is the catalog entry of one category
type Definition struct {
	Name    Category `yaml:"name" json:"name"`
	Title   string   `yaml:"title" json:"title"`
	Keys    []string `yaml:"keys" json:"keys"`
	Shape   Shape    `yaml:"shape,omitempty" json:"shape"`
	Parser  string   `yaml:"parser,omitempty" json:"parser,omitempty"`
	Flatten []string `yaml:"flatten,omitempty" json:"flatten,omitempty"`
	Cols    []Column `yaml:"columns" json:"columns"`

	byName  map[string]int
	byAlias map[string]int
}

// Catalog is the immutable set of category definitions
type Catalog struct {
	Version     int           `yaml:"version"`
	Definitions []*Definition `yaml:"categories"`

	byKey map[string]*Definition
}

var (
	loadOnce sync.Once
	loaded   *Catalog
	loadErr  error
)

// Load parses the embedded catalog once and returns it
func Load() (*Catalog, error) {
	loadOnce.Do(func() {
		loaded, loadErr = Parse(data.Catalog)
	})
	return loaded, loadErr
}

// Default returns the embedded catalog. It panics if the embedded file is invalid,
// which the package tests rule out.
func Default() *Catalog {
	c, err := Load()
	if err != nil {
		panic(fmt.Sprintf("catalog: %v", err))
	}
	return c
}

// Parse builds a catalog from YAML and validates it against the Category constants
func Parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) index() error {
	c.byKey = make(map[string]*Definition)
	seen := make(map[Category]bool)

	for _, def := range c.Definitions {
		if seen[def.Name] {
			return fmt.Errorf("catalog: duplicate category %q", def.Name)
		}
		seen[def.Name] = true
		if def.Shape == "" {
			def.Shape = ShapeRecords
		}
		if len(def.Cols) == 0 {
			return fmt.Errorf("catalog: category %q has no columns", def.Name)
		}

		for _, key := range append([]string{string(def.Name)}, def.Keys...) {
			if other, ok := c.byKey[key]; ok && other != def {
				return fmt.Errorf("catalog: key %q claimed by %q and %q", key, other.Name, def.Name)
			}
			c.byKey[key] = def
		}

		if err := def.index(); err != nil {
			return err
		}
	}

	for _, name := range Categories {
		if !seen[name] {
			return fmt.Errorf("catalog: category %q has no entry", name)
		}
	}
	if len(seen) != len(Categories) {
		return fmt.Errorf("catalog: %d entries for %d categories", len(seen), len(Categories))
	}
	return nil
}

func (d *Definition) index() error {
	d.byName = make(map[string]int, len(d.Cols))
	d.byAlias = make(map[string]int)

	for i := range d.Cols {
		col := &d.Cols[i]
		switch col.Name {
		case ColumnID, ColumnRunID, ColumnIngestedAt:
			return fmt.Errorf("catalog: %s.%s is a reserved column", d.Name, col.Name)
		}
		switch col.Type {
		case TypeString, TypeInteger, TypeBoolean, TypeTimestamp, TypeJSON:
		case TypeDecimal:
			if col.Scale <= 0 {
				col.Scale = DefaultDecimalScale
			}
		default:
			return fmt.Errorf("catalog: %s.%s has unknown type %q", d.Name, col.Name, col.Type)
		}
		if _, dup := d.byName[col.Name]; dup {
			return fmt.Errorf("catalog: %s.%s declared twice", d.Name, col.Name)
		}
		d.byName[col.Name] = i
	}

	for i, col := range d.Cols {
		for _, alias := range col.Aliases {
			if _, isColumn := d.byName[alias]; isColumn {
				return fmt.Errorf("catalog: %s alias %q shadows a column", d.Name, alias)
			}
			if j, dup := d.byAlias[alias]; dup && j != i {
				return fmt.Errorf("catalog: %s alias %q is ambiguous", d.Name, alias)
			}
			d.byAlias[alias] = i
		}
	}
	return nil
}

// Lookup returns the definition whose name or source key equals key.
// Matching is case-sensitive.
func (c *Catalog) Lookup(key string) (*Definition, error) {
	if def, ok := c.byKey[key]; ok {
		return def, nil
	}
	return nil, fmt.Errorf("%w %q", types.ErrUnknownCategory, key)
}

// Get returns the definition of a category constant
func (c *Catalog) Get(name Category) (*Definition, error) {
	def, ok := c.byKey[string(name)]
	if !ok || def.Name != name {
		return nil, fmt.Errorf("%w %q", types.ErrUnknownCategory, name)
	}
	return def, nil
}

// All returns every definition in catalog order
func (c *Catalog) All() []*Definition {
	out := make([]*Definition, len(c.Definitions))
	copy(out, c.Definitions)
	return out
}

// Lookup resolves a key against the embedded catalog
func Lookup(key string) (*Definition, error) {
	return Default().Lookup(key)
}

// Get resolves a category against the embedded catalog
func Get(name Category) (*Definition, error) {
	return Default().Get(name)
}

// All lists the embedded catalog
func All() []*Definition {
	return Default().All()
}

// Columns returns the columns in table order
func (d *Definition) Columns() []Column {
	return d.Cols
}

// ColumnNames returns the column names in table order
func (d *Definition) ColumnNames() []string {
	names := make([]string, len(d.Cols))
	for i, col := range d.Cols {
		names[i] = col.Name
	}
	return names
}

// SearchableColumns returns the columns keyword search scans
func (d *Definition) SearchableColumns() []Column {
	var out []Column
	for _, col := range d.Cols {
		if col.Searchable {
			out = append(out, col)
		}
	}
	return out
}

// Column returns the column with the given name
func (d *Definition) Column(name string) (Column, bool) {
	i, ok := d.byName[name]
	if !ok {
		return Column{}, false
	}
	return d.Cols[i], true
}

// Resolve maps a source field to a column: exact name, then alias, then snake_case form.
func (d *Definition) Resolve(field string) (Column, bool) {
	if i, ok := d.byName[field]; ok {
		return d.Cols[i], true
	}
	if i, ok := d.byAlias[field]; ok {
		return d.Cols[i], true
	}
	snake := SnakeCase(field)
	if snake == field {
		return Column{}, false
	}
	if i, ok := d.byName[snake]; ok {
		return d.Cols[i], true
	}
	if i, ok := d.byAlias[snake]; ok {
		return d.Cols[i], true
	}
	return Column{}, false
}

// HasParser reports whether raw command output in a record is expanded by a parser
func (d *Definition) HasParser() bool {
	return d.Parser != ""
}

// SnakeCase converts camelCase, PascalCase and dashed names to snake_case
func SnakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '-' || r == ' ' || r == '.':
			b.WriteByte('_')
		case unicode.IsUpper(r):
			if i > 0 && runes[i-1] != '_' && runes[i-1] != '-' {
				prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
