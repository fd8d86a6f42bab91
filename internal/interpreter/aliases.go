package interpreter

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"invoicechat/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed aliases.yaml
var defaultAliasYAML []byte

// FieldAliases maps one canonical field to the source keys that feed it.
type FieldAliases struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// AliasTable is the declarative set of recognised field names.
type AliasTable struct {
	Fields []FieldAliases `yaml:"fields"`
}

// DefaultAliases returns the built-in table.
func DefaultAliases() *AliasTable {
	t, err := ParseAliases(defaultAliasYAML)
	if err != nil {
		panic(fmt.Sprintf("interpreter: embedded alias table: %v", err))
	}
	return t
}

// LoadAliasFile reads an alias table from a YAML file.
func LoadAliasFile(path string) (*AliasTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias file: %w", err)
	}
	t, err := ParseAliases(data)
	if err != nil {
		return nil, fmt.Errorf("alias file %s: %w", path, err)
	}
	return t, nil
}

// ParseAliases decodes and validates a YAML alias table.
func ParseAliases(data []byte) (*AliasTable, error) {
	var t AliasTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse alias table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate rejects empty tables, unnamed fields, fields without aliases and
// duplicate canonical names.
func (t *AliasTable) Validate() error {
	if len(t.Fields) == 0 {
		return fmt.Errorf("alias table has no fields")
	}
	seen := make(map[string]bool, len(t.Fields))
	for i, f := range t.Fields {
		if f.Name == "" {
			return fmt.Errorf("alias table field %d has no name", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("alias table field %q declared twice", f.Name)
		}
		seen[f.Name] = true
		if len(f.Aliases) == 0 {
			return fmt.Errorf("alias table field %q has no aliases", f.Name)
		}
	}
	return nil
}

// Normalize maps a raw record onto the canonical shape. Fields with no
// matching alias are left out rather than defaulted.
func (t *AliasTable) Normalize(raw map[string]any) domain.Record {
	out := make(domain.Record, len(t.Fields))
	for _, f := range t.Fields {
		for _, alias := range f.Aliases {
			if v, ok := lookup(raw, alias); ok {
				out[f.Name] = v
				break
			}
		}
	}
	return out
}

// lookup resolves key in raw, falling back to a dotted path walk.
func lookup(raw map[string]any, key string) (any, bool) {
	if v, ok := raw[key]; ok && v != nil {
		return v, true
	}
	if !strings.Contains(key, ".") {
		return nil, false
	}
	var cur any = raw
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}
