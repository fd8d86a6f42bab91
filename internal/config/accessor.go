package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// leaf is one settable config value, addressed as "<section>.<key>" by the
// json names of Config and its section structs.
type leaf struct {
	path  string
	index []int
	kind  reflect.Kind
}

var leaves, sections = collectLeaves()

func collectLeaves() ([]leaf, map[string]int) {
	var out []leaf
	secs := make(map[string]int)
	root := reflect.TypeOf(Config{})
	for i := 0; i < root.NumField(); i++ {
		sec := root.Field(i)
		secName := jsonName(sec)
		secs[secName] = i
		for j := 0; j < sec.Type.NumField(); j++ {
			f := sec.Type.Field(j)
			out = append(out, leaf{
				path:  secName + "." + jsonName(f),
				index: []int{i, j},
				kind:  f.Type.Kind(),
			})
		}
	}
	return out, secs
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" {
		return f.Name
	}
	return name
}

func findLeaf(path string) (leaf, bool) {
	for _, l := range leaves {
		if l.path == path {
			return l, true
		}
	}
	return leaf{}, false
}

// GetByPath returns a section ("backend") or a single value ("backend.apiBase").
func GetByPath(cfg *Config, path string) (any, error) {
	v := reflect.ValueOf(cfg).Elem()
	if i, ok := sections[path]; ok {
		return v.Field(i).Interface(), nil
	}
	l, ok := findLeaf(path)
	if !ok {
		return nil, fmt.Errorf("unknown config path: %s", path)
	}
	return v.FieldByIndex(l.index).Interface(), nil
}

// SetByPath parses value into the type of the value at path and stores it.
// Only single values can be set.
func SetByPath(cfg *Config, path string, value string) error {
	l, ok := findLeaf(path)
	if !ok {
		return fmt.Errorf("unknown config path: %s", path)
	}
	target := reflect.ValueOf(cfg).Elem().FieldByIndex(l.index)
	switch l.kind {
	case reflect.String:
		target.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: expected true or false, got %q", path, value)
		}
		target.SetBool(b)
	case reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: expected an integer, got %q", path, value)
		}
		target.SetInt(int64(n))
	default:
		return fmt.Errorf("%s: unsupported value type %s", path, l.kind)
	}
	return nil
}

// Sanitize returns a copy of the config with sensitive values masked.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	if out.Backend.APIKey != "" {
		out.Backend.APIKey = maskString(out.Backend.APIKey)
	}
	return &out
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns every settable path with its current value, including
// optional values that are unset.
func ListPaths(cfg *Config) map[string]any {
	v := reflect.ValueOf(cfg).Elem()
	out := make(map[string]any, len(leaves))
	for _, l := range leaves {
		out[l.path] = v.FieldByIndex(l.index).Interface()
	}
	return out
}
