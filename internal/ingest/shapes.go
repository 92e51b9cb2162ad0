package ingest

import (
	"sort"
	"strings"

	"github.com/localnerve/lite/internal/catalog"
)

// field is one member of a JSON object, kept in document order
type field struct {
	Key   string
	Value interface{}
}

// keys that hold the nested list of a browser profile
var profileListKeys = []string{"entries", "records", "items", "data", "history", "downloads", "searches", "extensions"}

// keys that name the profile an entry list belongs to
var profileNameKeys = []string{"profile", "source_profile", "sourceProfile", "profile_name"}

// keys that carry raw command output
var rawOutputKeys = []string{"stdout", "output", "raw_output", "content"}

// expandElement turns one array element of a category value into candidate records
func expandElement(def *catalog.Definition, v interface{}) []interface{} {
	switch def.Shape {
	case catalog.ShapeProfiles:
		if m, ok := v.(map[string]interface{}); ok {
			if nested, name, ok := profileList(m); ok {
				return withProfile(nested, name, m)
			}
		}
	case catalog.ShapeKeyValue:
		switch t := v.(type) {
		case string:
			name, value, _ := strings.Cut(t, "=")
			return []interface{}{map[string]interface{}{"name": name, "value": value}}
		case map[string]interface{}:
			if _, ok := resolvesTo(def, t, "name"); !ok {
				return keyValueRows(sortedFields(t))
			}
		}
	}
	return finish(def, v)
}

// expandObject turns a category value that is a JSON object into candidate records
func expandObject(def *catalog.Definition, fields []field) []interface{} {
	switch def.Shape {
	case catalog.ShapeProfiles:
		if keyedByProfile(def, fields) {
			var out []interface{}
			for _, f := range fields {
				switch t := f.Value.(type) {
				case []interface{}:
					out = append(out, withProfile(t, f.Key, nil)...)
				case map[string]interface{}:
					if nested, _, ok := profileList(t); ok {
						out = append(out, withProfile(nested, f.Key, t)...)
					} else {
						out = append(out, withProfile([]interface{}{t}, f.Key, nil)...)
					}
				default:
					out = append(out, f.Value)
				}
			}
			return out
		}

	case catalog.ShapeCommandOutputs:
		var out []interface{}
		for _, f := range fields {
			switch t := f.Value.(type) {
			case map[string]interface{}:
				rec := copyRecord(t)
				if _, ok := resolvesTo(def, rec, "rule_type"); !ok {
					rec["rule_type"] = f.Key
				}
				out = append(out, rec)
			case string:
				out = append(out, map[string]interface{}{"rule_type": f.Key, "stdout": t})
			default:
				out = append(out, f.Value)
			}
		}
		return out

	case catalog.ShapeKeyValue:
		for _, f := range fields {
			if f.Key != "variables" {
				continue
			}
			switch t := f.Value.(type) {
			case map[string]interface{}:
				return keyValueRows(sortedFields(t))
			case []interface{}:
				var out []interface{}
				for _, el := range t {
					out = append(out, expandElement(def, el)...)
				}
				return out
			}
		}
		return keyValueRows(fields)
	}

	rec := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		rec[f.Key] = f.Value
	}
	rec = flatten(def, rec)

	// an object keyed by identifier whose values are the records
	if !hasCatalogField(def, rec) && len(fields) > 0 && allObjects(fields) {
		out := make([]interface{}, 0, len(fields))
		for _, f := range fields {
			out = append(out, finish(def, f.Value)...)
		}
		return out
	}
	return finish(def, rec)
}

// expandScalar handles a category value that is neither an array nor an object
func expandScalar(def *catalog.Definition, v interface{}) []interface{} {
	if isEmpty(v) {
		return nil
	}
	if s, ok := v.(string); ok && def.HasParser() {
		return parse(def.Parser, s)
	}
	return []interface{}{v}
}

// finish applies raw-output parsing and wrapper flattening to one candidate
func finish(def *catalog.Definition, v interface{}) []interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		if def.HasParser() {
			if raw, ok := rawOutput(def, t); ok {
				return parse(def.Parser, raw)
			}
		}
		return []interface{}{flatten(def, t)}
	case string:
		if def.HasParser() {
			return parse(def.Parser, t)
		}
	}
	return []interface{}{v}
}

func flatten(def *catalog.Definition, rec map[string]interface{}) map[string]interface{} {
	if len(def.Flatten) == 0 {
		return rec
	}
	for _, wrapper := range def.Flatten {
		inner, ok := rec[wrapper].(map[string]interface{})
		if !ok {
			continue
		}
		delete(rec, wrapper)
		for k, v := range inner {
			if _, exists := rec[k]; !exists {
				rec[k] = v
			}
		}
	}
	return rec
}

// rawOutput returns the command output of a record that carries no parsed fields
func rawOutput(def *catalog.Definition, rec map[string]interface{}) (string, bool) {
	for _, key := range rawOutputKeys {
		s, ok := rec[key].(string)
		if !ok {
			continue
		}
		if _, isColumn := def.Resolve(key); isColumn {
			continue
		}
		return s, true
	}
	return "", false
}

func profileList(m map[string]interface{}) ([]interface{}, string, bool) {
	var name string
	for _, k := range profileNameKeys {
		if s, ok := m[k].(string); ok && s != "" {
			name = s
			break
		}
	}
	for _, k := range profileListKeys {
		if list, ok := m[k].([]interface{}); ok {
			return list, name, true
		}
	}
	return nil, "", false
}

// withProfile stamps the profile name, and the parent's browser, onto each entry
func withProfile(items []interface{}, profile string, parent map[string]interface{}) []interface{} {
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			out = append(out, item)
			continue
		}
		rec := copyRecord(m)
		if profile != "" && !hasAny(rec, profileNameKeys) {
			rec["profile"] = profile
		}
		if parent != nil {
			if browser, ok := parent["browser"]; ok {
				if _, exists := rec["browser"]; !exists {
					rec["browser"] = browser
				}
			}
		}
		out = append(out, rec)
	}
	return out
}

// keyedByProfile reports whether an object maps profile names to entry lists
func keyedByProfile(def *catalog.Definition, fields []field) bool {
	if len(fields) == 0 {
		return false
	}
	rec := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		switch f.Value.(type) {
		case []interface{}, map[string]interface{}:
		default:
			return false
		}
		rec[f.Key] = f.Value
	}
	return !hasCatalogField(def, rec)
}

func keyValueRows(fields []field) []interface{} {
	out := make([]interface{}, 0, len(fields))
	for _, f := range fields {
		out = append(out, map[string]interface{}{"name": f.Key, "value": f.Value})
	}
	return out
}

func resolvesTo(def *catalog.Definition, rec map[string]interface{}, column string) (string, bool) {
	for k := range rec {
		if col, ok := def.Resolve(k); ok && col.Name == column {
			return k, true
		}
	}
	return "", false
}

func hasCatalogField(def *catalog.Definition, rec map[string]interface{}) bool {
	for k := range rec {
		if _, ok := def.Resolve(k); ok {
			return true
		}
	}
	return false
}

func allObjects(fields []field) bool {
	for _, f := range fields {
		if _, ok := f.Value.(map[string]interface{}); !ok {
			return false
		}
	}
	return true
}

func hasAny(m map[string]interface{}, keys []string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func copyRecord(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedFields(m map[string]interface{}) []field {
	out := make([]field, 0, len(m))
	for k, v := range m {
		out = append(out, field{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
