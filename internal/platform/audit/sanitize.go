package audit

import (
	"encoding"
	"encoding/json"
	"reflect"
	"strings"
)

var defaultForbiddenKeys = []string{
	"body", "content", "session_note_body", "note_body",
	"password", "token", "secret", "api_key", "access_token", "refresh_token",
	"email", "phone", "ssn", "diagnosis", "medical", "health",
}

// DefaultForbiddenKeys returns a copy of the built-in forbidden metadata keys.
func DefaultForbiddenKeys() []string {
	out := make([]string, len(defaultForbiddenKeys))
	copy(out, defaultForbiddenKeys)
	return out
}

// Sanitizer strips forbidden keys from audit metadata. The key set is fixed
// at construction and never mutated afterwards.
type Sanitizer struct {
	forbidden map[string]struct{}
}

// NewSanitizer builds a Sanitizer for keys, compared case-insensitively.
func NewSanitizer(keys []string) *Sanitizer {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[strings.ToLower(k)] = struct{}{}
	}
	return &Sanitizer{forbidden: set}
}

// NewDefaultSanitizer uses DefaultForbiddenKeys.
func NewDefaultSanitizer() *Sanitizer {
	return NewSanitizer(defaultForbiddenKeys)
}

// Forbidden reports whether key would be stripped.
func (s *Sanitizer) Forbidden(key string) bool {
	_, ok := s.forbidden[strings.ToLower(key)]
	return ok
}

// Sanitize returns a copy of metadata without forbidden keys at any depth.
// Maps with string keys, slices, arrays, pointers and structs are walked
// whatever their static type. Anything that is not a mapping yields an empty
// map. The input is never modified.
func (s *Sanitizer) Sanitize(metadata interface{}) map[string]interface{} {
	if m, ok := s.sanitizeValue(metadata).(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

func (s *Sanitizer) sanitizeMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if s.Forbidden(k) {
			continue
		}
		out[k] = s.sanitizeValue(v)
	}
	return out
}

func (s *Sanitizer) sanitizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case nil, string, bool, []byte, encoding.TextMarshaler:
		// Text marshalers (ids, timestamps) are stored as JSON strings.
		return v
	case map[string]interface{}:
		return s.sanitizeMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = s.sanitizeValue(item)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return s.sanitizeValue(rv.Elem().Interface())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return s.sanitizeValue(s.viaJSON(v))
		}
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			if s.Forbidden(k) {
				continue
			}
			out[k] = s.sanitizeValue(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = s.sanitizeValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Struct:
		return s.sanitizeValue(s.viaJSON(v))
	}
	return v
}

// viaJSON converts v to its generic JSON shape so the keys it would be
// stored under are the ones checked. Unencodable values are dropped.
func (s *Sanitizer) viaJSON(v interface{}) interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
