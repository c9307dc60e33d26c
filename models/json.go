package models

import (
	"encoding/json"
	"reflect"
	"strings"
)

// OneOrMany is a recipient list that accepts either a single URL or a
// list of URLs on the wire. It is always held as a list internally and
// re-serialized as a list.
type OneOrMany []URL

// Contains reports whether the list names u.
func (o OneOrMany) Contains(u URL) bool {
	for _, e := range o {
		if e.Equal(u) {
			return true
		}
	}
	return false
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *OneOrMany) UnmarshalJSON(data []byte) error {
	var many []URL
	if err := json.Unmarshal(data, &many); err == nil {
		*o = many
		return nil
	}
	var one URL
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*o = OneOrMany{one}
	return nil
}

// Extra holds object-level fields we do not model. Federated peers evolve
// the vocabulary independently; dropping their fields would corrupt
// re-broadcast, so unknown fields are carried verbatim and merged back on
// encode.
type Extra map[string]json.RawMessage

// CaptureExtra returns every top-level field of data that does not
// correspond to a JSON field of v (including fields of embedded structs).
func CaptureExtra(data []byte, v interface{}) (Extra, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}

	known := make(map[string]bool)
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	knownKeys(t, known)

	extra := make(Extra)
	for k, raw := range all {
		if !known[k] {
			extra[k] = raw
		}
	}
	if len(extra) == 0 {
		return nil, nil
	}
	return extra, nil
}

// MergeExtra marshals v and overlays the extension fields. Modeled fields
// always win over a stale extension entry of the same name.
func MergeExtra(v interface{}, extra Extra) ([]byte, error) {
	base, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return base, nil
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(base, &all); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, ok := all[k]; !ok {
			all[k] = raw
		}
	}
	return json.Marshal(all)
}

func knownKeys(t reflect.Type, keys map[string]bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous {
			ft := f.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				knownKeys(ft, keys)
				continue
			}
		}
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name := strings.Split(tag, ",")[0]
		if name == "" {
			name = f.Name
		}
		keys[name] = true
	}
}
