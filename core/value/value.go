// Package value implements mlld's StructuredValue data contract (spec §3.1)
// and the Variable binding that carries it through an Environment (spec §3.2).
package value

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates a StructuredValue's provenance/shape.
type Kind string

const (
	KindJSON          Kind = "json"
	KindText          Kind = "text"
	KindCommandOutput Kind = "command_output"
	KindLoadedContent Kind = "loaded_content"
	KindTemplate      Kind = "template"
)

// Metadata carries a StructuredValue's security descriptor and provenance.
type Metadata struct {
	Security SecurityDescriptor
	Source   string // optional provenance annotation (file path, URL, command line)
	Mx       map[string]interface{} // `.mx` namespace: filename, tokens, loop bookkeeping, etc.
}

// StructuredValue is the canonical value carrier. Invariant V1 (spec §3.1):
// every value crossing a pipeline stage, a for body, a /var assignment, or a
// template interpolation is a StructuredValue. Unwrap only at display
// boundaries (-> Text) or computation boundaries (-> Data).
type StructuredValue struct {
	Data     interface{}
	Text     string
	Kind     Kind
	Metadata Metadata
}

// Text wraps a plain string as a `text`-kind value with the given descriptor.
func Text(s string, sec SecurityDescriptor) StructuredValue {
	return StructuredValue{Data: s, Text: s, Kind: KindText, Metadata: Metadata{Security: sec}}
}

// JSONValue wraps already-parsed structured data, rendering Text via JSON.
func JSONValue(data interface{}, sec SecurityDescriptor) StructuredValue {
	text := ""
	if b, err := json.Marshal(data); err == nil {
		text = string(b)
	}
	return StructuredValue{Data: data, Text: text, Kind: KindJSON, Metadata: Metadata{Security: sec}}
}

// CommandOutput wraps a shell command's stdout, auto-parsing it as JSON when
// possible (invariant V3, spec §4.7/§4.2). data is nil when text does not
// parse as JSON.
func CommandOutput(text string, sec SecurityDescriptor) StructuredValue {
	var data interface{}
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		data = nil
	}
	sec = sec.Clone()
	sec.Taint[TaintCommandOutput] = true
	return StructuredValue{Data: data, Text: text, Kind: KindCommandOutput, Metadata: Metadata{Security: sec}}
}

// Null returns the canonical null value.
func Null(sec SecurityDescriptor) StructuredValue {
	return StructuredValue{Data: nil, Text: "null", Kind: KindJSON, Metadata: Metadata{Security: sec}}
}

// Bool returns a JSON boolean value.
func Bool(b bool, sec SecurityDescriptor) StructuredValue {
	return JSONValue(b, sec)
}

// IsTruthy implements mlld's truthiness rule used by `when`/`if` conditions
// and the for-comprehension filter: false, null, "", 0, and empty
// arrays/objects are falsy; everything else is truthy.
func (v StructuredValue) IsTruthy() bool {
	switch d := v.Data.(type) {
	case nil:
		return false
	case bool:
		return d
	case string:
		return d != ""
	case float64:
		return d != 0
	case []interface{}:
		return len(d) > 0
	case map[string]interface{}:
		return len(d) > 0
	default:
		return v.Text != ""
	}
}

// WithSecurity returns a copy of v with its descriptor replaced.
func (v StructuredValue) WithSecurity(sec SecurityDescriptor) StructuredValue {
	v.Metadata.Security = sec
	return v
}

// MergeSecurity returns a copy of v whose descriptor is merged with extra
// (v's own descriptor first, per invariant V1's "merge the input's security
// into the new value's security").
func (v StructuredValue) MergeSecurity(extra ...SecurityDescriptor) StructuredValue {
	all := append([]SecurityDescriptor{v.Metadata.Security}, extra...)
	v.Metadata.Security = MergeDescriptors(all...)
	return v
}

// Field resolves a.b.c-style field access against Data. Returns Null and
// false if the path does not resolve.
func (v StructuredValue) Field(path ...string) (StructuredValue, bool) {
	cur := v.Data
	for _, p := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return Null(v.Metadata.Security), false
		}
		cur, ok = m[p]
		if !ok {
			return Null(v.Metadata.Security), false
		}
	}
	return wrapField(cur, v.Metadata.Security), true
}

// Index resolves array indexing against Data.
func (v StructuredValue) Index(i int) (StructuredValue, bool) {
	arr, ok := v.Data.([]interface{})
	if !ok || i < 0 || i >= len(arr) {
		return Null(v.Metadata.Security), false
	}
	return wrapField(arr[i], v.Metadata.Security), true
}

func wrapField(data interface{}, sec SecurityDescriptor) StructuredValue {
	switch d := data.(type) {
	case string:
		return Text(d, sec)
	case nil:
		return Null(sec)
	default:
		return JSONValue(d, sec)
	}
}

func (v StructuredValue) String() string {
	return fmt.Sprintf("StructuredValue{kind=%s text=%q}", v.Kind, v.Text)
}
