package tmpl

import (
	"encoding/json"
	"strings"

	"github.com/mlld-lang/mlld/core/ast"
	"github.com/mlld-lang/mlld/core/value"
)

// Resolver resolves a VariableReference (identifier + field path) to a
// StructuredValue. The evaluator supplies this; tmpl stays decoupled from
// internal/interp to avoid an import cycle.
type Resolver func(ref *ast.VariableReference) (value.StructuredValue, error)

// Render interpolates a TemplateLiteral's segments under the given context,
// producing a single StructuredValue whose Text is the rendered string and
// whose security descriptor is the merge of every interpolated value's
// descriptor (invariant V1: re-wrapping after computation merges inputs'
// security into the result).
func Render(t *ast.TemplateLiteral, ctx Context, resolve Resolver, baseSecurity value.SecurityDescriptor) (value.StructuredValue, error) {
	var sb strings.Builder
	descriptors := []value.SecurityDescriptor{baseSecurity}

	for _, seg := range t.Segments {
		if seg.Ref == nil {
			sb.WriteString(unescapeAtAt(seg.Text))
			continue
		}

		resolveCtx := ctx
		if seg.Ref.InterpolationKind != "" {
			resolveCtx = Context(seg.Ref.InterpolationKind)
		}

		v, err := resolve(seg.Ref)
		if err != nil {
			return value.StructuredValue{}, err
		}
		descriptors = append(descriptors, v.Metadata.Security)

		rendered := renderValueText(v, resolveCtx)
		escaped, err := Escape(resolveCtx, rendered)
		if err != nil {
			return value.StructuredValue{}, err
		}
		sb.WriteString(escaped)
	}

	merged := value.MergeDescriptors(descriptors...)
	return value.StructuredValue{
		Data:     sb.String(),
		Text:     sb.String(),
		Kind:     value.KindTemplate,
		Metadata: value.Metadata{Security: merged},
	}, nil
}

// renderValueText implements "@obj in a template JSON-stringifies obj.data"
// (spec §4.3) for Template/DataValue contexts, and plain .Text elsewhere.
func renderValueText(v value.StructuredValue, ctx Context) string {
	switch ctx {
	case Template, DataValue:
		switch v.Data.(type) {
		case map[string]interface{}, []interface{}:
			if b, err := json.Marshal(v.Data); err == nil {
				return string(b)
			}
		}
	}
	return v.Text
}

// unescapeAtAt implements the "@@ -> literal @" text escaping rule (spec §4.2).
func unescapeAtAt(s string) string {
	return strings.ReplaceAll(s, "@@", "@")
}
