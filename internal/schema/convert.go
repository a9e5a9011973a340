package schema

import (
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/solatis/oasconform/internal/types"
)

// toJSONSchema converts an OpenAPI 3.0 schema into a draft-04 JSON Schema
// document. OpenAPI-only keywords (nullable, discriminator, readOnly,
// writeOnly, xml, example, deprecated, extensions) are folded or dropped.
// A schema that reaches itself is rejected.
func toJSONSchema(ref *openapi3.SchemaRef) (map[string]any, error) {
	c := &converter{onStack: make(map[*openapi3.Schema]bool)}
	return c.convert(ref)
}

type converter struct {
	onStack map[*openapi3.Schema]bool
}

func (c *converter) convert(ref *openapi3.SchemaRef) (map[string]any, error) {
	if ref == nil {
		return map[string]any{}, nil
	}
	if ref.Value == nil {
		if ref.Ref != "" {
			return nil, fmt.Errorf("unresolved reference %q", ref.Ref)
		}
		return map[string]any{}, nil
	}

	s := ref.Value
	if c.onStack[s] {
		if ref.Ref != "" {
			return nil, fmt.Errorf("%w %q", types.ErrCircularRef, ref.Ref)
		}
		return nil, types.ErrCircularRef
	}
	c.onStack[s] = true
	defer delete(c.onStack, s)

	out := make(map[string]any)

	var typeNames []string
	if s.Type != nil {
		typeNames = append(typeNames, s.Type.Slice()...)
	}
	if len(typeNames) > 0 {
		if s.Nullable {
			typeNames = append(typeNames, "null")
		}
		if len(typeNames) == 1 {
			out["type"] = typeNames[0]
		} else {
			out["type"] = typeNames
		}
	}

	if s.Title != "" {
		out["title"] = s.Title
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if s.Format != "" {
		out["format"] = s.Format
	}
	if len(s.Enum) > 0 {
		enum := append([]any(nil), s.Enum...)
		if s.Nullable {
			enum = append(enum, nil)
		}
		out["enum"] = enum
	}
	if s.Default != nil {
		out["default"] = s.Default
	}

	// numbers
	if s.Min != nil {
		out["minimum"] = *s.Min
		if s.ExclusiveMin {
			out["exclusiveMinimum"] = true
		}
	}
	if s.Max != nil {
		out["maximum"] = *s.Max
		if s.ExclusiveMax {
			out["exclusiveMaximum"] = true
		}
	}
	if s.MultipleOf != nil {
		out["multipleOf"] = *s.MultipleOf
	}

	// strings
	if s.MinLength > 0 {
		out["minLength"] = s.MinLength
	}
	if s.MaxLength != nil {
		out["maxLength"] = *s.MaxLength
	}
	if s.Pattern != "" {
		out["pattern"] = s.Pattern
	}

	// arrays
	if s.MinItems > 0 {
		out["minItems"] = s.MinItems
	}
	if s.MaxItems != nil {
		out["maxItems"] = *s.MaxItems
	}
	if s.UniqueItems {
		out["uniqueItems"] = true
	}
	if s.Items != nil {
		items, err := c.convert(s.Items)
		if err != nil {
			return nil, err
		}
		out["items"] = items
	}

	// objects
	if s.MinProps > 0 {
		out["minProperties"] = s.MinProps
	}
	if s.MaxProps != nil {
		out["maxProperties"] = *s.MaxProps
	}
	if len(s.Required) > 0 {
		out["required"] = append([]string(nil), s.Required...)
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, prop := range s.Properties {
			converted, err := c.convert(prop)
			if err != nil {
				return nil, err
			}
			props[name] = converted
		}
		out["properties"] = props
	}
	if ap := s.AdditionalProperties; ap.Schema != nil {
		converted, err := c.convert(ap.Schema)
		if err != nil {
			return nil, err
		}
		out["additionalProperties"] = converted
	} else if ap.Has != nil {
		out["additionalProperties"] = *ap.Has
	}

	// composition
	for keyword, refs := range map[string]openapi3.SchemaRefs{
		"allOf": s.AllOf,
		"anyOf": s.AnyOf,
		"oneOf": s.OneOf,
	} {
		if len(refs) == 0 {
			continue
		}
		list := make([]any, 0, len(refs))
		for _, sub := range refs {
			converted, err := c.convert(sub)
			if err != nil {
				return nil, err
			}
			list = append(list, converted)
		}
		out[keyword] = list
	}
	if s.Not != nil {
		converted, err := c.convert(s.Not)
		if err != nil {
			return nil, err
		}
		out["not"] = converted
	}

	return out, nil
}

// stripMetadata removes identifier keys that would clash when the same
// fragment is registered under several schema ids.
func stripMetadata(schema map[string]any) {
	delete(schema, "$defs")
	delete(schema, "$id")
	delete(schema, "$schema")
}
