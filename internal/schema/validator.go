package schema

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/go-openapi/jsonpointer"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/solatis/oasconform/internal/types"
)

var (
	arrayIndexSegment = regexp.MustCompile(`/\d+`)
	quotedName        = regexp.MustCompile(`'([^']*)'`)
)

// Validator compiles registered schemas and validates payloads against them.
// Safe for concurrent use.
type Validator struct {
	allErrors  bool
	translator *Translator

	mu      sync.RWMutex
	schemas map[string]*compiledSchema
}

type compiledSchema struct {
	schema *jsonschema.Schema
	raw    any
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithAllErrors keeps every raw error occurrence on each group.
func WithAllErrors(enabled bool) ValidatorOption {
	return func(v *Validator) {
		v.allErrors = enabled
	}
}

// WithLocale translates validator messages into locale.
func WithLocale(locale string) ValidatorOption {
	return func(v *Validator) {
		v.translator = NewTranslator(locale)
	}
}

// NewValidator creates an empty validator.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{
		translator: NewTranslator(""),
		schemas:    make(map[string]*compiledSchema),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Register compiles schema as draft-04 and stores it under id, replacing any
// previous registration.
func (v *Validator) Register(id string, schema map[string]any) error {
	data, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	// Round-trip so enum lookups see the same shapes the validator does.
	raw, err := decodeJSON(data)
	if err != nil {
		return fmt.Errorf("failed to decode schema: %w", err)
	}

	sum := sha256.Sum256([]byte(id))
	resource := "mem://schemas/" + hex.EncodeToString(sum[:]) + ".json"

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft4
	compiler.AssertFormat = true
	if err := compiler.AddResource(resource, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	v.mu.Lock()
	v.schemas[id] = &compiledSchema{schema: compiled, raw: raw}
	v.mu.Unlock()
	return nil
}

// Has reports whether id is registered.
func (v *Validator) Has(id string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.schemas[id]
	return ok
}

// ValidatePayload validates a JSON payload against the schema registered
// under schemaID. A schema mismatch is returned as a result with Valid=false.
// An unknown id or undecodable payload returns ErrValidationProcessing.
func (v *Validator) ValidatePayload(schemaID string, payload []byte) (types.ValidationResult, error) {
	v.mu.RLock()
	compiled, ok := v.schemas[schemaID]
	v.mu.RUnlock()
	if !ok {
		return types.ValidationResult{}, fmt.Errorf("%w: schema '%s' is not registered", types.ErrValidationProcessing, schemaID)
	}

	doc, err := decodeJSON(payload)
	if err != nil {
		return types.ValidationResult{}, fmt.Errorf("%w: %v", types.ErrValidationProcessing, err)
	}

	err = compiled.schema.Validate(doc)
	if err == nil {
		return types.ValidationResult{Valid: true}, nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return types.ValidationResult{}, fmt.Errorf("%w: %v", types.ErrValidationProcessing, err)
	}

	return types.ValidationResult{
		Valid:  false,
		Errors: v.aggregate(leafErrors(verr, nil), doc, compiled.raw),
	}, nil
}

// decodeJSON decodes a single JSON value with numbers kept as json.Number,
// the representation the validator expects.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("invalid character after top-level value")
	}
	return doc, nil
}

func leafErrors(e *jsonschema.ValidationError, out []*jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(e.Causes) == 0 {
		return append(out, e)
	}
	for _, cause := range e.Causes {
		out = leafErrors(cause, out)
	}
	return out
}

// aggregate groups errors by generalized instance path and message,
// preserving first-seen order.
func (v *Validator) aggregate(leaves []*jsonschema.ValidationError, doc, schema any) []types.ValidationErrorGroup {
	groups := make([]types.ValidationErrorGroup, 0, len(leaves))
	index := make(map[[2]string]int)

	for _, leaf := range leaves {
		instancePath := leaf.InstanceLocation
		if instancePath == "" {
			instancePath = "/"
		}
		genPath := arrayIndexSegment.ReplaceAllString(instancePath, "/[]")
		msg := v.translator.Translate(leaf.Message)
		keyword := lastSegment(leaf.KeywordLocation)
		data := lookup(doc, leaf.InstanceLocation)

		key := [2]string{genPath, msg}
		if i, ok := index[key]; ok {
			groups[i].Count++
			if v.allErrors {
				groups[i].AllInstances = append(groups[i].AllInstances, instance(leaf, instancePath, keyword, msg, data))
			}
			continue
		}

		group := types.ValidationErrorGroup{
			GenInstancePath:      genPath,
			Message:              msg,
			Count:                1,
			Keyword:              keyword,
			InstancePathExample:  instancePath,
			InstanceValueExample: valueExample(keyword, leaf, data, schema),
		}
		if v.allErrors {
			group.AllInstances = []types.ErrorInstance{instance(leaf, instancePath, keyword, msg, data)}
		}
		index[key] = len(groups)
		groups = append(groups, group)
	}
	return groups
}

func instance(leaf *jsonschema.ValidationError, instancePath, keyword, msg string, data any) types.ErrorInstance {
	return types.ErrorInstance{
		InstancePath:    instancePath,
		KeywordLocation: leaf.KeywordLocation,
		Keyword:         keyword,
		Message:         msg,
		Data:            data,
	}
}

// valueExample renders a short human-readable sample of the offending value.
func valueExample(keyword string, leaf *jsonschema.ValidationError, data, schema any) string {
	switch keyword {
	case "type":
		switch d := data.(type) {
		case string:
			return fmt.Sprintf("'%s' (string)", d)
		case json.Number:
			return fmt.Sprintf("%s (number)", d.String())
		case nil:
			return "(null)"
		case bool:
			return "(boolean)"
		case []any:
			return "(array)"
		default:
			return "(object)"
		}
	case "additionalProperties", "required":
		names := quotedName.FindAllStringSubmatch(leaf.Message, -1)
		out := make([]string, 0, len(names))
		for _, n := range names {
			out = append(out, n[1])
		}
		return strings.Join(out, ", ")
	case "enum":
		allowed, _ := json.Marshal(enumValues(leaf.AbsoluteKeywordLocation, schema))
		return fmt.Sprintf("%v not in %s", plain(data), allowed)
	default:
		return plain(data)
	}
}

// enumValues finds the enum array the error's keyword location points at.
func enumValues(absoluteLocation string, schema any) any {
	_, fragment, ok := strings.Cut(absoluteLocation, "#")
	if !ok {
		return nil
	}
	return lookup(schema, fragment)
}

func plain(data any) string {
	if s, ok := data.(string); ok {
		return s
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprint(data)
	}
	return string(b)
}

func lookup(doc any, pointer string) any {
	if pointer == "" {
		return doc
	}
	p, err := jsonpointer.New(pointer)
	if err != nil {
		return nil
	}
	v, _, err := p.Get(doc)
	if err != nil {
		return nil
	}
	return v
}

func lastSegment(location string) string {
	if i := strings.LastIndex(location, "/"); i >= 0 {
		return location[i+1:]
	}
	return location
}
