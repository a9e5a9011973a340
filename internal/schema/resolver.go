// Package schema resolves response schemas from OpenAPI documents and
// validates payloads against them.
//
// OpenAPI loading, $ref resolution and conformance checks are delegated to
// kin-openapi. JSON Schema evaluation is delegated to santhosh-tekuri/jsonschema.
// This package owns the lookup heuristics, the OpenAPI-to-JSON-Schema
// conversion, and aggregation of validator errors.
package schema

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/rs/zerolog"
	"github.com/solatis/oasconform/internal/types"
	"gopkg.in/yaml.v3"
)

// APISpec is a loaded, dereferenced and validated OpenAPI document.
type APISpec struct {
	Ref   string
	Doc   *openapi3.T
	paths []string
}

// Paths returns the document's path keys in document order.
func (s *APISpec) Paths() []string {
	return s.paths
}

// Name returns "title version" from the info object.
func (s *APISpec) Name() string {
	if s.Doc == nil || s.Doc.Info == nil {
		return ""
	}
	return strings.TrimSpace(s.Doc.Info.Title + " " + s.Doc.Info.Version)
}

// SchemaInfo describes a resolved and registered response schema.
type SchemaInfo struct {
	SchemaID  string
	APIName   string
	Path      string
	Operation string
	Response  string
	Content   string
	Schema    map[string]any
}

// OASInfo converts the descriptor into the form stored on payload records.
func (s *SchemaInfo) OASInfo() *types.OASInfo {
	return &types.OASInfo{
		SchemaID:        s.SchemaID,
		OASAPIName:      s.APIName,
		OASPath:         s.Path,
		OASOperation:    s.Operation,
		OASResponseCode: s.Response,
		OASContentType:  s.Content,
	}
}

// Resolver caches loaded specs and resolved schemas for the process lifetime.
// Safe for concurrent use; concurrent misses for the same key recompute the
// same value.
type Resolver struct {
	logger    zerolog.Logger
	validator *Validator

	mu      sync.RWMutex
	specs   map[string]*APISpec
	schemas map[string]*SchemaInfo
}

// NewResolver creates a resolver that registers schemas with validator.
func NewResolver(logger zerolog.Logger, validator *Validator) *Resolver {
	return &Resolver{
		logger:    logger.With().Str("component", "schema").Logger(),
		validator: validator,
		specs:     make(map[string]*APISpec),
		schemas:   make(map[string]*SchemaInfo),
	}
}

// Validator returns the validator schemas are registered with.
func (r *Resolver) Validator() *Validator {
	return r.validator
}

// GetAPISpec loads the document at ref (URL or file path), caching it.
func (r *Resolver) GetAPISpec(ctx context.Context, ref string) (*APISpec, error) {
	if spec := r.cachedSpec(ref); spec != nil {
		return spec, nil
	}

	location, err := specLocation(ref)
	if err != nil {
		return nil, types.NewSpecError(types.ErrSpecValidation, "[error validating API Spec] "+err.Error())
	}
	loader := newLoader(ctx)
	data, err := openapi3.DefaultReadFromURI(loader, location)
	if err != nil {
		return nil, types.NewSpecError(types.ErrSpecValidation, "[error validating API Spec] "+err.Error())
	}
	return r.load(ctx, ref, location, data)
}

// LoadAPISpec registers an in-memory document under ref, replacing nothing
// if ref is already cached. Relative external refs resolve against ref.
func (r *Resolver) LoadAPISpec(ctx context.Context, ref string, data []byte) (*APISpec, error) {
	if spec := r.cachedSpec(ref); spec != nil {
		return spec, nil
	}
	location, err := specLocation(ref)
	if err != nil {
		return nil, types.NewSpecError(types.ErrSpecValidation, "[error validating API Spec] "+err.Error())
	}
	return r.load(ctx, ref, location, data)
}

func (r *Resolver) cachedSpec(ref string) *APISpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.specs[ref]
}

func newLoader(ctx context.Context) *openapi3.Loader {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true
	loader.Context = ctx
	return loader
}

// specLocation turns a URL or filesystem path into a URL for the loader.
func specLocation(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https" || u.Scheme == "file") {
		return u, nil
	}
	abs, err := filepath.Abs(ref)
	if err != nil {
		return nil, err
	}
	return &url.URL{Path: filepath.ToSlash(abs)}, nil
}

func (r *Resolver) load(ctx context.Context, ref string, location *url.URL, data []byte) (*APISpec, error) {
	shape, err := parseOutline(data)
	if err != nil {
		r.logger.Debug().Err(err).Str("spec", ref).Msg("Spec failed structural parse")
		return nil, types.NewSpecError(types.ErrSpecValidation, "[error validating API Spec] "+err.Error())
	}

	loader := newLoader(ctx)
	var doc *openapi3.T
	if strings.HasPrefix(shape.swagger, "2.") {
		doc, err = loadSwagger2(loader, location, data)
	} else {
		doc, err = loader.LoadFromDataWithPath(data, location)
	}
	if err != nil {
		r.logger.Debug().Err(err).Str("spec", ref).Msg("Spec failed dereferencing")
		return nil, types.NewSpecError(types.ErrSpecDereference, "[error dereferencing] "+err.Error())
	}

	if err := doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
		r.logger.Debug().Err(err).Str("spec", ref).Msg("Spec failed validation")
		return nil, types.NewSpecError(types.ErrSpecValidation, "[error validating API Spec] "+err.Error())
	}

	if err := checkCycles(doc); err != nil {
		return nil, err
	}

	spec := &APISpec{Ref: ref, Doc: doc, paths: shape.paths}
	r.mu.Lock()
	r.specs[ref] = spec
	r.mu.Unlock()
	return spec, nil
}

// outline holds what the raw document says before any loading: its Swagger
// version, if any, and the keys of its paths object in written order.
type outline struct {
	swagger string
	paths   []string
}

func parseOutline(data []byte) (outline, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return outline{}, err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return outline{}, fmt.Errorf("document root must be an object")
	}

	var out outline
	top := root.Content[0]
	for i := 0; i+1 < len(top.Content); i += 2 {
		key, value := top.Content[i].Value, top.Content[i+1]
		switch key {
		case "swagger":
			out.swagger = value.Value
		case "paths":
			if value.Kind != yaml.MappingNode {
				return outline{}, fmt.Errorf("paths must be an object")
			}
			out.paths = make([]string, 0, len(value.Content)/2)
			for j := 0; j+1 < len(value.Content); j += 2 {
				out.paths = append(out.paths, value.Content[j].Value)
			}
		}
	}
	return out, nil
}

// checkCycles refuses documents whose response schemas reference themselves.
func checkCycles(doc *openapi3.T) error {
	if doc.Paths == nil {
		return nil
	}
	for path, item := range doc.Paths.Map() {
		for method, op := range item.Operations() {
			if op.Responses == nil {
				continue
			}
			for code, resp := range op.Responses.Map() {
				if resp == nil || resp.Value == nil {
					continue
				}
				for ct, mt := range resp.Value.Content {
					if mt == nil {
						continue
					}
					if _, err := toJSONSchema(mt.Schema); err != nil {
						return types.WrapSpecError(types.ErrSpecDereference,
							fmt.Sprintf("[error dereferencing] %s %s %s %s: %v", path, method, code, ct, err), err)
					}
				}
			}
		}
	}
	return nil
}

// GetSchemaForURL infers the path from a request URL, then resolves the schema.
func (r *Resolver) GetSchemaForURL(ctx context.Context, specRef, requestURL, operation, responseCode, contentType string) (*SchemaInfo, error) {
	spec, err := r.GetAPISpec(ctx, specRef)
	if err != nil {
		return nil, err
	}
	path := GetAPIPath(requestURL, spec)
	if path == "" {
		return nil, types.NewSpecError(types.ErrSpecNotFound, "Couldn't find url's path in schema")
	}
	return r.GetSchema(ctx, specRef, path, operation, responseCode, contentType)
}

// GetSchema locates the response schema for a path, operation, response
// code and content type, converts it to JSON Schema, and registers it.
func (r *Resolver) GetSchema(ctx context.Context, specRef, pathName, operationName, responseCode, contentType string) (*SchemaInfo, error) {
	spec, err := r.GetAPISpec(ctx, specRef)
	if err != nil {
		return nil, err
	}

	path := matchKey(spec.Paths(), pathName)
	var item *openapi3.PathItem
	if path != "" && spec.Doc.Paths != nil {
		item = spec.Doc.Paths.Value(path)
	}
	if item == nil {
		return nil, notFound("Path '%s' not found in the specification", pathName)
	}

	ops := item.Operations()
	operation := matchKey(sortedKeys(ops), operationName)
	if operation == "" {
		return nil, notFound("Operation '%s/%s' not found in the specification", pathName, operationName)
	}
	op := ops[operation]

	var responses map[string]*openapi3.ResponseRef
	if op.Responses != nil {
		responses = op.Responses.Map()
	}
	codes := sortedKeys(responses)
	response := matchKey(codes, responseCode)
	if response == "" {
		response = matchKey(codes, "default")
	}
	if response == "" || responses[response].Value == nil {
		return nil, notFound("Code '%s/%s/%s' not found in the specification", pathName, operationName, responseCode)
	}

	contentMap := responses[response].Value.Content
	contentKeys := sortedKeys(contentMap)
	content := findKey(contentKeys, contentType)
	if content == "" {
		content = findKey(contentKeys, "application/json")
	}
	if content == "" {
		return nil, notFound("Content type '%s/%s/%s/%s' not found in the specification", pathName, operationName, responseCode, contentType)
	}
	mediaType := contentMap[content]
	if mediaType == nil || mediaType.Schema == nil {
		return nil, notFound("Schema not found in the specification")
	}

	schemaID := strings.Join([]string{strings.ToLower(specRef), path, operation, response, content}, "|")

	r.mu.RLock()
	cached, ok := r.schemas[schemaID]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	converted, err := toJSONSchema(mediaType.Schema)
	if err != nil {
		return nil, types.WrapSpecError(types.ErrSpecDereference, "[error dereferencing] "+err.Error(), err)
	}
	stripMetadata(converted)

	if err := r.validator.Register(schemaID, converted); err != nil {
		return nil, types.NewSpecError(types.ErrSpecValidation, fmt.Sprintf("Schema '%s' could not be compiled: %v", schemaID, err))
	}

	info := &SchemaInfo{
		SchemaID:  schemaID,
		APIName:   spec.Name(),
		Path:      path,
		Operation: operation,
		Response:  response,
		Content:   content,
		Schema:    converted,
	}
	r.mu.Lock()
	r.schemas[schemaID] = info
	r.mu.Unlock()

	r.logger.Debug().Str("schema_id", schemaID).Msg("Registered schema")
	return info, nil
}

func notFound(format string, args ...any) error {
	return types.NewSpecError(types.ErrSpecNotFound, fmt.Sprintf(format, args...))
}

// matchKey finds the key equal to want ignoring case and surrounding spaces.
func matchKey(keys []string, want string) string {
	want = strings.ToLower(strings.TrimSpace(want))
	for _, k := range keys {
		if strings.ToLower(strings.TrimSpace(k)) == want {
			return k
		}
	}
	return ""
}

// findKey finds the first key containing want, ignoring case.
func findKey(keys []string, want string) string {
	want = strings.ToLower(want)
	for _, k := range keys {
		if strings.Contains(strings.ToLower(k), want) {
			return k
		}
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
