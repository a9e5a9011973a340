package schema

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/solatis/oasconform/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(opts ...ValidatorOption) *Resolver {
	return NewResolver(zerolog.Nop(), NewValidator(opts...))
}

func fixture(name string) string {
	return filepath.Join("testdata", name)
}

func TestGetAPISpec_LoadsAndCaches(t *testing.T) {
	r := newTestResolver()
	ctx := context.Background()

	spec, err := r.GetAPISpec(ctx, fixture("pets.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "Pets 1.0.0", spec.Name())
	assert.Equal(t, []string{"/pets", "/pets/{petId}", "/pets/{petId}/owner"}, spec.Paths())

	again, err := r.GetAPISpec(ctx, fixture("pets.yaml"))
	require.NoError(t, err)
	assert.Same(t, spec, again)
}

func TestGetAPISpec_ExternalRef(t *testing.T) {
	r := newTestResolver()

	info, err := r.GetSchema(context.Background(), fixture("external.yaml"), "/things", "get", "200", "application/json")
	require.NoError(t, err)
	assert.Equal(t, []any{"name"}, toAnySlice(info.Schema["required"]))
}

func toAnySlice(v any) []any {
	switch s := v.(type) {
	case []string:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out
	case []any:
		return s
	}
	return nil
}

func TestGetAPISpec_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		return p
	}

	tests := []struct {
		name string
		ref  string
		kind error
	}{
		{
			name: "missing file",
			ref:  filepath.Join(dir, "absent.yaml"),
			kind: types.ErrSpecValidation,
		},
		{
			name: "not an object",
			ref:  write("list.yaml", "- a\n- b\n"),
			kind: types.ErrSpecValidation,
		},
		{
			name: "missing info",
			ref: write("noinfo.yaml", `openapi: 3.0.3
paths: {}
`),
			kind: types.ErrSpecValidation,
		},
		{
			name: "unresolvable external ref",
			ref: write("badref.yaml", `openapi: 3.0.3
info: {title: T, version: '1'}
paths:
  /x:
    get:
      responses:
        '200':
          description: ok
          content:
            application/json:
              schema:
                $ref: 'nowhere.yaml#/X'
`),
			kind: types.ErrSpecDereference,
		},
		{
			name: "circular reference",
			ref:  fixture("cyclic.yaml"),
			kind: types.ErrSpecDereference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestResolver().GetAPISpec(context.Background(), tt.ref)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrSpecResolution))
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
		})
	}
}

func TestGetAPISpec_CircularIsReported(t *testing.T) {
	_, err := newTestResolver().GetAPISpec(context.Background(), fixture("cyclic.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrSpecDereference))
	assert.Contains(t, err.Error(), "[error dereferencing]")
}

func TestLoadAPISpec_InMemory(t *testing.T) {
	data, err := os.ReadFile(fixture("pets.yaml"))
	require.NoError(t, err)

	r := newTestResolver()
	spec, err := r.LoadAPISpec(context.Background(), "memory://pets", data)
	require.NoError(t, err)
	assert.Len(t, spec.Paths(), 3)

	cached, err := r.GetAPISpec(context.Background(), "memory://pets")
	require.NoError(t, err)
	assert.Same(t, spec, cached)
}

func TestGetAPISpec_Swagger2(t *testing.T) {
	r := newTestResolver()
	ctx := context.Background()
	ref := fixture("swagger2.yaml")

	spec, err := r.GetAPISpec(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "Inventory 0.9.0", spec.Name())
	assert.Equal(t, []string{"/items", "/items/{itemId}"}, spec.Paths())

	info, err := r.GetSchemaForURL(ctx, ref, "https://inventory.example.com/v1/items/A-1", "GET", "200", "application/json")
	require.NoError(t, err)
	assert.Equal(t, "/items/{itemId}", info.Path)
	assert.Equal(t, "application/json", info.Content)
	assert.Equal(t, []any{"sku", "quantity"}, toAnySlice(info.Schema["required"]))

	fallback, err := r.GetSchema(ctx, ref, "/items/{itemId}", "get", "404", "json")
	require.NoError(t, err)
	assert.Equal(t, "default", fallback.Response)

	list, err := r.GetSchema(ctx, ref, "/items", "get", "200", "json")
	require.NoError(t, err)
	result, err := r.Validator().ValidatePayload(list.SchemaID, []byte(`[{"sku": "A-1", "quantity": 3}, {"sku": "B-2", "quantity": -1}]`))
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "/[]/quantity", result.Errors[0].GenInstancePath)
}

func TestGetSchema(t *testing.T) {
	ref := fixture("pets.yaml")

	tests := []struct {
		name        string
		path        string
		operation   string
		code        string
		contentType string
		wantPath    string
		wantOp      string
		wantCode    string
		wantContent string
	}{
		{
			name: "exact match", path: "/pets/{petId}", operation: "get", code: "200", contentType: "application/json",
			wantPath: "/pets/{petId}", wantOp: "GET", wantCode: "200", wantContent: "application/json",
		},
		{
			name: "path and operation ignore case and spaces", path: "  /PETS ", operation: " Get", code: "200", contentType: "json",
			wantPath: "/pets", wantOp: "GET", wantCode: "200", wantContent: "application/json; charset=utf-8",
		},
		{
			name: "unknown code falls back to default", path: "/pets", operation: "GET", code: "500", contentType: "application/problem+json",
			wantPath: "/pets", wantOp: "GET", wantCode: "default", wantContent: "application/problem+json",
		},
		{
			name: "content substring match", path: "/pets/{petId}", operation: "GET", code: "200", contentType: "TEXT",
			wantPath: "/pets/{petId}", wantOp: "GET", wantCode: "200", wantContent: "text/plain",
		},
		{
			name: "unknown content falls back to application/json", path: "/pets/{petId}", operation: "GET", code: "200", contentType: "application/xml",
			wantPath: "/pets/{petId}", wantOp: "GET", wantCode: "200", wantContent: "application/json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver()
			info, err := r.GetSchema(context.Background(), ref, tt.path, tt.operation, tt.code, tt.contentType)
			require.NoError(t, err)

			assert.Equal(t, tt.wantPath, info.Path)
			assert.Equal(t, tt.wantOp, info.Operation)
			assert.Equal(t, tt.wantCode, info.Response)
			assert.Equal(t, tt.wantContent, info.Content)
			assert.Equal(t, "Pets 1.0.0", info.APIName)
			assert.Equal(t, "testdata/pets.yaml|"+tt.wantPath+"|"+tt.wantOp+"|"+tt.wantCode+"|"+tt.wantContent, info.SchemaID)
			assert.True(t, r.Validator().Has(info.SchemaID))
			assert.NotContains(t, info.Schema, "$schema")
		})
	}
}

func TestGetSchema_NotFound(t *testing.T) {
	ref := fixture("pets.yaml")

	tests := []struct {
		name        string
		path        string
		operation   string
		code        string
		contentType string
		wantMsg     string
	}{
		{"path", "/owners", "get", "200", "json", "Path '/owners' not found in the specification"},
		{"operation", "/pets", "delete", "200", "json", "Operation '/pets/delete' not found in the specification"},
		{"code without default", "/pets/{petId}", "get", "500", "json", "Code '/pets/{petId}/get/500' not found in the specification"},
		{"content", "/pets/{petId}", "get", "404", "json", "Content type '/pets/{petId}/get/404/json' not found in the specification"},
		{"empty path", "", "get", "200", "json", "Path '' not found in the specification"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestResolver().GetSchema(context.Background(), ref, tt.path, tt.operation, tt.code, tt.contentType)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrSpecNotFound))
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
}

func TestGetSchema_ExactCodePreferredOverDefault(t *testing.T) {
	info, err := newTestResolver().GetSchema(context.Background(), fixture("pets.yaml"), "/pets", "get", "200", "")
	require.NoError(t, err)
	assert.Equal(t, "200", info.Response)
}

func TestGetSchema_Cached(t *testing.T) {
	r := newTestResolver()
	ctx := context.Background()

	first, err := r.GetSchema(ctx, fixture("pets.yaml"), "/pets", "get", "200", "json")
	require.NoError(t, err)
	second, err := r.GetSchema(ctx, fixture("pets.yaml"), "/PETS", "GET", "200", "json")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestGetSchema_ConcurrentCallers(t *testing.T) {
	r := newTestResolver()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.GetSchema(ctx, fixture("pets.yaml"), "/pets/{petId}", "get", "200", "json")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestGetSchemaForURL(t *testing.T) {
	r := newTestResolver()
	ctx := context.Background()

	info, err := r.GetSchemaForURL(ctx, fixture("pets.yaml"), "https://api.example.com/v2/pets/42?expand=owner", "GET", "200", "application/json")
	require.NoError(t, err)
	assert.Equal(t, "/pets/{petId}", info.Path)

	_, err = r.GetSchemaForURL(ctx, fixture("pets.yaml"), "/owners/1/pets/extra/more", "GET", "200", "application/json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrSpecNotFound))
	assert.Equal(t, "Couldn't find url's path in schema", err.Error())
}

func TestSchemaInfo_OASInfo(t *testing.T) {
	info := &SchemaInfo{SchemaID: "id", APIName: "Pets 1", Path: "/p", Operation: "GET", Response: "200", Content: "application/json"}
	assert.Equal(t, &types.OASInfo{
		SchemaID:        "id",
		OASAPIName:      "Pets 1",
		OASPath:         "/p",
		OASOperation:    "GET",
		OASResponseCode: "200",
		OASContentType:  "application/json",
	}, info.OASInfo())
}
