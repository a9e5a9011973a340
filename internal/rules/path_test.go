package rules

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("invalid test JSON: %v", err)
	}
	return v
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		markers int
		wantErr bool
	}{
		{name: "single key", input: "a", want: "a"},
		{name: "nested keys", input: "a.b.c", want: "a.b.c"},
		{name: "numeric segment", input: "c.0.d", want: "c.0.d"},
		{name: "one marker", input: "c[].d", want: "c[].d", markers: 1},
		{name: "array of arrays", input: "a[][]", want: "a[][]", markers: 2},
		{name: "nested markers", input: "orders[].items[].price", want: "orders[].items[].price", markers: 2},
		{name: "root array", input: "[].id", want: "[].id", markers: 1},
		{name: "empty", input: "", wantErr: true},
		{name: "empty segment", input: "a..b", wantErr: true},
		{name: "bracket index unsupported", input: "a[0].b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePath(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParsePath(%q) error = nil, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePath(%q) error = %v", tt.input, err)
			}
			if got := p.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			markers := 0
			for _, seg := range p {
				if seg.Each {
					markers++
				}
			}
			if markers != tt.markers {
				t.Errorf("markers = %d, want %d", markers, tt.markers)
			}
		})
	}
}

func TestParsePath_TooDeep(t *testing.T) {
	_, err := ParsePath(strings.Repeat("a.", MaxPathDepth) + "a")
	if err == nil {
		t.Fatal("ParsePath() error = nil, want depth error")
	}
}

func TestResolve(t *testing.T) {
	doc := decode(t, `{"user": {"name": "Alice"}, "users": [{"name": "Bob"}], "m": {"0": "zero"}, "n": null}`)

	tests := []struct {
		name      string
		path      string
		want      any
		wantFound bool
	}{
		{name: "nested object", path: "user.name", want: "Alice", wantFound: true},
		{name: "array index", path: "users.0.name", want: "Bob", wantFound: true},
		{name: "numeric key on object", path: "m.0", want: "zero", wantFound: true},
		{name: "explicit null is found", path: "n", want: nil, wantFound: true},
		{name: "missing key", path: "user.age", wantFound: false},
		{name: "index out of range", path: "users.5.name", wantFound: false},
		{name: "key on array", path: "users.name", wantFound: false},
		{name: "through scalar", path: "user.name.first", wantFound: false},
		{name: "through null", path: "n.x", wantFound: false},
		{name: "unbound marker", path: "users[].name", wantFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePath(tt.path)
			if err != nil {
				t.Fatalf("ParsePath() error = %v", err)
			}
			got, found := Resolve(p, doc)
			if found != tt.wantFound {
				t.Fatalf("Resolve() found = %v, want %v", found, tt.wantFound)
			}
			if found && got != tt.want {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBind(t *testing.T) {
	p := Path{
		{Key: "orders"},
		{Bound: true, Index: 0},
		{Key: "items"},
		{Bound: true, Index: 1},
		{Key: "price"},
	}

	got := p.Bind(Context{2, 7}).String()
	if got != "orders.2.items.7.price" {
		t.Errorf("Bind() = %q, want orders.2.items.7.price", got)
	}

	partial := p.Bind(Context{2}).String()
	if partial != "orders.2.items.@1.price" {
		t.Errorf("partial Bind() = %q, want orders.2.items.@1.price", partial)
	}
}

// Property-based test: resolution never panics on arbitrary paths
func TestResolve_PropertyNeverCrashes(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	doc := decode(t, `{"key": [{"key": "value"}, {"key": [1, 2, 3]}]}`)

	properties.Property("resolution never crashes regardless of input", prop.ForAll(
		func(depth int, useIndex bool, index int) bool {
			parts := make([]string, depth+1)
			for i := range parts {
				if useIndex && i%2 == 1 {
					parts[i] = fmt.Sprint(index)
				} else {
					parts[i] = "key"
				}
			}
			p, err := ParsePath(strings.Join(parts, "."))
			if err != nil {
				return true
			}

			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Resolve() panicked: %v", r)
				}
			}()
			_, _ = Resolve(p, doc)
			return true
		},
		gen.IntRange(0, 12),
		gen.Bool(),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}

// Property-based test: parse/render round trip for marker paths
func TestParsePath_PropertyRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("rendering a parsed path yields the input", prop.ForAll(
		func(keys []string, markers []bool) bool {
			if len(keys) == 0 {
				return true
			}
			parts := make([]string, len(keys))
			for i, k := range keys {
				parts[i] = k
				if i < len(markers) && markers[i] {
					parts[i] += "[]"
				}
			}
			in := strings.Join(parts, ".")
			p, err := ParsePath(in)
			if err != nil {
				return len(keys) > MaxPathDepth/2
			}
			return p.String() == in
		},
		gen.SliceOfN(6, gen.AlphaString().SuchThat(func(s string) bool { return s != "" })),
		gen.SliceOfN(6, gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestHasPrefix(t *testing.T) {
	a := Path{{Key: "a"}}
	ab := Path{{Key: "ab"}}
	aBound := Path{{Key: "a"}, {Bound: true, Index: 0}, {Key: "b"}}

	if !aBound.HasPrefix(a) {
		t.Error("a.@0.b should extend a")
	}
	if ab.HasPrefix(a) {
		t.Error("ab must not extend a; prefixes are segment-wise")
	}
	if a.HasPrefix(aBound) {
		t.Error("shorter path cannot extend a longer one")
	}
	if !a.HasPrefix(Path{}) {
		t.Error("every path extends the root")
	}
}
