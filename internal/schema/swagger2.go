package schema

import (
	"fmt"
	"net/url"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/invopop/yaml"
)

// loadSwagger2 decodes a Swagger 2.0 document and converts it to OpenAPI 3.
// Response schemas end up under each "produces" media type, application/json
// when none is declared.
func loadSwagger2(loader *openapi3.Loader, location *url.URL, data []byte) (*openapi3.T, error) {
	var doc2 openapi2.T
	if err := yaml.Unmarshal(data, &doc2); err != nil {
		return nil, fmt.Errorf("failed to decode swagger document: %w", err)
	}
	doc, err := openapi2conv.ToV3WithLoader(&doc2, loader, location)
	if err != nil {
		return nil, fmt.Errorf("failed to convert swagger document: %w", err)
	}
	return doc, nil
}
