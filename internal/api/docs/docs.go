// Package docs registers the status API's OpenAPI document with swag so
// http-swagger can serve it at /docs/doc.json.
package docs

import (
	_ "embed"

	"github.com/swaggo/swag"
)

//go:embed openapi.json
var openAPI string

type spec struct{}

func (spec) ReadDoc() string { return openAPI }

func init() {
	swag.Register(swag.Name, spec{})
}
