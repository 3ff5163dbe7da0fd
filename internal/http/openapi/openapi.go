// Package openapi embeds the order checkout API document served at /openapi.yaml.
package openapi

import _ "embed"

// YAML is the OpenAPI 3 description of the checkout, order and catalog routes.
//
//go:embed openapi.yaml
var YAML []byte
