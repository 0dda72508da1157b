// Package api embeds the OpenAPI description served by the HTTP API.
package api

import _ "embed"

//go:embed openapi.yaml
var OpenAPI []byte
