package swagger

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

// DocPath is where the router serves the embedded OpenAPI document.
const DocPath = "/openapi.yml"

// Handler serves Swagger UI over the console's JSON and event-stream surface.
func Handler() http.Handler {
	return httpSwagger.Handler(
		httpSwagger.URL(DocPath),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
		httpSwagger.DomID("swagger-ui"),
	)
}
