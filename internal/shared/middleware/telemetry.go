package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Telemetry instruments every API request with a trace span and the
// standard HTTP metrics. Sync and classifier spans created further
// down the stack attach to the request span opened here.
func Telemetry(next http.Handler) http.Handler {
	return otelhttp.NewMiddleware("finzen-api")(next)
}
