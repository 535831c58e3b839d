package middleware

import (
	"net/http"

	"github.com/chrisberkhout/restful-geof/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts and times requests by status code and method.
func Metrics(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerDuration(metrics.HTTPRequestDuration,
		promhttp.InstrumentHandlerCounter(metrics.HTTPRequests, next))
}
