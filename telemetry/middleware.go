package telemetry

import (
	"net/http"

	"github.com/felixge/httpsnoop"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const scope = "github.com/project-fusion/fusion-backend/telemetry"

// Middleware traces every request and counts responses by method and status.
// It reads the global providers, so it is safe to install whether or not
// Setup enabled exporting.
func Middleware(serviceName string) func(http.Handler) http.Handler {
	responses, err := otel.Meter(scope).Int64Counter("fusion.http.responses",
		metric.WithDescription("Responses written by the router, by method and status code"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		otel.Handle(err)
	}

	return func(next http.Handler) http.Handler {
		counted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)
			if responses != nil {
				responses.Add(r.Context(), 1, metric.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.Int("http.response.status_code", m.Code),
				))
			}
		})

		return otelhttp.NewHandler(counted, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
}
