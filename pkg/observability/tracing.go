package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies spans created by tabula.
const TracerName = "github.com/rhuss/tabula"

// Tracer returns the tracer from the global provider. Without a configured
// provider the spans are no-ops.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
