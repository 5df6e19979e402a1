package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "codechat"

// Tracer returns the service tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Metrics holds all CodeChat metric instruments.
type Metrics struct {
	Turns            metric.Int64Counter
	Fallbacks        metric.Int64Counter
	CacheHits        metric.Int64Counter
	Tokens           metric.Int64Counter
	ProviderDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
// Without InitTelemetry the global provider is a no-op.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}
	var err error

	m.Turns, err = meter.Int64Counter("codechat.turns",
		metric.WithDescription("Chat turns processed, by agent and processing method"))
	if err != nil {
		return nil, err
	}

	m.Fallbacks, err = meter.Int64Counter("codechat.fallbacks",
		metric.WithDescription("Turns that fell back to the direct provider call"))
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("codechat.cache.hits",
		metric.WithDescription("Replies served from the reply cache"))
	if err != nil {
		return nil, err
	}

	m.Tokens, err = meter.Int64Counter("codechat.tokens",
		metric.WithDescription("LLM token usage, by direction"))
	if err != nil {
		return nil, err
	}

	m.ProviderDuration, err = meter.Float64Histogram("codechat.provider.duration_ms",
		metric.WithDescription("Provider request duration in milliseconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
