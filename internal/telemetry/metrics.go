package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	TokensUsed          metric.Int64Counter
	RetrievalDuration   metric.Float64Histogram
	PipelineDuration    metric.Float64Histogram
	SynthesisActivated  metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
	GraphOperations     metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("techdocs-rag-platform")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"gemini.tokens.used",
		metric.WithDescription("Total Gemini tokens used"),
	)
	if err != nil {
		return nil, err
	}

	retrievalDuration, err := meter.Float64Histogram(
		"retrieval.duration",
		metric.WithDescription("Hybrid retrieval duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	pipelineDuration, err := meter.Float64Histogram(
		"ingestion.pipeline.duration",
		metric.WithDescription("Document ingestion pipeline duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	synthesisActivated, err := meter.Int64Counter(
		"synthesis.activations",
		metric.WithDescription("Answers generated in multi-document synthesis mode"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	graphOperations, err := meter.Int64Counter(
		"graph.operations.total",
		metric.WithDescription("Total knowledge graph operations"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		TokensUsed:          tokensUsed,
		RetrievalDuration:   retrievalDuration,
		PipelineDuration:    pipelineDuration,
		SynthesisActivated:  synthesisActivated,
		CircuitBreakerState: circuitBreakerState,
		GraphOperations:     graphOperations,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordTokensUsed records Gemini token usage
func (m *Metrics) RecordTokensUsed(tokens int64, model string) {
	attrs := []attribute.KeyValue{
		attribute.String("gemini.model", model),
		attribute.String("service", "gemini"),
	}

	m.TokensUsed.Add(context.Background(), tokens, metric.WithAttributes(attrs...))
}

// RecordRetrieval records hybrid retrieval timing
func (m *Metrics) RecordRetrieval(duration float64, synthesis bool) {
	attrs := []attribute.KeyValue{
		attribute.Bool("retrieval.synthesis", synthesis),
	}

	m.RetrievalDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
	if synthesis {
		m.SynthesisActivated.Add(context.Background(), 1)
	}
}

// RecordPipeline records ingestion pipeline metrics
func (m *Metrics) RecordPipeline(duration float64, status string) {
	attrs := []attribute.KeyValue{
		attribute.String("pipeline.status", status),
	}

	m.PipelineDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordGraphOperation records knowledge graph operation metrics
func (m *Metrics) RecordGraphOperation(operation string, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("graph.operation", operation),
		attribute.Bool("graph.success", success),
	}

	m.GraphOperations.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
