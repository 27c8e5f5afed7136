package patternbank

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName identifies this package's instruments.
const meterName = "github.com/fyrsmithlabs/patternd/internal/patternbank"

// serviceMetrics holds the engine's OpenTelemetry instruments. Without an
// installed meter provider these are no-ops.
type serviceMetrics struct {
	interactions metric.Int64Counter
	suggestions  metric.Int64Counter
	feedback     metric.Int64Counter
	confidence   metric.Float64Histogram
}

// newServiceMetrics registers the engine's instruments on the global meter.
func newServiceMetrics() (*serviceMetrics, error) {
	meter := otel.Meter(meterName)

	interactions, err := meter.Int64Counter("patternbank.interactions.observed",
		metric.WithDescription("Interaction events consumed by the extractor"))
	if err != nil {
		return nil, fmt.Errorf("creating interactions counter: %w", err)
	}
	suggestions, err := meter.Int64Counter("patternbank.suggestions.served",
		metric.WithDescription("Suggestions returned by the orchestrator, by tier"))
	if err != nil {
		return nil, fmt.Errorf("creating suggestions counter: %w", err)
	}
	feedback, err := meter.Int64Counter("patternbank.feedback.recorded",
		metric.WithDescription("Feedback rows persisted, by action"))
	if err != nil {
		return nil, fmt.Errorf("creating feedback counter: %w", err)
	}
	confidence, err := meter.Float64Histogram("patternbank.suggestion.confidence",
		metric.WithDescription("Final confidence of served suggestions"))
	if err != nil {
		return nil, fmt.Errorf("creating confidence histogram: %w", err)
	}

	return &serviceMetrics{
		interactions: interactions,
		suggestions:  suggestions,
		feedback:     feedback,
		confidence:   confidence,
	}, nil
}

func (m *serviceMetrics) observeInteraction(ctx context.Context, discarded bool) {
	m.interactions.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("discarded", discarded)))
}

func (m *serviceMetrics) observeSuggestion(ctx context.Context, s *Suggestion) {
	attrs := metric.WithAttributes(attribute.String("tier", string(s.Action)))
	m.suggestions.Add(ctx, 1, attrs)
	m.confidence.Record(ctx, s.Confidence, attrs)
}

func (m *serviceMetrics) observeFeedback(ctx context.Context, action FeedbackAction) {
	m.feedback.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", string(action))))
}
