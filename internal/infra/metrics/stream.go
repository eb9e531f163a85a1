package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		streamEventsTotal,
		streamParseErrorsTotal,
		streamUnknownTypesTotal,
		streamGuessedExtractions,
		streamTokens,
	)
}

var (
	streamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_events_total",
			Help: "Provider stream events processed, labeled by event type.",
		},
		[]string{"type"},
	)

	streamParseErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_parse_errors_total",
			Help: "Stream chunks that failed to parse as events.",
		},
	)

	streamUnknownTypesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_unknown_types_total",
			Help: "Events carrying a type discriminator we do not recognize.",
		},
	)

	streamGuessedExtractions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_guessed_extractions_total",
			Help: "Text extractions that fell through to the last-resort field scan.",
		},
	)

	streamTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_tokens_total",
			Help: "Prompt and completion tokens per provider/model.",
		},
		[]string{"provider", "model", "direction"}, // direction: 'in', 'out'
	)
)

func IncStreamEvent(eventType string) {
	streamEventsTotal.WithLabelValues(norm(eventType)).Inc()
}

func IncParseError() { streamParseErrorsTotal.Inc() }

func IncUnknownType() { streamUnknownTypesTotal.Inc() }

func IncGuessedExtraction() { streamGuessedExtractions.Inc() }

func ObserveStreamUsage(provider, model string, tokensIn, tokensOut int) {
	streamTokens.WithLabelValues(norm(provider), norm(model), "in").Add(float64(tokensIn))
	streamTokens.WithLabelValues(norm(provider), norm(model), "out").Add(float64(tokensOut))
}
