// Package metrics exposes import counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Archive results.
const (
	ArchiveProcessed = "processed"
	ArchiveSkipped   = "skipped"
	ArchiveFailed    = "failed"
)

var (
	conversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatvault",
			Name:      "conversations_total",
			Help:      "Conversations reconciled, by outcome.",
		},
		[]string{"outcome"},
	)

	archivesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatvault",
			Name:      "archives_total",
			Help:      "Archives handled, by result.",
		},
		[]string{"result"},
	)

	newMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chatvault",
			Name:      "new_messages_total",
			Help:      "Messages appended to existing notes.",
		},
	)
)

func ObserveConversation(outcome string, newMessages int) {
	conversationsTotal.WithLabelValues(outcome).Inc()
	if newMessages > 0 {
		newMessagesTotal.Add(float64(newMessages))
	}
}

func ObserveArchive(result string) {
	archivesTotal.WithLabelValues(result).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
