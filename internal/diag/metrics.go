package diag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DiagnosticEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unison_diagnostic_events_total",
		Help: "Diagnostic events recorded, by event name",
	}, []string{"event"})

	DroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unison_diagnostic_events_dropped_total",
		Help: "Diagnostic events dropped because the async buffer was full or closed",
	})

	RelationshipsRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unison_relationships_removed_total",
		Help: "Relationships removed by cardinality enforcement, by relationship type",
	}, []string{"type_name"})

	ClusterSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "unison_cluster_size",
		Help:    "Number of entities visited per duplicate cluster walk",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 50},
	})

	MembersSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unison_cluster_members_skipped_total",
		Help: "Cluster members skipped during a walk or relationship fan-out",
	}, []string{"reason"})
)
