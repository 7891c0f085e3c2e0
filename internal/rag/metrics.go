package rag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics counts pipeline runs by outcome.
type PipelineMetrics struct {
	// Runs is partitioned by outcome: "generated" when the chat model
	// produced the answer, "fallback" when the deterministic summary was
	// used, "empty" when no candidate was retrieved at all.
	Runs *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline instruments against reg.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)

	return &PipelineMetrics{
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cagent",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Number of retrieval pipeline runs, partitioned by answer outcome.",
		}, []string{"outcome"}),
	}
}

func (m *PipelineMetrics) observe(result *Result) {
	if m == nil {
		return
	}
	outcome := "generated"
	switch {
	case result.Fallback && len(result.Products) == 0 && len(result.WebCards) == 0:
		outcome = "empty"
	case result.Fallback:
		outcome = "fallback"
	}
	m.Runs.WithLabelValues(outcome).Inc()
}
