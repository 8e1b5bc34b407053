package annotate

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "exac_annotator"

// Metrics counts pipeline outcomes in a private Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	Lines               *prometheus.CounterVec // by mode
	LineErrors          prometheus.Counter
	Queries             prometheus.Counter
	Alleles             *prometheus.CounterVec // by status
	Batches             prometheus.Counter
	BatchErrors         prometheus.Counter
	UnknownConsequences prometheus.Counter
}

// NewMetrics creates and registers the pipeline counters.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Lines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "lines_total",
			Help:      "VCF data lines read, by lookup mode.",
		}, []string{"mode"}),
		LineErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "line_errors_total",
			Help:      "VCF data lines skipped because they could not be parsed.",
		}),
		Queries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "queries_total",
			Help:      "Normalized allele queries built.",
		}),
		Alleles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "alleles_total",
			Help:      "Alternate alleles processed, by outcome.",
		}, []string{"status"}),
		Batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "batches_total",
			Help:      "Line groups processed in bulk mode.",
		}),
		BatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "batch_errors_total",
			Help:      "Line groups whose bulk lookup failed.",
		}),
		UnknownConsequences: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "unknown_consequences_total",
			Help:      "Consequence terms outside the severity ordering.",
		}),
	}
	m.registry.MustRegister(
		m.Lines, m.LineErrors, m.Queries, m.Alleles,
		m.Batches, m.BatchErrors, m.UnknownConsequences,
	)
	return m
}

// WriteToTextfile writes the counters in Prometheus text format.
func (m *Metrics) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Summary returns counter values keyed by a short name, for end-of-run logging.
func (m *Metrics) Summary() map[string]float64 {
	out := make(map[string]float64)
	families, err := m.registry.Gather()
	if err != nil {
		return out
	}
	for _, mf := range families {
		name := mf.GetName()[len(metricsNamespace)+1:]
		for _, metric := range mf.GetMetric() {
			key := name
			for _, lp := range metric.GetLabel() {
				key += "." + lp.GetValue()
			}
			out[key] += metric.GetCounter().GetValue()
		}
	}
	return out
}
