package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "crimeetl"

	MetricRowsRead       = "rows_read_total"
	MetricRowsRejected   = "rows_rejected_total"
	MetricRecordsWritten = "records_written_total"
	MetricCategories     = "categories"
)

// Run holds the counters for one pass. Each pass registers into its own registry so
// that concurrent runs and tests do not share state.
type Run struct {
	Registry       *prometheus.Registry
	RowsRead       prometheus.Counter
	RowsRejected   prometheus.Counter
	RecordsWritten *prometheus.CounterVec
	Categories     prometheus.Gauge
}

func New() *Run {
	r := &Run{
		Registry: prometheus.NewRegistry(),
		RowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      MetricRowsRead,
			Help:      "Data rows read from the input file.",
		}),
		RowsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      MetricRowsRejected,
			Help:      "Rows excluded from output because they failed decoding.",
		}),
		RecordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      MetricRecordsWritten,
			Help:      "Records appended to a category file.",
		}, []string{"primary_type"}),
		Categories: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      MetricCategories,
			Help:      "Distinct categories seen in the pass.",
		}),
	}
	r.Registry.MustRegister(r.RowsRead, r.RowsRejected, r.RecordsWritten, r.Categories)
	return r
}

// WriteTextfile writes the registry in the text exposition format, for pickup by a
// node_exporter textfile collector.
func (r *Run) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.Registry)
}
