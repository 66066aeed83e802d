package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every nanoflash collector. It is private to the process so
// that a textfile dump contains nothing but flashing metrics.
var Registry = prometheus.NewRegistry()

var (
	// WorkflowTotal counts finished workflows by terminal outcome.
	WorkflowTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanoflash_workflow_total",
			Help: "Total number of flashing workflows by terminal outcome.",
		},
		[]string{"workflow", "outcome"}, // workflow: backup/update/deploy
	)

	// WorkflowDuration records wall-clock time of a workflow, download included.
	WorkflowDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nanoflash_workflow_duration_seconds",
			Help:    "Duration of flashing workflows.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s .. ~4min
		},
		[]string{"workflow"},
	)

	// WrittenBytes counts bytes handed to the transport for writing.
	WrittenBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanoflash_written_bytes_total",
			Help: "Bytes of partition images written to devices.",
		},
		[]string{"workflow"},
	)

	// PackageResolveTotal counts firmware package resolutions.
	PackageResolveTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanoflash_package_resolve_total",
			Help: "Firmware package files resolved by result (cached/downloaded/failed).",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(WorkflowTotal)
	Registry.MustRegister(WorkflowDuration)
	Registry.MustRegister(WrittenBytes)
	Registry.MustRegister(PackageResolveTotal)
	Registry.MustRegister(collectors.NewGoCollector())
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}

// Handler serves the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
