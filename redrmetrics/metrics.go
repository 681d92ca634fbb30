// Package redrmetrics wires the scan and detection pipelines to two
// metrics libraries: docker/go-metrics for the counters operator
// dashboards key on, and prometheus/client_golang directly for a gauge
// go-metrics has no shorthand for.
package redrmetrics

import (
	"net/http"
	"os"

	metrics "github.com/docker/go-metrics"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var ns = metrics.NewNamespace("redr", "", nil)

// Counters incremented by the scan pipeline and event loop. go-metrics
// appends the "_total" suffix itself, so these are exported as
// redr_files_scanned_total, redr_detections_total and
// redr_events_processed_total.
var (
	FilesScanned    = ns.NewCounter("files_scanned", "Number of files evaluated by the scan pipeline")
	Detections      = ns.NewCounter("detections", "Number of signature matches across file, sandbox and behavioral sets")
	EventsProcessed = ns.NewCounter("events_processed", "Number of kernel events processed by the event loop")
)

// LoadedRules reports how many rules are loaded, as a plain prometheus
// gauge with a "kind" label. start-detection sets it once, under the label
// value "all", to the store's total rule count; no per-kind values are
// recorded.
var LoadedRules = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "redr",
	Name:      "loaded_rules",
	Help:      "Number of rules currently loaded, by set kind.",
}, []string{"kind"})

func init() {
	metrics.Register(ns)
	prometheus.MustRegister(LoadedRules)
}

// Handler serves both the go-metrics namespace and the plain prometheus
// registry on the same mux, wrapped in access logging.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/metrics/prometheus", promhttp.Handler())
	return handlers.CombinedLoggingHandler(os.Stdout, mux)
}
