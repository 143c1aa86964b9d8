package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ParcelsParsedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "landplots_parcels_parsed_total",
		Help: "Parcels produced by the ingestion parsers",
	}, []string{"format"})
	RecordsSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "landplots_records_skipped_total",
		Help: "Rows or features dropped during ingestion",
	}, []string{"format"})
	IngestFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "landplots_ingest_fail_total",
		Help: "Files that could not be parsed at all",
	}, []string{"format"})
	DriveRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "landplots_drive_requests_total",
		Help: "Remote provider calls by operation",
	}, []string{"op"})
	DriveFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "landplots_drive_fail_total",
		Help: "Failed remote provider calls by operation",
	}, []string{"op"})
	DriveDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "landplots_drive_duration_ms",
		Help:    "Remote provider call duration in milliseconds",
		Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000},
	}, []string{"op"})
	ExportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "landplots_exports_total",
		Help: "Reports generated by format",
	}, []string{"format"})
)

func init() {
	prometheus.MustRegister(ParcelsParsedTotal)
	prometheus.MustRegister(RecordsSkippedTotal)
	prometheus.MustRegister(IngestFailTotal)
	prometheus.MustRegister(DriveRequestsTotal)
	prometheus.MustRegister(DriveFailTotal)
	prometheus.MustRegister(DriveDurationMs)
	prometheus.MustRegister(ExportsTotal)
}

// Handler exposes the registered metrics for scraping.
func Handler() http.Handler { return promhttp.Handler() }
