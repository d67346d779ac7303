package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels for IngestFiles.
const (
	ResultOK        = "ok"
	ResultReadError = "read_error"
	ResultParseErr  = "parse_error"
)

// Metrics groups the collectors for one display process. Each instance owns
// its registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	IngestFiles     *prometheus.CounterVec
	OutlinesAdded   prometheus.Counter
	LabelsAdded     prometheus.Counter
	TileSourceSetup *prometheus.CounterVec
	TileFetches     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		IngestFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "globeview",
			Subsystem: "ingest",
			Name:      "files_total",
			Help:      "Geometry files processed, by outcome.",
		}, []string{"result"}),
		OutlinesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "globeview",
			Subsystem: "ingest",
			Name:      "outlines_total",
			Help:      "Region outlines submitted to the display.",
		}),
		LabelsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "globeview",
			Subsystem: "ingest",
			Name:      "labels_total",
			Help:      "Region labels submitted to the display.",
		}),
		TileSourceSetup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "globeview",
			Subsystem: "tiles",
			Name:      "source_setup_total",
			Help:      "Tile source construction attempts, by kind and outcome.",
		}, []string{"kind", "success"}),
		TileFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "globeview",
			Subsystem: "tiles",
			Name:      "fetches_total",
			Help:      "Tile reads served by the attached layer, by origin.",
		}, []string{"origin"}),
	}
	reg.MustRegister(m.IngestFiles, m.OutlinesAdded, m.LabelsAdded, m.TileSourceSetup, m.TileFetches)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
