// Package metrics exposes the gateway's Prometheus instrumentation,
// grounded on JoseRFJuniorLLMs-EV-IA's PrometheusConfig pattern: a small set
// of named collectors registered once and updated from the bridge and the
// meter-ingest handler.
package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector wraps the registered gateway metrics. A nil *Collector is never
// passed around; callers that want metrics disabled simply leave the field
// nil on the structs that hold one.
type Collector struct {
	framesForwarded *prometheus.CounterVec
	bufferDepth     *prometheus.GaugeVec
	sitePowerWatts  prometheus.Gauge
	chargerLimit    *prometheus.GaugeVec
	activeChargers  prometheus.Gauge
}

// New registers the gateway's metrics against a fresh registry and returns
// both, so the caller can mount the registry's handler independently of the
// global default one.
func New() (*Collector, *prometheus.Registry) {
	reg := prometheus.NewRegistry()

	c := &Collector{
		framesForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_frames_forwarded_total",
			Help: "OCPP frames forwarded between downstream and upstream peers.",
		}, []string{"direction", "charger_id"}),
		bufferDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_buffer_depth",
			Help: "Number of frames currently queued in a charger's store-and-forward buffer.",
		}, []string{"charger_id"}),
		sitePowerWatts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_site_power_watts",
			Help: "Most recent site power reading from the facility meter.",
		}),
		chargerLimit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_charger_limit_watts",
			Help: "Last SetChargingProfile limit sent to a charger.",
		}, []string{"charger_id"}),
		activeChargers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_active_chargers",
			Help: "Number of chargers with a live downstream connection.",
		}),
	}

	reg.MustRegister(c.framesForwarded, c.bufferDepth, c.sitePowerWatts, c.chargerLimit, c.activeChargers)
	return c, reg
}

func (c *Collector) FrameForwarded(direction, chargerID string) {
	c.framesForwarded.WithLabelValues(direction, chargerID).Inc()
}

func (c *Collector) SetBufferDepth(chargerID string, depth int) {
	c.bufferDepth.WithLabelValues(chargerID).Set(float64(depth))
}

func (c *Collector) SetSitePowerWatts(w float64) {
	c.sitePowerWatts.Set(w)
}

func (c *Collector) SetChargerLimit(chargerID string, limitW float64) {
	c.chargerLimit.WithLabelValues(chargerID).Set(limitW)
}

func (c *Collector) SetActiveChargers(n int) {
	c.activeChargers.Set(float64(n))
}

// Router builds the chi router serving /metrics and /healthz, bound to its
// own listener (config metrics.host/metrics.port) so it can be
// scraped independently of the meter-ingest endpoint.
func Router(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return r
}
