// Package meteringest implements the meter HTTP ingest endpoint (spec §4.4):
// POST /api/insert.php accepts the facility meter's native JSON payload,
// extracts the "pt" field (site active power in watts), and updates the
// process-wide SitePower value. Grounded on
// original_source/local_server.py's handle_meter_post, and on the teacher's
// use of go-chi/chi for routing (internal/httpapi/api.go).
package meteringest

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ocpp-gateway/internal/metrics"
	"ocpp-gateway/internal/sitepower"
	"ocpp-gateway/internal/telemetry"
)

// Handler serves the meter ingest endpoint.
type Handler struct {
	site      *sitepower.SitePower
	logger    *zap.Logger
	Telemetry *telemetry.Relay
	Metrics   *metrics.Collector
}

func New(site *sitepower.SitePower, logger *zap.Logger) *Handler {
	return &Handler{site: site, logger: logger}
}

// Router mounts the handler on its own chi router, matching spec §6: bind to
// LOCAL_METER_HOST:LOCAL_METER_PORT, path /api/insert.php.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/api/insert.php", h.ServeHTTP)
	return r
}

// pt is numeric-or-numeric-string in the meter's native payload (spec §4.4
// step 2); json.Number accepts both without a custom UnmarshalJSON.
type meterPayload struct {
	PT json.Number `json:"pt"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Warn("meter ingest: failed to read body", zap.Error(err))
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if h.Telemetry != nil {
		h.Telemetry.Mirror("", "meter", body)
	}

	var payload meterPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("meter ingest: invalid JSON body", zap.Error(err))
		http.Error(w, "Bad Request: Invalid JSON", http.StatusBadRequest)
		return
	}

	if payload.PT == "" {
		h.logger.Warn("meter ingest: packet received but 'pt' key missing")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
		return
	}

	// A "pt" that is not a valid number literal is already rejected by
	// json.Unmarshal into json.Number above and gets 400. ParseFloat fails
	// here only for a literal outside the float64 range (e.g. 1e400), which
	// is answered with 500.
	watts, err := strconv.ParseFloat(string(payload.PT), 64)
	if err != nil {
		h.logger.Error("meter ingest: 'pt' not parseable as a number", zap.String("pt", string(payload.PT)), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.site.Update(watts, time.Now())
	if h.Metrics != nil {
		h.Metrics.SetSitePowerWatts(watts)
	}
	h.logger.Info("meter ingest: site power updated", zap.Float64("watts", watts))

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
