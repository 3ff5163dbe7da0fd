package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/order-checkout-service/internal/checkout"
	"github.com/fairyhunter13/order-checkout-service/internal/config"
	httpopenapi "github.com/fairyhunter13/order-checkout-service/internal/http/openapi"
	"github.com/fairyhunter13/order-checkout-service/internal/obs"
	"github.com/fairyhunter13/order-checkout-service/internal/orders"
	"github.com/fairyhunter13/order-checkout-service/internal/queue"
	"github.com/fairyhunter13/order-checkout-service/internal/store"
)

type App struct {
	Cfg     config.Config
	Store   store.Backend
	Engine  *checkout.Engine
	Query   *orders.Query
	Relay   *queue.Manager
	Metrics *obs.Metrics
	closing atomic.Bool
	started time.Time
}

func NewApp(cfg config.Config, st store.Backend, eng *checkout.Engine, q *orders.Query, relay *queue.Manager, m *obs.Metrics) *App {
	return &App{Cfg: cfg, Store: st, Engine: eng, Query: q, Relay: relay, Metrics: m, started: time.Now()}
}

// StartShutdown rejects new checkouts and closes relay intake.
func (a *App) StartShutdown() {
	a.closing.Store(true)
	if a.Relay != nil {
		a.Relay.CloseIntake()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON enforces a JSON content type and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		WriteJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "expected application/json")
		return false
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.Store.Ping(ctx); err != nil {
		obs.Logger.Warn("health_check_failed", "error", err.Error())
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	status := "ok"
	if a.closing.Load() {
		status = "shutting_down"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (a *App) metricsHandler(w http.ResponseWriter, r *http.Request) {
	m := map[string]any{
		"uptime_sec":    time.Since(a.started).Seconds(),
		"store_backend": a.Cfg.StoreBackend,
	}
	if a.Relay != nil {
		m["relay"] = a.Relay.Stats()
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Order Checkout API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	_, _ = w.Write([]byte(html))
}
