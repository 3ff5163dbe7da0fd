package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Use(WithRequestID)
	r.Use(WithLogging(app.Metrics))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", app.healthHandler)
	r.Get("/debug/metrics", app.metricsHandler)
	if app.Metrics != nil {
		r.Handle("/metrics", app.Metrics.Handler())
	}
	r.Get("/openapi.yaml", app.openapiHandler)
	r.Get("/docs", app.docsHandler)

	r.Get("/products/{productID}", app.getProductHandler)

	r.Group(func(r chi.Router) {
		r.Use(WithIdentity)
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", app.placeOrderHandler)
			r.Get("/", app.listOwnOrdersHandler)
			r.Get("/{orderID}", app.getOrderHandler)
		})
		r.Route("/admin", func(r chi.Router) {
			r.Get("/orders", app.listAllOrdersHandler)
			r.Put("/products/{productID}", app.upsertProductHandler)
		})
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
	})
	return r
}
