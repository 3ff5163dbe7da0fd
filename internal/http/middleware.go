package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fairyhunter13/order-checkout-service/internal/model"
	"github.com/fairyhunter13/order-checkout-service/internal/obs"
	"github.com/google/uuid"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyRequester
)

// Identity headers set by the upstream gateway.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"
)

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}

// RequesterFromContext returns the identity attached by WithIdentity.
func RequesterFromContext(ctx context.Context) (model.Requester, bool) {
	v, ok := ctx.Value(ctxKeyRequester).(model.Requester)
	return v, ok
}

type statusRecorder struct {
	h  http.ResponseWriter
	st int
	n  int
}

func (w *statusRecorder) Header() http.Header { return w.h.Header() }
func (w *statusRecorder) WriteHeader(code int) {
	w.st = code
	w.h.WriteHeader(code)
}
func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.h.Write(b)
	w.n += n
	return n, err
}

func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, reqID)))
	})
}

// WithLogging logs one line per request and counts it in m.
func WithLogging(m *obs.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{h: w, st: 200}
			next.ServeHTTP(sr, r)
			lat := time.Since(start)
			m.IncHTTP(r.Method, strconv.Itoa(sr.st))
			obs.Logger.Info("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sr.st,
				"bytes", sr.n,
				"latency_ms", float64(lat.Microseconds())/1000.0,
				"request_id", RequestIDFromContext(r.Context()),
				"user_id", r.Header.Get(HeaderUserID),
			)
		})
	}
}

// WithIdentity requires X-User-Id and attaches the caller as a model.Requester.
// The role "admin" grants privilege, compared case-insensitively; any other
// value is a customer.
func WithIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if ref == "" {
			WriteJSONError(w, http.StatusUnauthorized, "unauthorized", HeaderUserID+" header is required")
			return
		}
		who := model.Requester{Ref: ref, Role: model.RoleCustomer}
		if strings.EqualFold(strings.TrimSpace(r.Header.Get(HeaderUserRole)), string(model.RoleAdmin)) {
			who.Role = model.RoleAdmin
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequester, who)))
	})
}
