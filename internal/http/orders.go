package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/fairyhunter13/order-checkout-service/internal/model"
	"github.com/fairyhunter13/order-checkout-service/internal/obs"
	"github.com/go-chi/chi/v5"
)

// placeOrderRequest carries no prices; unknown fields such as a client total are rejected.
type placeOrderRequest struct {
	Items           []model.CartLine      `json:"items"`
	ShippingAddress model.ShippingAddress `json:"shipping_address"`
}

func (a *App) placeOrderHandler(w http.ResponseWriter, r *http.Request) {
	if a.closing.Load() {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return
	}
	who, _ := RequesterFromContext(r.Context())
	var req placeOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	if a.Cfg.CheckoutTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Cfg.CheckoutTimeout)
		defer cancel()
	}
	order, err := a.Engine.PlaceOrder(ctx, who.Ref, req.Items, req.ShippingAddress)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if a.Relay != nil && !a.Relay.Enqueue(model.NewOrderPlaced(order)) {
		obs.Logger.Warn("order_event_not_enqueued", "order_id", order.ID, "reason", "relay intake closed")
	}
	w.Header().Set("Location", "/orders/"+order.ID)
	writeJSON(w, http.StatusCreated, order)
}

func (a *App) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	who, _ := RequesterFromContext(r.Context())
	order, err := a.Query.GetOrder(r.Context(), chi.URLParam(r, "orderID"), who)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *App) listOwnOrdersHandler(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	who, _ := RequesterFromContext(r.Context())
	list, err := a.Query.ListOwnOrders(r.Context(), who, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderList(list))
}

func (a *App) listAllOrdersHandler(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	who, _ := RequesterFromContext(r.Context())
	list, err := a.Query.ListAllOrders(r.Context(), who, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderList(list))
}

type ordersResponse struct {
	Orders []model.Order `json:"orders"`
	Count  int           `json:"count"`
}

func orderList(list []model.Order) ordersResponse {
	if list == nil {
		list = []model.Order{}
	}
	return ordersResponse{Orders: list, Count: len(list)}
}

// parseLimit reads the optional ?limit= query parameter; 0 means the store default.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, jsonError{Error: "validation_error", Details: "limit must be a positive integer", Field: "limit"})
		return 0, false
	}
	return n, true
}
