package httpapi

import (
	"net/http"

	"github.com/fairyhunter13/order-checkout-service/internal/model"
	"github.com/fairyhunter13/order-checkout-service/internal/obs"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type productRequest struct {
	Name   string              `json:"name"`
	SKU    string              `json:"sku"`
	Price  decimal.Decimal     `json:"price"`
	Stock  int64               `json:"stock"`
	Status model.ProductStatus `json:"status"`
}

func (a *App) getProductHandler(w http.ResponseWriter, r *http.Request) {
	p, err := a.Store.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *App) upsertProductHandler(w http.ResponseWriter, r *http.Request) {
	who, _ := RequesterFromContext(r.Context())
	if !who.Privileged() {
		writeDomainError(w, r, &model.AccessDeniedError{Resource: "catalog"})
		return
	}
	var req productRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p := model.Product{
		ID:     chi.URLParam(r, "productID"),
		Name:   req.Name,
		SKU:    req.SKU,
		Price:  req.Price,
		Stock:  req.Stock,
		Status: req.Status,
	}
	if p.Status == "" {
		p.Status = model.ProductActive
	}
	if err := p.Validate(); err != nil {
		writeDomainError(w, r, err)
		return
	}
	saved, err := a.Store.UpsertProduct(r.Context(), p)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	obs.Logger.Info("product_upserted",
		"product_id", saved.ID,
		"price", saved.Price.String(),
		"stock", saved.Stock,
		"status", string(saved.Status),
		"user_id", who.Ref,
	)
	writeJSON(w, http.StatusOK, saved)
}
