package checkout

import (
	"fmt"
	"math"
	"strings"

	"github.com/fairyhunter13/order-checkout-service/internal/model"
)

// validateInput rejects malformed requests before any store access.
func validateInput(ownerRef string, lines []model.CartLine, addr model.ShippingAddress) error {
	if strings.TrimSpace(ownerRef) == "" {
		return &model.ValidationError{Field: "owner_id", Reason: "is required"}
	}
	for i, l := range lines {
		if strings.TrimSpace(l.ProductRef) == "" {
			return &model.ValidationError{Field: fmt.Sprintf("items[%d].product_id", i), Reason: "is required"}
		}
		if l.Quantity <= 0 {
			return &model.ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Reason: "must be > 0"}
		}
	}
	return addr.Validate()
}

// demand is the cart folded per product, keeping first-seen order.
type demand struct {
	ids []string
	qty map[string]int64
}

// newDemand expects validated lines. A per-product total that does not fit
// in int64 is a ValidationError.
func newDemand(lines []model.CartLine) (demand, error) {
	d := demand{qty: make(map[string]int64, len(lines))}
	for i, l := range lines {
		sum, seen := d.qty[l.ProductRef]
		if !seen {
			d.ids = append(d.ids, l.ProductRef)
		}
		if sum > math.MaxInt64-l.Quantity {
			return demand{}, &model.ValidationError{
				Field:  fmt.Sprintf("items[%d].quantity", i),
				Reason: fmt.Sprintf("total for product %s is too large", l.ProductRef),
			}
		}
		d.qty[l.ProductRef] = sum + l.Quantity
	}
	return d, nil
}

// check verifies every product resolved and has enough stock.
func (d demand) check(catalog map[string]model.Product) error {
	var missing []string
	for _, id := range d.ids {
		if _, ok := catalog[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &model.InvalidProductError{ProductRef: missing[0], Missing: missing}
	}
	for _, id := range d.ids {
		if p := catalog[id]; p.Stock < d.qty[id] {
			return &model.InsufficientStockError{ProductRef: id, Requested: d.qty[id], Available: p.Stock}
		}
	}
	return nil
}
