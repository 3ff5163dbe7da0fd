package model

import "strings"

// Validate checks the required address fields.
func (a ShippingAddress) Validate() error {
	required := []struct {
		field, value string
	}{
		{"shipping_address.line1", a.Line1},
		{"shipping_address.city", a.City},
		{"shipping_address.state", a.State},
		{"shipping_address.postal_code", a.PostalCode},
		{"shipping_address.country", a.Country},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Reason: "is required"}
		}
	}
	return nil
}

// Validate checks a product submitted through catalog administration.
func (p Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if p.Price.IsNegative() {
		return &ValidationError{Field: "price", Reason: "must be >= 0"}
	}
	if p.Stock < 0 {
		return &ValidationError{Field: "stock", Reason: "must be >= 0"}
	}
	switch p.Status {
	case "", ProductActive, ProductInactive:
	default:
		return &ValidationError{Field: "status", Reason: "must be active or inactive"}
	}
	return nil
}
