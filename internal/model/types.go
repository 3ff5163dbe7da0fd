// Package model defines domain types used by the service.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductStatus marks whether a product can be ordered.
type ProductStatus string

const (
	ProductActive   ProductStatus = "active"
	ProductInactive ProductStatus = "inactive"
)

// Product is the catalog's view of a sellable item.
type Product struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	SKU    string          `json:"sku,omitempty"`
	Price  decimal.Decimal `json:"price"`
	Stock  int64           `json:"stock"`
	Status ProductStatus   `json:"status"`
}

// Orderable reports whether checkout may resolve the product.
func (p Product) Orderable() bool {
	return p.Status == "" || p.Status == ProductActive
}

// CartLine is one client-supplied request for a quantity of a product.
type CartLine struct {
	ProductRef string `json:"product_id"`
	Quantity   int64  `json:"quantity"`
}

// ShippingAddress is copied into the order at checkout.
type ShippingAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

// OrderReserved is the state of a freshly placed order whose stock is held.
const OrderReserved OrderStatus = "reserved"

// OrderLineItem snapshots a product at purchase time.
type OrderLineItem struct {
	ProductRef          string          `json:"product_id"`
	ProductName         string          `json:"product_name"`
	SKU                 string          `json:"sku,omitempty"`
	Quantity            int64           `json:"quantity"`
	UnitPriceAtPurchase decimal.Decimal `json:"unit_price_at_purchase"`
}

// Subtotal returns price times quantity for the line.
func (li OrderLineItem) Subtotal() decimal.Decimal {
	return li.UnitPriceAtPurchase.Mul(decimal.NewFromInt(li.Quantity))
}

// Order is an immutable record of a successful checkout.
type Order struct {
	ID              string          `json:"id"`
	OwnerRef        string          `json:"owner_id"`
	Status          OrderStatus     `json:"status"`
	LineItems       []OrderLineItem `json:"line_items"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Role is the capability carried by a requester.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Requester identifies the caller of a read or admin operation.
type Requester struct {
	Ref  string
	Role Role
}

// Privileged reports whether the requester may act on any owner's data.
func (r Requester) Privileged() bool { return r.Role == RoleAdmin }

// CanRead reports whether the requester may see the order.
func (r Requester) CanRead(o Order) bool {
	return r.Privileged() || (r.Ref != "" && r.Ref == o.OwnerRef)
}

// OrderPlaced is published after an order commits.
type OrderPlaced struct {
	Sequence    uint64          `json:"sequence"`
	OrderID     string          `json:"order_id"`
	OwnerRef    string          `json:"owner_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	LineItems   []OrderLineItem `json:"line_items"`
	PlacedAt    time.Time       `json:"placed_at"`
	Attempts    int             `json:"-"`
}

// NewOrderPlaced builds the event for a committed order.
func NewOrderPlaced(o Order) OrderPlaced {
	return OrderPlaced{
		OrderID:     o.ID,
		OwnerRef:    o.OwnerRef,
		TotalAmount: o.TotalAmount,
		LineItems:   o.LineItems,
		PlacedAt:    o.CreatedAt,
	}
}
