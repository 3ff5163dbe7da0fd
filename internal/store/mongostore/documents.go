package mongostore

import (
	"fmt"
	"time"

	"github.com/fairyhunter13/order-checkout-service/internal/model"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type productDoc struct {
	ID     string               `bson:"_id"`
	Name   string               `bson:"name"`
	SKU    string               `bson:"sku,omitempty"`
	Price  primitive.Decimal128 `bson:"price"`
	Stock  int64                `bson:"stock"`
	Status string               `bson:"status"`
}

type addressDoc struct {
	Line1      string `bson:"line1"`
	Line2      string `bson:"line2,omitempty"`
	City       string `bson:"city"`
	State      string `bson:"state"`
	PostalCode string `bson:"postal_code"`
	Country    string `bson:"country"`
}

type lineItemDoc struct {
	ProductRef  string               `bson:"product_ref"`
	ProductName string               `bson:"product_name"`
	SKU         string               `bson:"sku,omitempty"`
	Quantity    int64                `bson:"quantity"`
	UnitPrice   primitive.Decimal128 `bson:"unit_price_at_purchase"`
}

type orderDoc struct {
	ID              string               `bson:"_id"`
	OwnerRef        string               `bson:"owner_ref"`
	Status          string               `bson:"status"`
	LineItems       []lineItemDoc        `bson:"line_items"`
	ShippingAddress addressDoc           `bson:"shipping_address"`
	TotalAmount     primitive.Decimal128 `bson:"total_amount"`
	CreatedAt       time.Time            `bson:"created_at"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("decimal %s: %w", d.String(), err)
	}
	return v, nil
}

// fromDecimal128 fails on NaN and infinities, which have no decimal value.
func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("decimal128 %s: %w", v.String(), err)
	}
	return d, nil
}

func toProductDoc(p model.Product) (productDoc, error) {
	price, err := toDecimal128(p.Price)
	if err != nil {
		return productDoc{}, err
	}
	status := string(p.Status)
	if status == "" {
		status = string(model.ProductActive)
	}
	return productDoc{ID: p.ID, Name: p.Name, SKU: p.SKU, Price: price, Stock: p.Stock, Status: status}, nil
}

func (d productDoc) model() (model.Product, error) {
	price, err := fromDecimal128(d.Price)
	if err != nil {
		return model.Product{}, fmt.Errorf("product %s price: %w", d.ID, err)
	}
	return model.Product{
		ID:     d.ID,
		Name:   d.Name,
		SKU:    d.SKU,
		Price:  price,
		Stock:  d.Stock,
		Status: model.ProductStatus(d.Status),
	}, nil
}

func toOrderDoc(o model.Order) (orderDoc, error) {
	total, err := toDecimal128(o.TotalAmount)
	if err != nil {
		return orderDoc{}, err
	}
	items := make([]lineItemDoc, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		price, err := toDecimal128(li.UnitPriceAtPurchase)
		if err != nil {
			return orderDoc{}, err
		}
		items = append(items, lineItemDoc{
			ProductRef:  li.ProductRef,
			ProductName: li.ProductName,
			SKU:         li.SKU,
			Quantity:    li.Quantity,
			UnitPrice:   price,
		})
	}
	a := o.ShippingAddress
	return orderDoc{
		ID:        o.ID,
		OwnerRef:  o.OwnerRef,
		Status:    string(o.Status),
		LineItems: items,
		ShippingAddress: addressDoc{
			Line1: a.Line1, Line2: a.Line2, City: a.City, State: a.State, PostalCode: a.PostalCode, Country: a.Country,
		},
		TotalAmount: total,
		CreatedAt:   o.CreatedAt.UTC().Truncate(time.Millisecond),
	}, nil
}

func (d orderDoc) model() (model.Order, error) {
	items := make([]model.OrderLineItem, 0, len(d.LineItems))
	for i, li := range d.LineItems {
		price, err := fromDecimal128(li.UnitPrice)
		if err != nil {
			return model.Order{}, fmt.Errorf("order %s line %d price: %w", d.ID, i, err)
		}
		items = append(items, model.OrderLineItem{
			ProductRef:          li.ProductRef,
			ProductName:         li.ProductName,
			SKU:                 li.SKU,
			Quantity:            li.Quantity,
			UnitPriceAtPurchase: price,
		})
	}
	total, err := fromDecimal128(d.TotalAmount)
	if err != nil {
		return model.Order{}, fmt.Errorf("order %s total: %w", d.ID, err)
	}
	a := d.ShippingAddress
	return model.Order{
		ID:        d.ID,
		OwnerRef:  d.OwnerRef,
		Status:    model.OrderStatus(d.Status),
		LineItems: items,
		ShippingAddress: model.ShippingAddress{
			Line1: a.Line1, Line2: a.Line2, City: a.City, State: a.State, PostalCode: a.PostalCode, Country: a.Country,
		},
		TotalAmount: total,
		CreatedAt:   d.CreatedAt.UTC(),
	}, nil
}
