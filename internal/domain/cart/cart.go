// Package cart holds the shopping cart shapes shared by reward evaluation and
// order placement.
package cart

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/xenking/rewards-shop/internal/apperr"
)

// MaxQuantity is the largest quantity a single line can hold in storage.
const MaxQuantity = math.MaxInt32

// Item is a single cart or order line.
type Item struct {
	SKU      string
	Name     string
	Quantity int
	Price    decimal.Decimal // unit price
}

// Subtotal returns Price * Quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the transient cart snapshot submitted for evaluation or placement.
// TotalAmount is taken as sent by the client.
type Cart struct {
	UserID      int64
	Items       []Item
	TotalAmount decimal.Decimal
}

// ItemCount returns the sum of all line quantities.
func (c Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// SKUs returns the SKU of every line in cart order.
func (c Cart) SKUs() []string {
	skus := make([]string, len(c.Items))
	for i, it := range c.Items {
		skus[i] = it.SKU
	}
	return skus
}

// Validate checks the cart shape. Errors carry apperr.KindValidation.
func (c Cart) Validate() error {
	if c.UserID <= 0 {
		return apperr.Validation("userId must be positive")
	}
	if len(c.Items) == 0 {
		return apperr.Validation("items required")
	}
	for _, it := range c.Items {
		if it.SKU == "" {
			return apperr.Validation("sku required")
		}
		if it.Quantity <= 0 {
			return apperr.Validation("quantity must be greater than 0 for sku %s", it.SKU)
		}
		if it.Quantity > MaxQuantity {
			return apperr.Validation("quantity must not exceed %d for sku %s", MaxQuantity, it.SKU)
		}
		if it.Price.IsNegative() {
			return apperr.Validation("price must not be negative for sku %s", it.SKU)
		}
	}
	if c.TotalAmount.IsNegative() {
		return apperr.Validation("totalAmount must not be negative")
	}
	return nil
}
