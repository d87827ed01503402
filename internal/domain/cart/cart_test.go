package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/rewards-shop/internal/apperr"
)

func validCart() Cart {
	return Cart{
		UserID: 1,
		Items: []Item{
			{SKU: "A", Name: "Widget", Quantity: 2, Price: decimal.RequireFromString("12.50")},
			{SKU: "B", Name: "Gadget", Quantity: 1, Price: decimal.NewFromInt(5)},
		},
		TotalAmount: decimal.NewFromInt(30),
	}
}

func TestCartHelpers(t *testing.T) {
	c := validCart()

	assert.Equal(t, 3, c.ItemCount())
	assert.Equal(t, []string{"A", "B"}, c.SKUs())
	assert.True(t, decimal.NewFromInt(25).Equal(c.Items[0].Subtotal()))
}

func TestCartValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Cart)
		wantMsg string
	}{
		{name: "valid", mutate: func(*Cart) {}},
		{name: "zero user", mutate: func(c *Cart) { c.UserID = 0 }, wantMsg: "userId must be positive"},
		{name: "no items", mutate: func(c *Cart) { c.Items = nil }, wantMsg: "items required"},
		{name: "empty sku", mutate: func(c *Cart) { c.Items[0].SKU = "" }, wantMsg: "sku required"},
		{name: "zero quantity", mutate: func(c *Cart) { c.Items[1].Quantity = 0 }, wantMsg: "quantity must be greater than 0 for sku B"},
		{name: "oversized quantity", mutate: func(c *Cart) { c.Items[0].Quantity = MaxQuantity + 1 }, wantMsg: "quantity must not exceed 2147483647 for sku A"},
		{name: "negative price", mutate: func(c *Cart) { c.Items[0].Price = decimal.NewFromInt(-1) }, wantMsg: "price must not be negative for sku A"},
		{name: "negative total", mutate: func(c *Cart) { c.TotalAmount = decimal.NewFromInt(-1) }, wantMsg: "totalAmount must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCart()
			tt.mutate(&c)

			err := c.Validate()
			if tt.wantMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
}
