package wire

import (
	"testing"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/rewards-shop/internal/domain/rewards"
)

func TestDecodeDecimal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "integer", input: `50`, want: "50"},
		{name: "fraction", input: `12.34`, want: "12.34"},
		{name: "negative", input: `-3.5`, want: "-3.5"},
		{name: "quoted", input: `"19.99"`, want: "19.99"},
		{name: "quoted garbage", input: `"abc"`, wantErr: true},
		{name: "bool", input: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeDecimal(jx.DecodeStr(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestDecodeCart(t *testing.T) {
	input := `{
		"userId": 7,
		"items": [
			{"sku": "A", "name": "Widget", "quantity": 2, "price": 25, "color": "red"},
			{"sku": "B", "quantity": 1, "price": "9.99"}
		],
		"totalAmount": 59.99,
		"coupon": {"code": "X"}
	}`

	c, err := DecodeCart(jx.DecodeStr(input))
	require.NoError(t, err)

	assert.Equal(t, int64(7), c.UserID)
	require.Len(t, c.Items, 2)
	assert.Equal(t, "A", c.Items[0].SKU)
	assert.Equal(t, "Widget", c.Items[0].Name)
	assert.Equal(t, 2, c.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(25).Equal(c.Items[0].Price))
	assert.True(t, decimal.RequireFromString("9.99").Equal(c.Items[1].Price))
	assert.True(t, decimal.RequireFromString("59.99").Equal(c.TotalAmount))
}

func TestDecodeCart_BadItem(t *testing.T) {
	_, err := DecodeCart(jx.DecodeStr(`{"items":[{"sku":"A","quantity":"two"}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "items")
	assert.Contains(t, err.Error(), "quantity")
}

func TestEncodeRewards(t *testing.T) {
	var e jx.Encoder
	EncodeRewards(&e, &rewards.Response{
		DiscountAmount: decimal.RequireFromString("10.50"),
		Rewards: []rewards.Reward{
			{Name: "Summer", Type: "PERCENT", Value: decimal.NewFromInt(5), Description: "5% off"},
		},
		AppliedCoupons:      []string{"SUMMER5"},
		LoyaltyPointsEarned: 40,
	})

	assert.JSONEq(t, `{
		"discountAmount": 10.5,
		"rewards": [{"name":"Summer","type":"PERCENT","value":5,"description":"5% off"}],
		"appliedCoupons": ["SUMMER5"],
		"loyaltyPointsUsed": 0,
		"loyaltyPointsEarned": 40
	}`, e.String())
}

func TestDecodeRewards(t *testing.T) {
	r, err := DecodeRewards(jx.DecodeStr(`{
		"discountAmount": "10.00",
		"rewards": null,
		"appliedCoupons": ["A", "B"],
		"loyaltyPointsUsed": 3,
		"campaigns": [1, 2, 3]
	}`))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(r.DiscountAmount))
	assert.Nil(t, r.Rewards)
	assert.Equal(t, []string{"A", "B"}, r.AppliedCoupons)
	assert.Equal(t, 3, r.LoyaltyPointsUsed)

	none, err := DecodeRewards(jx.DecodeStr(`null`))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestEncodeAttributes(t *testing.T) {
	var e jx.Encoder
	err := EncodeAttributes(&e, map[string]any{
		"skus":      []string{"A", "B"},
		"cartTotal": decimal.RequireFromString("50.00"),
		"itemCount": 3,
		"channel":   "web",
		"vip":       true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"cartTotal":50,"channel":"web","itemCount":3,"skus":["A","B"],"vip":true}`, e.String())
}

func TestEncodeAttributes_Unsupported(t *testing.T) {
	var e jx.Encoder
	err := EncodeAttributes(&e, map[string]any{"when": struct{}{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"when"`)
}
