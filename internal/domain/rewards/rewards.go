package rewards

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/rewards-shop/internal/domain/cart"
)

// Response is the rewards engine's verdict for a cart.
type Response struct {
	DiscountAmount      decimal.Decimal
	Rewards             []Reward
	AppliedCoupons      []string
	LoyaltyPointsUsed   int
	LoyaltyPointsEarned int
}

// Discount returns the discount of r, treating a nil response as no discount.
func (r *Response) Discount() decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	return r.DiscountAmount
}

// Reward describes a single effect granted by the engine.
type Reward struct {
	Name        string
	Type        string
	Value       decimal.Decimal
	Description string
}

// Client talks to the external rewards engine. Implementations make a single
// attempt per call and report failures with apperr.KindRewardsEngine.
type Client interface {
	UpdateProfile(ctx context.Context, userID string, attrs map[string]any) error
	EvaluateSession(ctx context.Context, userID string, c cart.Cart) (*Response, error)
	ConfirmLoyalty(ctx context.Context, userID string, total decimal.Decimal) error
}
