package rewards

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/xenking/rewards-shop/internal/domain/cart"
)

// Service orchestrates the rewards engine calls made on behalf of a cart.
type Service struct {
	client Client
}

// NewService creates a rewards Service using the given engine client.
func NewService(client Client) *Service {
	return &Service{client: client}
}

// EvaluateRewards syncs the cart owner's profile and then evaluates the cart.
// Engine errors are returned unchanged. A profile update that succeeded is not
// undone when the evaluation fails.
func (s *Service) EvaluateRewards(ctx context.Context, c cart.Cart) (*Response, error) {
	userID := strconv.FormatInt(c.UserID, 10)

	if err := s.client.UpdateProfile(ctx, userID, profileAttributes(c)); err != nil {
		return nil, err
	}

	resp, err := s.client.EvaluateSession(ctx, userID, c)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ConfirmLoyalty tells the engine that the loyalty effects of a prior
// evaluation are final for the given order total.
func (s *Service) ConfirmLoyalty(ctx context.Context, userID int64, total decimal.Decimal) error {
	return s.client.ConfirmLoyalty(ctx, strconv.FormatInt(userID, 10), total)
}

func profileAttributes(c cart.Cart) map[string]any {
	return map[string]any{
		"cartTotal": c.TotalAmount,
		"itemCount": c.ItemCount(),
		"skus":      c.SKUs(),
	}
}
