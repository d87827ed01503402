package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/rewards-shop/internal/domain/cart"
	"github.com/xenking/rewards-shop/internal/wire"
)

// EvaluateRewards handles POST /rewards/evaluate. The cart is validated
// before the rewards engine is contacted.
func (h *Handler) EvaluateRewards(w http.ResponseWriter, r *http.Request) {
	var c cart.Cart
	err := decodeBody(r, w, func(d *jx.Decoder) error {
		var err error
		c, err = wire.DecodeCart(d)
		return err
	})
	if err == nil {
		err = c.Validate()
	}
	if err != nil {
		fail(w, r, err)
		return
	}

	resp, err := h.rewards.EvaluateRewards(r.Context(), c)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { wire.EncodeRewards(e, resp) })
}
