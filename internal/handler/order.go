package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/rewards-shop/internal/apperr"
	"github.com/xenking/rewards-shop/internal/domain/order"
	"github.com/xenking/rewards-shop/internal/domain/rewards"
	"github.com/xenking/rewards-shop/internal/wire"
)

const defaultPageSize = 20

type placeOrderBody struct {
	req      order.PlaceOrderRequest
	rewards  *rewards.Response
	evaluate bool
}

func decodePlaceOrder(d *jx.Decoder) (placeOrderBody, error) {
	var b placeOrderBody
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "userId":
			b.req.UserID, err = d.Int64()
		case "cart":
			b.req.Cart, err = wire.DecodeCart(d)
		case "rewards":
			b.rewards, err = wire.DecodeRewards(d)
		case "evaluateRewards":
			b.evaluate, err = d.Bool()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return b, err
}

// PlaceOrder handles POST /orders. With evaluateRewards set, the cart is
// evaluated first and the engine's result replaces any rewards in the body.
// Otherwise the body's rewards are taken as a prior evaluation result; only
// their sign is checked.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var body placeOrderBody
	err := decodeBody(r, w, func(d *jx.Decoder) error {
		var err error
		body, err = decodePlaceOrder(d)
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	if body.req.Cart.UserID == 0 {
		body.req.Cart.UserID = body.req.UserID
	}

	ctx := r.Context()
	rw := body.rewards
	if !body.evaluate && rw.Discount().IsNegative() {
		fail(w, r, apperr.Validation("discountAmount must not be negative"))
		return
	}
	if body.evaluate {
		if err := body.req.Validate(); err != nil {
			fail(w, r, err)
			return
		}
		if rw, err = h.rewards.EvaluateRewards(ctx, body.req.Cart); err != nil {
			fail(w, r, err)
			return
		}
	}

	o, err := h.orders.PlaceOrder(ctx, body.req, rw)
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/orders/"+formatID(o.ID))
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// GetOrder handles GET /orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
