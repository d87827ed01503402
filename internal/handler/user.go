package handler

import (
	"math"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/rewards-shop/internal/apperr"
	"github.com/xenking/rewards-shop/internal/domain/user"
	"github.com/xenking/rewards-shop/internal/wire"
)

// GetUser handles GET /users/{id}.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	u, err := h.users.GetUserByID(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeUser(e, u) })
}

// UpdateUser handles PUT /users/{id}. Only totalOrders and totalSpent are
// applied; both are required.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	var (
		totalOrders         int
		totalSpent          decimal.Decimal
		hasOrders, hasSpent bool
	)
	err = decodeBody(r, w, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "totalOrders":
				totalOrders, err = d.Int()
				hasOrders = true
			case "totalSpent":
				totalSpent, err = wire.DecodeDecimal(d)
				hasSpent = true
			default:
				return d.Skip()
			}
			if err != nil {
				return errors.Wrap(err, key)
			}
			return nil
		})
	})
	if err == nil {
		switch {
		case !hasOrders || !hasSpent:
			err = apperr.Validation("totalOrders and totalSpent required")
		case totalOrders < 0:
			err = apperr.Validation("totalOrders must not be negative")
		case totalOrders > math.MaxInt32:
			err = apperr.Validation("totalOrders must not exceed %d", math.MaxInt32)
		case totalSpent.IsNegative():
			err = apperr.Validation("totalSpent must not be negative")
		}
	}
	if err != nil {
		fail(w, r, err)
		return
	}

	ok, err := h.users.UpdateUserStats(r.Context(), id, totalOrders, totalSpent)
	if err != nil {
		fail(w, r, err)
		return
	}
	if !ok {
		fail(w, r, user.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateUser handles POST /users.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var email, name string
	err := decodeBody(r, w, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "email":
				email, err = d.Str()
			case "name":
				name, err = d.Str()
			default:
				return d.Skip()
			}
			if err != nil {
				return errors.Wrap(err, key)
			}
			return nil
		})
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	u, err := h.users.CreateUser(r.Context(), email, name)
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/users/"+formatID(u.ID))
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeUser(e, u) })
}

// ListUserOrders handles GET /users/{id}/orders?limit&offset.
func (h *Handler) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		fail(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		fail(w, r, err)
		return
	}

	orders, err := h.orders.ListUserOrders(r.Context(), id, limit, offset)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}
