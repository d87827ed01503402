package handler

import (
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/rewards-shop/internal/domain/order"
	"github.com/xenking/rewards-shop/internal/domain/user"
	"github.com/xenking/rewards-shop/internal/wire"
)

func encodeUser(e *jx.Encoder, u *user.User) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(u.ID)
	e.FieldStart("email")
	e.Str(u.Email)
	e.FieldStart("name")
	e.Str(u.Name)
	e.FieldStart("totalOrders")
	e.Int(u.TotalOrders)
	e.FieldStart("totalSpent")
	wire.EncodeDecimal(e, u.TotalSpent)
	e.FieldStart("loyaltyPoints")
	e.Int(u.LoyaltyPoints)
	if !u.CreatedAt.IsZero() {
		e.FieldStart("createdAt")
		e.Str(u.CreatedAt.UTC().Format(time.RFC3339))
	}
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("userId")
	e.Int64(o.UserID)
	e.FieldStart("items")
	wire.EncodeItems(e, o.Items)
	e.FieldStart("totalAmount")
	wire.EncodeDecimal(e, o.TotalAmount)
	e.FieldStart("discountApplied")
	wire.EncodeDecimal(e, o.DiscountApplied)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("placementState")
	e.Str(string(o.State))
	if !o.CreatedAt.IsZero() {
		e.FieldStart("createdAt")
		e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	}
	e.ObjEnd()
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.ArrStart()
	for i := range orders {
		encodeOrder(e, &orders[i])
	}
	e.ArrEnd()
}
