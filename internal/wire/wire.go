// Package wire holds the JSON codecs shared by the HTTP API and the rewards
// engine client. Money is written as a plain JSON number and read from either
// a number or a numeric string.
package wire

import (
	"maps"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/rewards-shop/internal/domain/cart"
	"github.com/xenking/rewards-shop/internal/domain/rewards"
)

// EncodeDecimal writes v as a JSON number.
func EncodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

// DecodeDecimal reads a JSON number or numeric string.
func DecodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch tt := d.Next(); tt {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(string(n))
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Decimal{}, errors.Wrapf(err, "parse %q", s)
		}
		return v, nil
	default:
		return decimal.Decimal{}, errors.Errorf("unexpected %s, expected number", tt)
	}
}

// EncodeItem writes a cart line.
func EncodeItem(e *jx.Encoder, it cart.Item) {
	e.ObjStart()
	e.FieldStart("sku")
	e.Str(it.SKU)
	e.FieldStart("name")
	e.Str(it.Name)
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	e.FieldStart("price")
	EncodeDecimal(e, it.Price)
	e.ObjEnd()
}

// DecodeItem reads a cart line. Unknown fields are skipped.
func DecodeItem(d *jx.Decoder) (cart.Item, error) {
	var it cart.Item
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "sku":
			it.SKU, err = d.Str()
		case "name":
			it.Name, err = d.Str()
		case "quantity":
			it.Quantity, err = d.Int()
		case "price":
			it.Price, err = DecodeDecimal(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return it, err
}

// EncodeItems writes a list of cart lines; nil is written as an empty array.
func EncodeItems(e *jx.Encoder, items []cart.Item) {
	e.ArrStart()
	for _, it := range items {
		EncodeItem(e, it)
	}
	e.ArrEnd()
}

// DecodeItems reads a list of cart lines. A JSON null yields nil.
func DecodeItems(d *jx.Decoder) ([]cart.Item, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var items []cart.Item
	err := d.Arr(func(d *jx.Decoder) error {
		it, err := DecodeItem(d)
		if err != nil {
			return errors.Wrapf(err, "item %d", len(items))
		}
		items = append(items, it)
		return nil
	})
	return items, err
}

// DecodeCart reads {"userId", "items", "totalAmount"}.
func DecodeCart(d *jx.Decoder) (cart.Cart, error) {
	var c cart.Cart
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "userId":
			c.UserID, err = d.Int64()
		case "items":
			c.Items, err = DecodeItems(d)
		case "totalAmount":
			c.TotalAmount, err = DecodeDecimal(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return c, err
}

// EncodeRewards writes a rewards evaluation result.
func EncodeRewards(e *jx.Encoder, r *rewards.Response) {
	if r == nil {
		e.Null()
		return
	}
	e.ObjStart()
	e.FieldStart("discountAmount")
	EncodeDecimal(e, r.DiscountAmount)
	e.FieldStart("rewards")
	e.ArrStart()
	for _, rw := range r.Rewards {
		e.ObjStart()
		e.FieldStart("name")
		e.Str(rw.Name)
		e.FieldStart("type")
		e.Str(rw.Type)
		e.FieldStart("value")
		EncodeDecimal(e, rw.Value)
		e.FieldStart("description")
		e.Str(rw.Description)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("appliedCoupons")
	e.ArrStart()
	for _, c := range r.AppliedCoupons {
		e.Str(c)
	}
	e.ArrEnd()
	e.FieldStart("loyaltyPointsUsed")
	e.Int(r.LoyaltyPointsUsed)
	e.FieldStart("loyaltyPointsEarned")
	e.Int(r.LoyaltyPointsEarned)
	e.ObjEnd()
}

// DecodeRewards reads a rewards evaluation result. A JSON null yields nil.
func DecodeRewards(d *jx.Decoder) (*rewards.Response, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	r := &rewards.Response{}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "discountAmount":
			r.DiscountAmount, err = DecodeDecimal(d)
		case "rewards":
			r.Rewards, err = decodeRewardList(d)
		case "appliedCoupons":
			r.AppliedCoupons, err = decodeStrings(d)
		case "loyaltyPointsUsed":
			r.LoyaltyPointsUsed, err = d.Int()
		case "loyaltyPointsEarned":
			r.LoyaltyPointsEarned, err = d.Int()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func decodeRewardList(d *jx.Decoder) ([]rewards.Reward, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var out []rewards.Reward
	err := d.Arr(func(d *jx.Decoder) error {
		var rw rewards.Reward
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "name":
				rw.Name, err = d.Str()
			case "type":
				rw.Type, err = d.Str()
			case "value":
				rw.Value, err = DecodeDecimal(d)
			case "description":
				rw.Description, err = d.Str()
			default:
				return d.Skip()
			}
			if err != nil {
				return errors.Wrap(err, key)
			}
			return nil
		}); err != nil {
			return err
		}
		out = append(out, rw)
		return nil
	})
	return out, err
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

// EncodeAttributes writes a free-form attribute map with keys in sorted
// order. Values must be strings, booleans, integers, floats, decimals or
// string slices.
func EncodeAttributes(e *jx.Encoder, attrs map[string]any) error {
	e.ObjStart()
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		e.FieldStart(k)
		if err := encodeValue(e, attrs[k]); err != nil {
			return errors.Wrapf(err, "attribute %q", k)
		}
	}
	e.ObjEnd()
	return nil
}

func encodeValue(e *jx.Encoder, v any) error {
	switch v := v.(type) {
	case nil:
		e.Null()
	case string:
		e.Str(v)
	case bool:
		e.Bool(v)
	case int:
		e.Int(v)
	case int64:
		e.Int64(v)
	case float64:
		e.Float64(v)
	case decimal.Decimal:
		EncodeDecimal(e, v)
	case []string:
		e.ArrStart()
		for _, s := range v {
			e.Str(s)
		}
		e.ArrEnd()
	default:
		return errors.Errorf("unsupported type %T", v)
	}
	return nil
}
