// Package handler exposes the user, rewards and order operations over HTTP.
package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/rewards-shop/internal/apperr"
	"github.com/xenking/rewards-shop/internal/domain/cart"
	"github.com/xenking/rewards-shop/internal/domain/order"
	"github.com/xenking/rewards-shop/internal/domain/rewards"
	"github.com/xenking/rewards-shop/internal/domain/user"
)

const maxBodyBytes = 1 << 20

// Users is the user service as seen by the API.
type Users interface {
	GetUserByID(ctx context.Context, id int64) (*user.User, error)
	UpdateUserStats(ctx context.Context, id int64, totalOrders int, totalSpent decimal.Decimal) (bool, error)
	CreateUser(ctx context.Context, email, name string) (*user.User, error)
}

// Rewards evaluates carts against the rewards engine.
type Rewards interface {
	EvaluateRewards(ctx context.Context, c cart.Cart) (*rewards.Response, error)
}

// Orders places and reads orders.
type Orders interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest, rw *rewards.Response) (*order.Order, error)
	GetOrder(ctx context.Context, id int64) (*order.Order, error)
	ListUserOrders(ctx context.Context, userID int64, limit, offset int) ([]order.Order, error)
}

// Handler serves the public API.
type Handler struct {
	users   Users
	rewards Rewards
	orders  Orders
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(users Users, rw Rewards, orders Orders) *Handler {
	return &Handler{users: users, rewards: rw, orders: orders}
}

// Register mounts the API routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/users", h.CreateUser)
	r.Get("/users/{id}", h.GetUser)
	r.Put("/users/{id}", h.UpdateUser)
	r.Get("/users/{id}/orders", h.ListUserOrders)

	r.Post("/rewards/evaluate", h.EvaluateRewards)

	r.Post("/orders", h.PlaceOrder)
	r.Get("/orders/{id}", h.GetOrder)
}

// Router returns a chi router with only the API routes, for tests and tools.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

// statusOf maps an error kind to the HTTP status returned to clients.
func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"code","message"}. Server-side failures are logged and
// answered with a generic message.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
		msg = "internal error"
	}
	writeError(w, status, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// decodeBody reads the request body and hands a decoder to fn. Decode errors
// are reported as validation errors.
func decodeBody(r *http.Request, w http.ResponseWriter, fn func(d *jx.Decoder) error) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("request body exceeds %d bytes", tooLarge.Limit)
		}
		return errors.Wrap(err, "read body")
	}
	if len(data) == 0 {
		return apperr.Validation("request body required")
	}
	d := jx.DecodeBytes(data)
	if err := fn(d); err != nil {
		if apperr.KindOf(err) == apperr.KindValidation {
			return err
		}
		return apperr.Validation("invalid request body: %s", err)
	}
	if err := d.Skip(); !errors.Is(err, io.EOF) {
		return apperr.Validation("invalid request body: unexpected data after JSON value")
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid id %q", raw)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", name)
	}
	return v, nil
}
