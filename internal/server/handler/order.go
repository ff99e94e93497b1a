package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/Dineshdataengineer/reactive-stock-trader/internal/domain"
)

// OrderService defines the methods that the order handler requires.
type OrderService interface {
	PlaceOrder(ctx context.Context, id, symbol string, shares int64, side domain.OrderSide) (domain.OrderID, error)
	CompleteTrade(ctx context.Context, id string, orderID domain.OrderID, sharePrice decimal.Decimal) error
	FailOrder(ctx context.Context, id string, orderID domain.OrderID) error
	State(ctx context.Context, id string) (domain.PortfolioState, int64, error)
}

// OrderHandler serves order placement and settlement endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// placeOrderRequest is the body of an order placement request.
type placeOrderRequest struct {
	Symbol string `json:"symbol"`
	Shares int64  `json:"shares"`
	Side   string `json:"side"`
}

// PlaceOrder records a new order against a portfolio.
// POST /api/portfolios/{id}/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Symbol == "" || req.Shares <= 0 {
		writeError(w, http.StatusBadRequest, "symbol and positive shares required")
		return
	}
	side := domain.OrderSide(req.Side)
	if side != domain.OrderSideBuy && side != domain.OrderSideSell {
		writeError(w, http.StatusBadRequest, `side must be "buy" or "sell"`)
		return
	}

	orderID, err := h.orders.PlaceOrder(r.Context(), id, req.Symbol, req.Shares, side)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: place order failed",
			slog.String("portfolio_id", id),
			slog.String("symbol", req.Symbol),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"order_id": string(orderID)})
}

// ListOrders returns the active orders of a portfolio.
// GET /api/portfolios/{id}/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	state, _, err := h.orders.State(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("portfolio_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	orders := []orderView{}
	if open, ok := state.(domain.Open); ok {
		for _, placed := range open.ActiveOrders() {
			orders = append(orders, orderView{
				OrderID: string(placed.OrderID),
				Symbol:  placed.Symbol,
				Shares:  placed.Shares,
				Side:    string(placed.Side),
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// completeTradeRequest is the body of a trade settlement request. The share
// price is a decimal string to avoid float rounding on the wire.
type completeTradeRequest struct {
	SharePrice string `json:"share_price"`
}

// CompleteTrade settles an active order at the given price.
// POST /api/portfolios/{id}/orders/{orderId}/complete
func (h *OrderHandler) CompleteTrade(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	orderID := domain.OrderID(pathParam(r, "orderId"))

	var req completeTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	price, err := decimal.NewFromString(req.SharePrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, "share_price must be a decimal string")
		return
	}

	if err := h.orders.CompleteTrade(r.Context(), id, orderID, price); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: complete trade failed",
			slog.String("portfolio_id", id),
			slog.String("order_id", string(orderID)),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"order_id": string(orderID)})
}

// FailOrder resolves an active order without trading.
// POST /api/portfolios/{id}/orders/{orderId}/fail
func (h *OrderHandler) FailOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	orderID := domain.OrderID(pathParam(r, "orderId"))

	if err := h.orders.FailOrder(r.Context(), id, orderID); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: fail order failed",
			slog.String("portfolio_id", id),
			slog.String("order_id", string(orderID)),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"order_id": string(orderID)})
}
