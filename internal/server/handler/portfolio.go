package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dineshdataengineer/reactive-stock-trader/internal/domain"
)

// PortfolioService defines the methods that the portfolio handler requires.
type PortfolioService interface {
	Open(ctx context.Context, name string) (domain.PortfolioSummary, error)
	Summary(ctx context.Context, id string) (domain.PortfolioSummary, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.PortfolioSummary, error)
	State(ctx context.Context, id string) (domain.PortfolioState, int64, error)
	Liquidate(ctx context.Context, id string) error
	Close(ctx context.Context, id string) error
}

// PortfolioHandler serves portfolio lifecycle and read endpoints.
type PortfolioHandler struct {
	portfolios PortfolioService
	logger     *slog.Logger
}

// NewPortfolioHandler creates a PortfolioHandler with the given service and
// logger.
func NewPortfolioHandler(portfolios PortfolioService, logger *slog.Logger) *PortfolioHandler {
	return &PortfolioHandler{
		portfolios: portfolios,
		logger:     logger,
	}
}

// summaryView is the wire shape of a portfolio summary row.
type summaryView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	Funds        string    `json:"funds"`
	LoyaltyLevel string    `json:"loyalty_level"`
	OpenedAt     time.Time `json:"opened_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toSummaryView(sum domain.PortfolioSummary) summaryView {
	return summaryView{
		ID:           sum.ID,
		Name:         sum.Name,
		Status:       string(sum.Status),
		Funds:        sum.Funds.String(),
		LoyaltyLevel: string(sum.LoyaltyLevel),
		OpenedAt:     sum.OpenedAt,
		UpdatedAt:    sum.UpdatedAt,
	}
}

// orderView is the wire shape of one active order.
type orderView struct {
	OrderID string `json:"order_id"`
	Symbol  string `json:"symbol"`
	Shares  int64  `json:"shares"`
	Side    string `json:"side"`
}

// stateView is the wire shape of a portfolio state. Fields absent from a
// lifecycle variant are omitted.
type stateView struct {
	Status          string           `json:"status"`
	Funds           string           `json:"funds"`
	Name            string           `json:"name,omitempty"`
	LoyaltyLevel    string           `json:"loyalty_level,omitempty"`
	Holdings        map[string]int64 `json:"holdings,omitempty"`
	ActiveOrders    []orderView      `json:"active_orders,omitempty"`
	CompletedOrders []string         `json:"completed_orders,omitempty"`
}

// stateViewVisitor renders each lifecycle variant. Implementing the Visitor
// interface forces a branch per variant; adding a fourth variant would break
// this type at compile time.
type stateViewVisitor struct{}

func (stateViewVisitor) VisitOpen(o domain.Open) stateView {
	orders := make([]orderView, 0, o.ActiveOrderCount())
	for _, placed := range o.ActiveOrders() {
		orders = append(orders, orderView{
			OrderID: string(placed.OrderID),
			Symbol:  placed.Symbol,
			Shares:  placed.Shares,
			Side:    string(placed.Side),
		})
	}

	completed := make([]string, 0, len(o.CompletedOrders()))
	for _, id := range o.CompletedOrders() {
		completed = append(completed, string(id))
	}

	return stateView{
		Status:          string(domain.StatusOpen),
		Funds:           o.Funds().String(),
		Name:            o.Name(),
		LoyaltyLevel:    string(o.LoyaltyLevel()),
		Holdings:        holdingsMap(o.Holdings()),
		ActiveOrders:    orders,
		CompletedOrders: completed,
	}
}

func (stateViewVisitor) VisitLiquidating(l domain.Liquidating) stateView {
	return stateView{
		Status:       string(domain.StatusLiquidating),
		Funds:        l.Funds().String(),
		Name:         l.Name(),
		LoyaltyLevel: string(l.LoyaltyLevel()),
		Holdings:     holdingsMap(l.Holdings()),
	}
}

func (stateViewVisitor) VisitClosed(domain.Closed) stateView {
	return stateView{
		Status: string(domain.StatusClosed),
		Funds:  decimal.Zero.String(),
	}
}

func holdingsMap(h domain.Holdings) map[string]int64 {
	out := make(map[string]int64, h.Size())
	for _, sym := range h.Symbols() {
		out[sym] = h.ShareCount(sym)
	}
	return out
}

// Compile-time check that the visitor covers every variant.
var _ domain.Visitor[stateView] = stateViewVisitor{}

// openRequest is the body of a portfolio creation request.
type openRequest struct {
	Name string `json:"name"`
}

// OpenPortfolio creates a new portfolio.
// POST /api/portfolios
func (h *PortfolioHandler) OpenPortfolio(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	sum, err := h.portfolios.Open(r.Context(), req.Name)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: open portfolio failed",
			slog.String("name", req.Name),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSummaryView(sum))
}

// ListPortfolios returns portfolio summaries.
// GET /api/portfolios?status=open&limit=50&offset=0
func (h *PortfolioHandler) ListPortfolios(w http.ResponseWriter, r *http.Request) {
	sums, err := h.portfolios.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list portfolios failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	views := make([]summaryView, 0, len(sums))
	for _, sum := range sums {
		views = append(views, toSummaryView(sum))
	}
	writeJSON(w, http.StatusOK, map[string]any{"portfolios": views})
}

// GetPortfolio returns a portfolio's full state rendered per lifecycle
// variant, together with the journal sequence number the view reflects.
// GET /api/portfolios/{id}
func (h *PortfolioHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	state, seqNo, err := h.portfolios.State(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get portfolio failed",
			slog.String("portfolio_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	view := domain.VisitState[stateView](state, stateViewVisitor{})
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          id,
		"sequence_no": seqNo,
		"state":       view,
	})
}

// LiquidatePortfolio moves a portfolio into the winding-down phase.
// POST /api/portfolios/{id}/liquidate
func (h *PortfolioHandler) LiquidatePortfolio(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	if err := h.portfolios.Liquidate(r.Context(), id); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: liquidate failed",
			slog.String("portfolio_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.StatusLiquidating)})
}

// ClosePortfolio moves a liquidating portfolio into its terminal phase.
// POST /api/portfolios/{id}/close
func (h *PortfolioHandler) ClosePortfolio(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	if err := h.portfolios.Close(r.Context(), id); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: close failed",
			slog.String("portfolio_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.StatusClosed)})
}
