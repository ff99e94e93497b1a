package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"
)

// TransferService defines the methods that the transfer handler requires.
type TransferService interface {
	Deposit(ctx context.Context, id string, amount decimal.Decimal) error
	Withdraw(ctx context.Context, id string, amount decimal.Decimal) error
	CreditShares(ctx context.Context, id, symbol string, shares int64) error
	DebitShares(ctx context.Context, id, symbol string, shares int64) error
}

// TransferHandler serves funds and share transfer endpoints.
type TransferHandler struct {
	transfers TransferService
	logger    *slog.Logger
}

// NewTransferHandler creates a TransferHandler with the given service and
// logger.
func NewTransferHandler(transfers TransferService, logger *slog.Logger) *TransferHandler {
	return &TransferHandler{
		transfers: transfers,
		logger:    logger,
	}
}

// transferRequest is the body of a deposit or withdrawal request. The amount
// is a decimal string to avoid float rounding on the wire.
type transferRequest struct {
	Amount string `json:"amount"`
}

func (h *TransferHandler) parseAmount(w http.ResponseWriter, r *http.Request) (decimal.Decimal, bool) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a decimal string")
		return decimal.Zero, false
	}
	return amount, true
}

// Deposit credits funds to a portfolio.
// POST /api/portfolios/{id}/deposits
func (h *TransferHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	amount, ok := h.parseAmount(w, r)
	if !ok {
		return
	}

	if err := h.transfers.Deposit(r.Context(), id, amount); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: deposit failed",
			slog.String("portfolio_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": amount.String()})
}

// Withdraw debits funds from a portfolio.
// POST /api/portfolios/{id}/withdrawals
func (h *TransferHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	amount, ok := h.parseAmount(w, r)
	if !ok {
		return
	}

	if err := h.transfers.Withdraw(r.Context(), id, amount); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: withdraw failed",
			slog.String("portfolio_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": amount.String()})
}

// shareAdjustmentRequest is the body of a share credit or debit request.
type shareAdjustmentRequest struct {
	Symbol string `json:"symbol"`
	Shares int64  `json:"shares"`
}

// CreditShares applies a back-office share credit.
// POST /api/portfolios/{id}/shares/credits
func (h *TransferHandler) CreditShares(w http.ResponseWriter, r *http.Request) {
	h.adjustShares(w, r, h.transfers.CreditShares, "credit shares")
}

// DebitShares applies a back-office share debit.
// POST /api/portfolios/{id}/shares/debits
func (h *TransferHandler) DebitShares(w http.ResponseWriter, r *http.Request) {
	h.adjustShares(w, r, h.transfers.DebitShares, "debit shares")
}

func (h *TransferHandler) adjustShares(w http.ResponseWriter, r *http.Request, apply func(context.Context, string, string, int64) error, op string) {
	id := pathParam(r, "id")

	var req shareAdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Symbol == "" || req.Shares <= 0 {
		writeError(w, http.StatusBadRequest, "symbol and positive shares required")
		return
	}

	if err := apply(r.Context(), id, req.Symbol, req.Shares); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("portfolio_id", id),
			slog.String("symbol", req.Symbol),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": req.Symbol, "shares": req.Shares})
}
