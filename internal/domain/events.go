package domain

import "github.com/shopspring/decimal"

// OrderID identifies a single order across its lifecycle.
type OrderID string

// OrderSide indicates whether an order buys or sells shares.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// EventType tags a PortfolioEvent for journal storage and bus payloads.
type EventType string

const (
	EventTransferReceived EventType = "transfer_received"
	EventTransferSent     EventType = "transfer_sent"
	EventSharesCredited   EventType = "shares_credited"
	EventSharesDebited    EventType = "shares_debited"
	EventOrderPlaced      EventType = "order_placed"
	EventSharesBought     EventType = "shares_bought"
	EventSharesSold       EventType = "shares_sold"
	EventOrderFailed      EventType = "order_failed"
)

// PortfolioEvent is the closed set of domain events a portfolio journal can
// contain. Only types in this package implement it, so dispatch over events
// is exhaustive: a type switch covering the eight concrete types covers every
// possible value.
type PortfolioEvent interface {
	EventType() EventType
	isPortfolioEvent()
}

// TransferReceived records funds deposited into the portfolio.
type TransferReceived struct {
	Amount decimal.Decimal `json:"amount"`
}

// TransferSent records funds withdrawn from the portfolio.
type TransferSent struct {
	Amount decimal.Decimal `json:"amount"`
}

// SharesCredited records shares added outside of a trade, e.g. a back-office
// adjustment or an incoming transfer of positions.
type SharesCredited struct {
	Symbol string `json:"symbol"`
	Shares int64  `json:"shares"`
}

// SharesDebited records shares removed outside of a trade.
type SharesDebited struct {
	Symbol string `json:"symbol"`
	Shares int64  `json:"shares"`
}

// OrderPlaced records an accepted order. The placement details stay attached
// to the active order entry until the order resolves.
type OrderPlaced struct {
	OrderID OrderID   `json:"order_id"`
	Symbol  string    `json:"symbol"`
	Shares  int64     `json:"shares"`
	Side    OrderSide `json:"side"`
}

// SharesBought records the settlement of a buy order: shares are credited and
// the trade cost (shares × share price) is deducted from funds.
type SharesBought struct {
	OrderID    OrderID         `json:"order_id"`
	Symbol     string          `json:"symbol"`
	Shares     int64           `json:"shares"`
	SharePrice decimal.Decimal `json:"share_price"`
}

// SharesSold records the settlement of a sell order: shares are debited and
// the proceeds are added to funds.
type SharesSold struct {
	OrderID    OrderID         `json:"order_id"`
	Symbol     string          `json:"symbol"`
	Shares     int64           `json:"shares"`
	SharePrice decimal.Decimal `json:"share_price"`
}

// OrderFailed records an order that resolved without trading: it leaves the
// active set and joins the completed set with holdings and funds untouched.
type OrderFailed struct {
	OrderID OrderID `json:"order_id"`
}

func (TransferReceived) EventType() EventType { return EventTransferReceived }
func (TransferSent) EventType() EventType     { return EventTransferSent }
func (SharesCredited) EventType() EventType   { return EventSharesCredited }
func (SharesDebited) EventType() EventType    { return EventSharesDebited }
func (OrderPlaced) EventType() EventType      { return EventOrderPlaced }
func (SharesBought) EventType() EventType     { return EventSharesBought }
func (SharesSold) EventType() EventType       { return EventSharesSold }
func (OrderFailed) EventType() EventType      { return EventOrderFailed }

func (TransferReceived) isPortfolioEvent() {}
func (TransferSent) isPortfolioEvent()     {}
func (SharesCredited) isPortfolioEvent()   {}
func (SharesDebited) isPortfolioEvent()    {}
func (OrderPlaced) isPortfolioEvent()      {}
func (SharesBought) isPortfolioEvent()     {}
func (SharesSold) isPortfolioEvent()       {}
func (OrderFailed) isPortfolioEvent()      {}
