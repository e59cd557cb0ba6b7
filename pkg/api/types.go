package api

// REST response and WebSocket message types.

// AccountInfo is the margin summary for one smart-margin account. Amounts
// are 18-decimal fixed point rendered as decimal strings.
type AccountInfo struct {
	Address         string   `json:"address"`
	Owner           string   `json:"owner"`
	Delegates       []string `json:"delegates"`
	Balance         string   `json:"balance"`
	CommittedMargin string   `json:"committedMargin"`
	FreeMargin      string   `json:"freeMargin"`
	Nonce           uint64   `json:"nonce"`
	OpenOrders      int      `json:"openOrders"`
}

// OrderInfo is one pending conditional order.
type OrderInfo struct {
	ID               uint64 `json:"id"`
	MarketKey        string `json:"marketKey"`
	MarginDelta      string `json:"marginDelta"`
	SizeDelta        string `json:"sizeDelta"`
	TargetPrice      string `json:"targetPrice"`
	DesiredFillPrice string `json:"desiredFillPrice"`
	OrderType        string `json:"orderType"`
	ReduceOnly       bool   `json:"reduceOnly"`
	TaskID           string `json:"taskId"`
}

// CheckResult is the conditional-order validity response the automation
// network polls.
type CheckResult struct {
	OrderID uint64 `json:"orderId"`
	Valid   bool   `json:"valid"`
}

// CreateAccountRequest asks the factory for a new account.
type CreateAccountRequest struct {
	Owner string `json:"owner"`
}

// CreateAccountResponse carries the deployed account address.
type CreateAccountResponse struct {
	Account string `json:"account"`
}

// ErrorResponse is the uniform REST error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WSEvent wraps an engine event for the websocket stream.
type WSEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
