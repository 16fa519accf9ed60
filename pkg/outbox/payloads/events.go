package payloads

// OrderCancelRequestedEvent asks the order service to cancel an order whose
// reservation lapsed before payment.
type OrderCancelRequestedEvent struct {
	OrderNumber string `json:"orderNumber"`
}

// StockLimitReachedEvent reports a ledger at or below its restock threshold.
type StockLimitReachedEvent struct {
	SKU             string `json:"sku"`
	Limit           int    `json:"limit"`
	CurrentQuantity int    `json:"currentQuantity"`
}
