package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event is keyed on.
type OutboxAggregateType string

const (
	AggregateReservation OutboxAggregateType = "reservation"
	AggregateStockLedger OutboxAggregateType = "stock_ledger"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateReservation,
	AggregateStockLedger,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names the integration event carried by an outbox row.
type OutboxEventType string

const (
	EventOrderCancelRequested OutboxEventType = "order_cancel_requested"
	EventStockLimitReached    OutboxEventType = "stock_limit_reached"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCancelRequested,
	EventStockLimitReached,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
