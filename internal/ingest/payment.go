package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/angelmondragon/inventory-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/inventory-backend/pkg/errors"
	"github.com/angelmondragon/inventory-backend/pkg/logger"
)

type PaymentEvent struct {
	OrderNumber string              `json:"orderNumber"`
	Status      enums.PaymentStatus `json:"status"`
}

type orderFinalizer interface {
	FinalizeOrder(ctx context.Context, orderNumber string) (int64, error)
}

// PaymentHandler finalizes the holds of paid orders. Non-success statuses are
// logged and left alone.
type PaymentHandler struct {
	orders orderFinalizer
	logg   *logger.Logger
}

func NewPaymentHandler(orders orderFinalizer, logg *logger.Logger) (*PaymentHandler, error) {
	if orders == nil {
		return nil, fmt.Errorf("order finalizer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &PaymentHandler{orders: orders, logg: logg}, nil
}

func (h *PaymentHandler) Handle(ctx context.Context, msg Message) error {
	var event PaymentEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDeserialization, err, "decode payment event")
	}
	event.OrderNumber = strings.TrimSpace(event.OrderNumber)
	if event.OrderNumber == "" {
		return pkgerrors.New(pkgerrors.CodeDeserialization, "payment event without orderNumber")
	}

	ctx = h.logg.WithFields(h.logg.WithOrderNumber(ctx, event.OrderNumber), map[string]any{"status": event.Status})
	if !event.Status.IsSuccess() {
		h.logg.Info(ctx, "payment status requires no inventory action")
		return nil
	}
	_, err := h.orders.FinalizeOrder(ctx, event.OrderNumber)
	return err
}
