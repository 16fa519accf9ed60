package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/inventory-backend/pkg/errors"
)

type fakeFinalizer struct {
	orders []string
	err    error
}

func (f *fakeFinalizer) FinalizeOrder(_ context.Context, orderNumber string) (int64, error) {
	f.orders = append(f.orders, orderNumber)
	return 1, f.err
}

func paymentMessage(body string) Message {
	return Message{ID: "p", Route: "payment-events", Data: []byte(body)}
}

func TestPaymentSuccessFinalizesOrder(t *testing.T) {
	finalizer := &fakeFinalizer{}
	handler, err := NewPaymentHandler(finalizer, testLogger())
	require.NoError(t, err)

	require.NoError(t, handler.Handle(context.Background(), paymentMessage(`{"orderNumber":" O-1 ","status":"Success"}`)))
	require.Equal(t, []string{"O-1"}, finalizer.orders)
}

func TestPaymentOtherStatusesAreNoOps(t *testing.T) {
	finalizer := &fakeFinalizer{}
	handler, err := NewPaymentHandler(finalizer, testLogger())
	require.NoError(t, err)

	for _, status := range []string{"Failed", "Pending", "Refunded", ""} {
		body := `{"orderNumber":"O-2","status":"` + status + `"}`
		require.NoError(t, handler.Handle(context.Background(), paymentMessage(body)))
	}
	require.Empty(t, finalizer.orders)
}

func TestPaymentMalformedPayloads(t *testing.T) {
	handler, err := NewPaymentHandler(&fakeFinalizer{}, testLogger())
	require.NoError(t, err)

	err = handler.Handle(context.Background(), paymentMessage(`not json`))
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeDeserialization))

	err = handler.Handle(context.Background(), paymentMessage(`{"status":"Success"}`))
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeDeserialization))
}

func TestPaymentStoreFailureIsRetried(t *testing.T) {
	finalizer := &fakeFinalizer{err: errors.New("connection reset")}
	handler, err := NewPaymentHandler(finalizer, testLogger())
	require.NoError(t, err)

	router := newTestRouter(t)
	router.Register("payment-events", handler)

	retry, err := router.Dispatch(context.Background(), paymentMessage(`{"orderNumber":"O-3","status":"Success"}`))
	require.True(t, retry)
	require.Error(t, err)
}
