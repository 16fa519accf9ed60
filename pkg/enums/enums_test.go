package enums

import "testing"

func TestParseCatalogAction(t *testing.T) {
	tests := map[string]CatalogAction{
		"CREATE":   CatalogActionCreate,
		" update ": CatalogActionUpdate,
		"delete":   CatalogActionDelete,
	}
	for raw, want := range tests {
		got, err := ParseCatalogAction(raw)
		if err != nil {
			t.Fatalf("ParseCatalogAction(%q) returned error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseCatalogAction(%q) = %q, want %q", raw, got, want)
		}
	}

	if _, err := ParseCatalogAction("ARCHIVE"); err == nil {
		t.Fatal("expected unknown action to fail")
	}
}

func TestPaymentStatusIsSuccess(t *testing.T) {
	if !PaymentStatus("success").IsSuccess() {
		t.Fatal("expected lower-case success to match")
	}
	if PaymentStatus("Failed").IsSuccess() {
		t.Fatal("failed status must not finalize reservations")
	}
	if PaymentStatus("").IsSuccess() {
		t.Fatal("empty status must not finalize reservations")
	}
}

func TestOutboxEnumsParse(t *testing.T) {
	if _, err := ParseOutboxEventType("stock_limit_reached"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseOutboxEventType("order_created"); err == nil {
		t.Fatal("expected unknown event type to fail")
	}
	if !AggregateReservation.IsValid() || OutboxAggregateType("cart").IsValid() {
		t.Fatal("aggregate validation mismatch")
	}
}
