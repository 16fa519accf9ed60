package instance

import "testing"

func TestIDPrefersExplicitValue(t *testing.T) {
	t.Setenv("INVENTORY_INSTANCE_ID", "cron-1")
	t.Setenv("DYNO", "web.1")
	if got := ID(); got != "cron-1" {
		t.Fatalf("expected cron-1, got %q", got)
	}
}

func TestIDFallsBackToDyno(t *testing.T) {
	t.Setenv("INVENTORY_INSTANCE_ID", "")
	t.Setenv("DYNO", "web.1")
	if got := ID(); got != "web.1" {
		t.Fatalf("expected web.1, got %q", got)
	}
}
