package instance

import (
	"os"

	"github.com/angelmondragon/inventory-backend/pkg/env"
)

// ID identifies this process in logs, traces and lock values.
// INVENTORY_INSTANCE_ID wins over the platform dyno name and the hostname.
func ID() string {
	if id := env.Get("INVENTORY_INSTANCE_ID", os.Getenv("DYNO")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
