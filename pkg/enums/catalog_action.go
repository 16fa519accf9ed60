package enums

import (
	"fmt"
	"strings"
)

// CatalogAction is the mutation announced by an upstream catalog event.
type CatalogAction string

const (
	CatalogActionCreate CatalogAction = "CREATE"
	CatalogActionUpdate CatalogAction = "UPDATE"
	CatalogActionDelete CatalogAction = "DELETE"
)

var validCatalogActions = []CatalogAction{
	CatalogActionCreate,
	CatalogActionUpdate,
	CatalogActionDelete,
}

func (a CatalogAction) IsValid() bool {
	for _, candidate := range validCatalogActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseCatalogAction matches case-insensitively.
func ParseCatalogAction(value string) (CatalogAction, error) {
	normalized := CatalogAction(strings.ToUpper(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid catalog action %q", value)
}
