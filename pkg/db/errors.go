package db

import "strings"

var uniqueViolationMarkers = []string{
	"duplicate key value",      // postgres
	"Duplicate entry",          // mysql
	"UNIQUE constraint failed", // sqlite
}

// IsUniqueViolation reports whether the provided error references a unique
// constraint violation on any of the supported dialects. When constraintName
// is provided, the helper looks for the constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	for _, marker := range uniqueViolationMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
