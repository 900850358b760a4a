// Package errors holds the sentinel errors shared across packages and helpers that strip
// sensitive detail from error text before it leaves the process.
package errors

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// URLs keep scheme and host only; webhook paths and query strings often embed tokens.
	urlPattern = regexp.MustCompile(`\b([a-z][a-z0-9+.-]*)://([^/\s"'?]+)[^\s"']*`)

	// Pattern to match file paths (Linux and Windows)
	filePathPattern = regexp.MustCompile(`(^|\s)((/[a-zA-Z0-9_\-.]+)+)|([A-Z]:\\[a-zA-Z0-9_\-\\ ./]+)`)

	// Pattern to match IP addresses
	ipPattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

	// Credential material that transports sometimes echo back in errors
	credentialPattern = regexp.MustCompile(`(?i)(password=|secret=|token=|api[_-]?key=|x-amz-security-token|signature=|\b(AKIA|ASIA)[A-Z0-9]{16}\b)`)
)

// ProductionMode determines whether to use sanitized errors.
// Set to true in production deployments.
var ProductionMode = false

// SanitizeError removes sensitive information from an error message.
// In development mode (ProductionMode=false) the original error is returned.
func SanitizeError(err error) error {
	if err == nil {
		return nil
	}

	if !ProductionMode {
		return err
	}

	return errors.New(SanitizeString(err.Error()))
}

// SanitizeString removes sensitive information from a string.
func SanitizeString(s string) string {
	if !ProductionMode {
		return s
	}

	if credentialPattern.MatchString(s) {
		return "operation failed (details redacted)"
	}

	s = urlPattern.ReplaceAllString(s, "$1://$2/...")

	// Remove absolute file paths, keep only filename
	s = filePathPattern.ReplaceAllStringFunc(s, func(match string) string {
		lead := ""
		if strings.HasPrefix(match, " ") || strings.HasPrefix(match, "\t") {
			lead = match[:1]
			match = match[1:]
		}
		return lead + filepath.Base(match)
	})

	// Mask IP addresses (keep first two octets for debugging context)
	s = ipPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := strings.Split(match, ".")
		if len(parts) == 4 {
			return fmt.Sprintf("%s.%s.x.x", parts[0], parts[1])
		}
		return "x.x.x.x"
	})

	// Replace long stack traces with generic message
	if strings.Contains(s, "goroutine") || strings.Count(s, "\n") > 3 {
		s = "internal error - operation failed"
	}

	return s
}

// IsProduction returns true if running in production mode.
func IsProduction() bool {
	return ProductionMode
}

// SetProductionMode sets the production mode flag.
// Should be called during application initialization.
func SetProductionMode(production bool) {
	ProductionMode = production
}
