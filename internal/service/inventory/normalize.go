package inventory

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeSKU trims surrounding whitespace and applies Unicode NFC so
// visually identical SKUs compare equal.
func NormalizeSKU(sku string) string {
	return norm.NFC.String(strings.TrimSpace(sku))
}
