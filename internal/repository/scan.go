package repository

import "github.com/hlscan/pnlindexer/internal/decimal"

// decimalFromScanned parses a NUMERIC column's text representation. Needed
// wherever a column is nullable and so can't be scanned straight into a
// decimal.Decimal (whose Scan only runs against a non-nil destination).
func decimalFromScanned(s string) (decimal.Decimal, error) {
	return decimal.FromString(s)
}
