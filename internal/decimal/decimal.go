// Package decimal implements arbitrary-precision signed decimal arithmetic for
// monetary quantities. Values are stored as a scaled big.Int (scale = 8 fractional
// digits, matching the wire format used by the storage layer) so that addition and
// subtraction are always exact; floating point is never used for money.
package decimal

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"strings"
)

// Scale is the number of fractional digits kept internally and on the wire.
const Scale = 8

var pow10 = new(big.Int).Exp(big.NewInt(10), big.NewInt(Scale), nil)

// Decimal is a signed fixed-point number with Scale fractional digits.
// The zero value is zero.
type Decimal struct {
	unscaled big.Int
}

// Zero returns the additive identity.
func Zero() Decimal {
	return Decimal{}
}

// FromString parses a base-10 string (optionally signed, optionally with a
// decimal point) into a Decimal. It never uses floating point.
func FromString(s string) (Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Decimal{}, fmt.Errorf("decimal: empty string")
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return Decimal{}, fmt.Errorf("decimal: invalid number %q", s)
	}

	intPart, fracPart, hasPoint := s, "", false
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart, fracPart, hasPoint = s[:idx], s[idx+1:], true
	}
	if intPart == "" {
		intPart = "0"
	}
	if hasPoint && len(fracPart) > Scale {
		fracPart = fracPart[:Scale] // truncate excess precision past our wire scale
	}
	for len(fracPart) < Scale {
		fracPart += "0"
	}

	digits := intPart + fracPart
	for _, r := range digits {
		if r < '0' || r > '9' {
			return Decimal{}, fmt.Errorf("decimal: invalid number %q", s)
		}
	}

	u, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Decimal{}, fmt.Errorf("decimal: invalid number %q", s)
	}
	if neg {
		u.Neg(u)
	}
	return Decimal{unscaled: *u}, nil
}

// MustFromString is FromString but panics on error; intended for constants and tests.
func MustFromString(s string) Decimal {
	d, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FromInt64 builds a Decimal equal to the given integer.
func FromInt64(v int64) Decimal {
	u := new(big.Int).Mul(big.NewInt(v), pow10)
	return Decimal{unscaled: *u}
}

// Add returns d + other.
func (d Decimal) Add(other Decimal) Decimal {
	var out Decimal
	out.unscaled.Add(&d.unscaled, &other.unscaled)
	return out
}

// Sub returns d - other.
func (d Decimal) Sub(other Decimal) Decimal {
	var out Decimal
	out.unscaled.Sub(&d.unscaled, &other.unscaled)
	return out
}

// Neg returns -d.
func (d Decimal) Neg() Decimal {
	var out Decimal
	out.unscaled.Neg(&d.unscaled)
	return out
}

// Mul returns d * other, rounding half-up to Scale fractional digits.
func (d Decimal) Mul(other Decimal) Decimal {
	product := new(big.Int).Mul(&d.unscaled, &other.unscaled)
	return Decimal{unscaled: *divRoundHalfUp(product, pow10)}
}

// Abs returns the absolute value of d.
func (d Decimal) Abs() Decimal {
	var out Decimal
	out.unscaled.Abs(&d.unscaled)
	return out
}

// Sign returns -1, 0, or 1 depending on the sign of d.
func (d Decimal) Sign() int {
	return d.unscaled.Sign()
}

// IsZero reports whether d is exactly zero.
func (d Decimal) IsZero() bool {
	return d.unscaled.Sign() == 0
}

// Cmp compares d and other, returning -1, 0, or 1.
func (d Decimal) Cmp(other Decimal) int {
	return d.unscaled.Cmp(&other.unscaled)
}

// GreaterThan reports whether d > other.
func (d Decimal) GreaterThan(other Decimal) bool { return d.Cmp(other) > 0 }

// LessThan reports whether d < other.
func (d Decimal) LessThan(other Decimal) bool { return d.Cmp(other) < 0 }

// String renders d with exactly Scale fractional digits, the wire format used by
// the storage layer (see repository.encodeDecimal).
func (d Decimal) String() string {
	neg := d.unscaled.Sign() < 0
	abs := new(big.Int).Abs(&d.unscaled)

	digits := abs.String()
	for len(digits) <= Scale {
		digits = "0" + digits
	}
	intPart := digits[:len(digits)-Scale]
	fracPart := digits[len(digits)-Scale:]

	sign := ""
	if neg && (intPart != "0" || strings.Trim(fracPart, "0") != "") {
		sign = "-"
	}
	return fmt.Sprintf("%s%s.%s", sign, intPart, fracPart)
}

// MarshalJSON renders the Decimal as a quoted fixed-string, never a JSON number,
// so readers never round-trip it through a float.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts either a quoted string or a bare JSON number token.
func (d *Decimal) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := FromString(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value renders d as its fixed-string wire format so pgx can bind it directly
// against a NUMERIC column.
func (d Decimal) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan accepts whatever pgx hands back for a NUMERIC/TEXT column: a string, a
// []byte, or (via pgx's numeric-as-float fallback) nothing we need to support,
// since every NUMERIC column here is read back through pgx's text protocol.
func (d *Decimal) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Decimal{}
		return nil
	case string:
		parsed, err := FromString(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		parsed, err := FromString(string(v))
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("decimal: unsupported scan source %T", src)
	}
}

// divRoundHalfUp divides num by denom, rounding the magnitude half-up (never
// banker's rounding), preserving sign.
func divRoundHalfUp(num, denom *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(num, denom, new(big.Int))
	if r.Sign() == 0 {
		return q
	}
	twice := new(big.Int).Mul(new(big.Int).Abs(r), big.NewInt(2))
	if twice.Cmp(denom) >= 0 {
		if num.Sign() < 0 {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}
	return q
}
