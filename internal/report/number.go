package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Number is a rounded value that survives JSON even when infinite. Infinities
// encode as the strings "Infinity" and "-Infinity", NaN as null.
type Number struct {
	d   decimal.Decimal
	inf int
	nan bool
}

// Round converts v to a Number with the given decimal places.
func Round(v float64, places int32) Number {
	switch {
	case math.IsInf(v, 1):
		return Number{inf: 1}
	case math.IsInf(v, -1):
		return Number{inf: -1}
	case math.IsNaN(v):
		return Number{nan: true}
	}
	return Number{d: decimal.NewFromFloat(v).Round(places)}
}

// IsInf reports whether n is infinite with the sign of sign, as math.IsInf.
func (n Number) IsInf(sign int) bool {
	switch {
	case sign > 0:
		return n.inf > 0
	case sign < 0:
		return n.inf < 0
	}
	return n.inf != 0
}

// Float64 returns the rounded value.
func (n Number) Float64() float64 {
	switch {
	case n.inf != 0:
		return math.Inf(n.inf)
	case n.nan:
		return math.NaN()
	}
	return n.d.InexactFloat64()
}

// Fixed formats n with exactly places decimals.
func (n Number) Fixed(places int32) string {
	switch {
	case n.inf > 0:
		return "Infinity"
	case n.inf < 0:
		return "-Infinity"
	case n.nan:
		return "NaN"
	}
	return n.d.StringFixed(places)
}

func (n Number) String() string {
	if n.inf != 0 || n.nan {
		return n.Fixed(0)
	}
	return n.d.String()
}

func (n Number) MarshalJSON() ([]byte, error) {
	switch {
	case n.inf > 0:
		return []byte(`"Infinity"`), nil
	case n.inf < 0:
		return []byte(`"-Infinity"`), nil
	case n.nan:
		return []byte("null"), nil
	}
	return []byte(n.d.String()), nil
}

func (n *Number) UnmarshalJSON(data []byte) error {
	s := string(data)
	switch s {
	case `"Infinity"`:
		*n = Number{inf: 1}
		return nil
	case `"-Infinity"`:
		*n = Number{inf: -1}
		return nil
	case "null":
		*n = Number{nan: true}
		return nil
	}
	d, err := decimal.NewFromString(strings.Trim(s, `"`))
	if err != nil {
		return fmt.Errorf("decoding number %s: %w", s, err)
	}
	*n = Number{d: d}
	return nil
}
