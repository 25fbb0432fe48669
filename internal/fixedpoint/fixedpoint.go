// Package fixedpoint converts floating-point price ratios into 10^18-scaled
// integers suitable for integer-only reward arithmetic.
//
// The float to fixed-point boundary is crossed exactly once, here. Downstream
// packages work purely on big.Int and never re-derive scaled values from
// floats.
package fixedpoint

import (
	"errors"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// ScaleDecimals is the number of decimal digits carried by a scaled rate.
const ScaleDecimals = 18

// ErrInvalidRatio is returned for zero, negative or non-finite ratios.
var ErrInvalidRatio = errors.New("fixedpoint: ratio must be positive and finite")

// Scale converts a price ratio to ratio * 10^18 as a big integer using decimal
// string decomposition. The ratio is first rendered as a fixed 18-decimal
// string, then the integer and fractional digits are concatenated into a
// single integer literal. This sidesteps the precision loss of multiplying
// large ratios by 1e18 in floating point, which is observable for BTC/NBC
// scale ratios with more significant digits than a float64 carries exactly.
func Scale(ratio float64) (*big.Int, error) {
	if err := checkRatio(ratio); err != nil {
		return nil, err
	}

	s := strconv.FormatFloat(ratio, 'f', ScaleDecimals, 64)
	intPart, fracPart, _ := strings.Cut(s, ".")
	if len(fracPart) < ScaleDecimals {
		fracPart += strings.Repeat("0", ScaleDecimals-len(fracPart))
	}
	fracPart = fracPart[:ScaleDecimals]

	scaled, ok := new(big.Int).SetString(intPart+fracPart, 10)
	if !ok {
		return nil, ErrInvalidRatio
	}
	return scaled, nil
}

// ScaleNaive converts a ratio to ratio * 10^18 by multiplying in floating
// point and flooring. Kept as a diagnostic alternative: its result drifts
// from Scale once the product exceeds 2^53, and the divergence between the
// two methods is a tested property.
func ScaleNaive(ratio float64) (*big.Int, error) {
	if err := checkRatio(ratio); err != nil {
		return nil, err
	}

	product := math.Floor(ratio * 1e18)
	scaled, _ := new(big.Float).SetFloat64(product).Int(nil)
	return scaled, nil
}

func checkRatio(ratio float64) error {
	if ratio <= 0 || math.IsInf(ratio, 0) || math.IsNaN(ratio) {
		return ErrInvalidRatio
	}
	return nil
}

// Unscale converts a 10^18-scaled integer back to a float64 ratio. Diagnostic
// only; the result is not safe to rescale.
func Unscale(scaled *big.Int) float64 {
	if scaled == nil {
		return 0
	}
	f := new(big.Float).SetInt(scaled)
	f.Quo(f, new(big.Float).SetInt(Pow10(ScaleDecimals)))
	out, _ := f.Float64()
	return out
}

// Pow10 returns 10^n as a big integer. Negative n yields 1.
func Pow10(n int) *big.Int {
	if n <= 0 {
		return big.NewInt(1)
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// CeilDiv divides a by b rounding up, by pre-incrementing the numerator with
// b-1 before integer division. b must be positive.
func CeilDiv(a, b *big.Int) *big.Int {
	num := new(big.Int).Add(a, new(big.Int).Sub(b, big.NewInt(1)))
	return num.Div(num, b)
}
