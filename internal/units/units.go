// Package units converts between decimal strings and smallest-unit integers
// for ETH (18 decimals) and ERC-20 tokens with arbitrary decimals.
//
// Amounts are always carried as *big.Int in the smallest unit. Floats are only
// produced for display.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// EtherDecimals is the decimal precision of ETH (1 ETH = 1e18 wei).
const EtherDecimals = 18

var (
	ErrEmptyAmount   = errors.New("units: empty amount")
	ErrInvalidAmount = errors.New("units: invalid amount")
	ErrNegative      = errors.New("units: negative amounts not allowed")
)

// ParseUnits converts a decimal string such as "1.5" to its smallest-unit
// integer for the given number of decimals. Fractional digits beyond
// decimals are truncated.
//
// Rules:
//   - empty input is rejected
//   - negative amounts are rejected
//   - more than one decimal point is rejected
//   - only ASCII digits are accepted on either side of the point
func ParseUnits(s string, decimals int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyAmount
	}
	if strings.HasPrefix(s, "-") {
		return nil, ErrNegative
	}
	s = strings.TrimPrefix(s, "+")

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("%w: %q has more than one decimal point", ErrInvalidAmount, s)
	}
	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !allDigits(whole) || !allDigits(frac) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	if len(frac) > decimals {
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", decimals-len(frac))

	combined := strings.TrimLeft(whole+frac, "0")
	if combined == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return v, nil
}

// ParseEther converts an ETH amount to wei.
func ParseEther(s string) (*big.Int, error) {
	return ParseUnits(s, EtherDecimals)
}

// FormatUnits renders v as whole.fraction with the fraction zero-padded to
// decimals digits. With zero decimals the integer is returned as-is.
func FormatUnits(v *big.Int, decimals int) string {
	if v == nil {
		v = new(big.Int)
	}
	if decimals <= 0 {
		return v.String()
	}

	neg := v.Sign() < 0
	abs := new(big.Int).Abs(v)
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, rem := new(big.Int).QuoRem(abs, divisor, new(big.Int))

	fracStr := rem.String()
	fracStr = strings.Repeat("0", decimals-len(fracStr)) + fracStr
	out := whole.String() + "." + fracStr
	if neg {
		out = "-" + out
	}
	return out
}

// FormatEther renders wei as ETH with six decimal places, the precision used
// in balance and fee output.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0.000000"
	}
	f := new(big.Float).SetInt(wei)
	f.Quo(f, new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(EtherDecimals), nil)))
	return f.Text('f', 6)
}

// BasisPoints returns v * (10000 - bps) / 10000, the minimum acceptable
// output for a slippage tolerance of bps.
func BasisPoints(v *big.Int, bps int64) *big.Int {
	if v == nil || bps >= 10_000 {
		return big.NewInt(0)
	}
	if bps < 0 {
		bps = 0
	}
	out := new(big.Int).Mul(v, big.NewInt(10_000-bps))
	return out.Quo(out, big.NewInt(10_000))
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
