package wallet

import (
	"fmt"
	"math/big"
	"strings"
)

// EtherDecimals is the number of decimals of the native token and of the
// vault shares.
const EtherDecimals = 18

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(EtherDecimals), nil)

// ParseEther converts a decimal string such as "1.25" to wei without going
// through floating point. At most 18 fractional digits are accepted.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if !allDigits(whole) || !allDigits(frac) {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if len(frac) > EtherDecimals {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, EtherDecimals)
	}

	digits := whole + frac + strings.Repeat("0", EtherDecimals-len(frac))
	wei, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return wei, nil
}

// FormatEther renders wei as a decimal string with trailing zeros removed,
// e.g. 1500000000000000000 -> "1.5". A nil value renders as "0".
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	neg := wei.Sign() < 0
	abs := new(big.Int).Abs(wei)

	q, r := new(big.Int).QuoRem(abs, weiPerEther, new(big.Int))
	out := q.String()
	if r.Sign() != 0 {
		frac := fmt.Sprintf("%0*s", EtherDecimals, r.String())
		out += "." + strings.TrimRight(frac, "0")
	}
	if neg {
		out = "-" + out
	}
	return out
}

// FormatEtherPrecision is FormatEther truncated to at most places decimals.
func FormatEtherPrecision(wei *big.Int, places int) string {
	s := FormatEther(wei)
	whole, frac, ok := strings.Cut(s, ".")
	if !ok || places <= 0 {
		return whole
	}
	if len(frac) > places {
		frac = strings.TrimRight(frac[:places], "0")
	}
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
