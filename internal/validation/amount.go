package validation

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/yourorg/predictpool-client/internal/wallet"
)

// amountPattern is the set of strings accepted in the stake and withdraw
// inputs: digits with at most one decimal point.
var amountPattern = regexp.MustCompile(`^\d*\.?\d*$`)

var (
	ErrAmountFormat   = errors.New("amount must be a positive decimal number")
	ErrAmountZero     = errors.New("amount must be greater than 0")
	ErrAmountTooLarge = errors.New("amount exceeds available balance")
)

// AcceptsInput reports whether s may be typed into an amount field. The empty
// string is accepted so the field can be cleared.
func AcceptsInput(s string) bool {
	return amountPattern.MatchString(s)
}

// Amount parses a user-entered amount into wei and checks it against limit,
// the wallet balance for stakes or the staked balance for withdrawals. A nil
// limit means the balance is unknown and the amount is rejected.
func Amount(input string, limit *big.Int) (*big.Int, error) {
	s := strings.TrimSpace(input)
	if s == "" || s == "." || !amountPattern.MatchString(s) {
		return nil, fmt.Errorf("%w: %q", ErrAmountFormat, input)
	}

	wei, err := wallet.ParseEther(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAmountFormat, err)
	}
	if wei.Sign() <= 0 {
		return nil, ErrAmountZero
	}
	if limit == nil || wei.Cmp(limit) > 0 {
		return nil, ErrAmountTooLarge
	}
	return wei, nil
}
