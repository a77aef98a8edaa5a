package chain

import (
	"fmt"
	"math/big"
	"regexp"

	"github.com/shopspring/decimal"
)

const etherDecimals = 18

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsAddress reports whether s is a 0x-prefixed, 40 hex digit address.
func IsAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// ParseEther converts a decimal ether amount such as "0.04" to wei.
func ParseEther(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse ether amount %q: %w", s, err)
	}
	return EtherToWei(d)
}

// EtherToWei converts an ether amount to wei. Negative amounts and amounts with
// more than 18 decimals are rejected.
func EtherToWei(d decimal.Decimal) (*big.Int, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("ether amount %s is negative", d)
	}
	wei := d.Shift(etherDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("ether amount %s has more than %d decimals", d, etherDecimals)
	}
	return wei.BigInt(), nil
}

// FormatEther renders wei as a decimal ether string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -etherDecimals).String()
}
