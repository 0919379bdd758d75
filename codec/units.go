package codec

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"gococo/types"
)

// ParseUnits converts a decimal string like "100.00" to raw token units
func ParseUnits(amount string, decimals int) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: bad amount %q: %s", types.ErrConfiguration, amount, err.Error())
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount %q must be positive", types.ErrConfiguration, amount)
	}
	raw := d.Shift(int32(decimals))
	if !raw.Equal(raw.Truncate(0)) {
		return nil, fmt.Errorf("%w: amount %q has more than %d decimals", types.ErrConfiguration, amount, decimals)
	}
	return raw.BigInt(), nil
}

// FormatUnits renders raw units with exactly decimals fraction digits
func FormatUnits(raw *big.Int, decimals int) string {
	if raw == nil {
		raw = new(big.Int)
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).StringFixed(int32(decimals))
}
