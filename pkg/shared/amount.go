package shared

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/params"
	"github.com/shopspring/decimal"
)

const etherDecimals = 18

// EtherToWei converts an ether amount to wei, truncating below 1 wei.
func EtherToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(etherDecimals).Truncate(0).BigInt()
}

func WeiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -etherDecimals)
}

func GweiToWei(gwei decimal.Decimal) *big.Int {
	return gwei.Mul(decimal.NewFromInt(params.GWei)).Truncate(0).BigInt()
}

// ValidateAmount accepts amounts in the closed interval [min, max].
func ValidateAmount(amount, min, max decimal.Decimal) error {
	if amount.LessThan(min) || amount.GreaterThan(max) {
		return fmt.Errorf("%w: amount %s ETH outside [%s, %s]", ErrValidation, amount, min, max)
	}
	return nil
}
