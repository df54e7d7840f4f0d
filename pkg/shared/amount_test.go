package shared

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestEtherWeiConversion(t *testing.T) {
	wei := EtherToWei(decimal.RequireFromString("0.301"))
	assert.Equal(t, "301000000000000000", wei.String())
	assert.True(t, WeiToEther(wei).Equal(decimal.RequireFromString("0.301")))
	assert.True(t, WeiToEther(nil).IsZero())
	assert.Equal(t, big.NewInt(7_000_000_000), GweiToWei(decimal.NewFromInt(7)))
}

func TestValidateAmount(t *testing.T) {
	min := decimal.RequireFromString("0.300")
	max := decimal.RequireFromString("0.302")
	tests := []struct {
		amount string
		ok     bool
	}{
		{"0.300", true},
		{"0.301", true},
		{"0.302", true},
		{"0.3015", true},
		{"0.299999999999999999", false},
		{"0.302000000000000001", false},
		{"0.31", false},
		{"0", false},
		{"-0.301", false},
	}
	for _, tt := range tests {
		err := ValidateAmount(decimal.RequireFromString(tt.amount), min, max)
		if tt.ok {
			assert.NoError(t, err, tt.amount)
		} else {
			assert.ErrorIs(t, err, ErrValidation, tt.amount)
		}
	}
}
