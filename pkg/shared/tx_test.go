package shared

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGasLimit(t *testing.T) {
	tests := []struct {
		estimate   uint64
		multiplier float64
		pad        uint64
		want       uint64
	}{
		{estimate: 100000, multiplier: 1.5, want: 150000},
		{estimate: 21001, multiplier: 1.5, want: 31502},
		{estimate: 21000, multiplier: 1.5, want: 31500},
		{estimate: 3, multiplier: 1.1, want: 4},
		{estimate: 21001, multiplier: 1.5, pad: 10, want: 31512},
		{estimate: 100000, multiplier: 1, pad: 50000, want: 150000},
		{estimate: 100000, multiplier: 0, want: 100000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GasLimit(tt.estimate, tt.multiplier, tt.pad), "%+v", tt)
	}
}

func TestDynamicFees(t *testing.T) {
	client := NewSimulatedClient(1)
	client.BaseFee = big.NewInt(1_500_000_000)

	fees, err := DynamicFees(context.Background(), client, big.NewInt(7_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(7_000_000_000), fees.GasTipCap)
	assert.Equal(t, big.NewInt(8_500_000_000), fees.GasFeeCap)

	client.BaseFee = nil
	_, err = DynamicFees(context.Background(), client, big.NewInt(1))
	assert.Error(t, err)

	client.HeaderErr = errors.New("header down")
	_, err = DynamicFees(context.Background(), client, big.NewInt(1))
	assert.Error(t, err)
}

func TestWaitForReceiptTimesOut(t *testing.T) {
	client := NewSimulatedClient(1)
	client.NoReceipts = true

	_, err := WaitForReceipt(context.Background(), client, common.HexToHash("0x01"), 30*time.Millisecond, time.Millisecond)
	assert.ErrorIs(t, err, ErrConfirmationTimeout)
	assert.Greater(t, client.ReceiptPolls, 1)
}

func TestWaitForReceiptCanceled(t *testing.T) {
	client := NewSimulatedClient(1)
	client.NoReceipts = true
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WaitForReceipt(ctx, client, common.HexToHash("0x01"), time.Minute, time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCancelPendingTxes(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := NewKeySigner(key)
	chainID := big.NewInt(11155420)

	client := NewSimulatedClient(chainID.Int64())
	client.Nonces[signer.Address()] = 3
	client.PendingNonces[signer.Address()] = 5
	client.SendErrs = []error{errors.New("replacement transaction underpriced")}

	exist, err := PendingTransactionsExist(context.Background(), client, signer.Address())
	require.NoError(t, err)
	assert.True(t, exist)

	done := make(chan error, 1)
	go func() {
		done <- CancelPendingTxes(context.Background(), client, signer, chainID, time.Second, time.Millisecond)
	}()
	require.Eventually(t, func() bool { return client.SentCount() == 2 }, time.Second, time.Millisecond)
	client.MineAll()
	require.NoError(t, <-done)

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, uint64(3), client.Sent[0].Nonce())
	assert.Equal(t, uint64(4), client.Sent[1].Nonce())
	assert.Equal(t, signer.Address(), *client.Sent[0].To())
	assert.Equal(t, 0, client.Sent[0].Value().Sign())
	// first attempt for nonce 3 was rejected and retried with a 10% bump
	assert.Equal(t, big.NewInt(2_200_000_001), client.Sent[0].GasFeeCap())
}

func TestCancelPendingTxesNothingPending(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := NewKeySigner(key)

	client := NewSimulatedClient(1)
	require.NoError(t, CancelPendingTxes(context.Background(), client, signer, big.NewInt(1), time.Second, time.Millisecond))
	assert.Equal(t, 0, client.SentCount())
}
