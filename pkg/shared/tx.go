package shared

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// FeeParams are the EIP-1559 fee caps for one transaction.
type FeeParams struct {
	BaseFee   *big.Int
	GasTipCap *big.Int
	GasFeeCap *big.Int
}

// DynamicFees computes maxFeePerGas = latest base fee + a fixed tip.
func DynamicFees(ctx context.Context, client EthClient, priorityFee *big.Int) (*FeeParams, error) {
	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}
	if header.BaseFee == nil {
		return nil, errors.New("latest block has no base fee")
	}
	tip := new(big.Int).Set(priorityFee)
	return &FeeParams{
		BaseFee:   new(big.Int).Set(header.BaseFee),
		GasTipCap: tip,
		GasFeeCap: new(big.Int).Add(header.BaseFee, tip),
	}, nil
}

// GasLimit returns ceil(estimate * multiplier) + pad.
func GasLimit(estimate uint64, multiplier float64, pad uint64) uint64 {
	if multiplier < 1 {
		multiplier = 1
	}
	scaled := decimal.NewFromBigInt(new(big.Int).SetUint64(estimate), 0).
		Mul(decimal.NewFromFloat(multiplier)).
		Ceil()
	return scaled.BigInt().Uint64() + pad
}

// WaitForReceipt polls for the receipt of txHash until it shows up or
// timeout passes.
func WaitForReceipt(
	ctx context.Context,
	client EthClient,
	txHash common.Hash,
	timeout time.Duration,
	pollInterval time.Duration,
) (*types.Receipt, error) {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := client.TransactionReceipt(ctx, txHash)
		if receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil {
			return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: tx %s not included after %s", ErrConfirmationTimeout, txHash.Hex(), timeout)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// CancelPendingTxes replaces every pending transaction of the signer with a
// zero value self-transfer and waits until none remain.
func CancelPendingTxes(
	ctx context.Context,
	client EthClient,
	signer Signer,
	chainID *big.Int,
	timeout time.Duration,
	pollInterval time.Duration,
) error {
	if err := cancelAllPendingTransactions(ctx, client, signer, chainID); err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for {
		exist, err := PendingTransactionsExist(ctx, client, signer.Address())
		if err != nil {
			return fmt.Errorf("failed to check pending transactions: %w", err)
		}
		if !exist {
			log.Info().Str("address", signer.Address().Hex()).Msg("All pending transactions for signing account have been cancelled")
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout: failed to cancel all pending transactions")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func cancelAllPendingTransactions(
	ctx context.Context,
	client EthClient,
	signer Signer,
	chainID *big.Int,
) error {
	fromAddress := signer.Address()
	currentNonce, err := client.PendingNonceAt(ctx, fromAddress)
	if err != nil {
		return fmt.Errorf("failed to get current pending nonce: %w", err)
	}
	log.Debug().Msgf("Current pending nonce: %d", currentNonce)

	latestNonce, err := client.NonceAt(ctx, fromAddress, nil)
	if err != nil {
		return fmt.Errorf("failed to get latest nonce: %w", err)
	}
	log.Debug().Msgf("Latest nonce: %d", latestNonce)

	if currentNonce <= latestNonce {
		log.Info().Msg("No pending transactions to cancel")
		return nil
	}

	suggestedGasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get suggested gas price: %w", err)
	}
	log.Debug().Msgf("Suggested gas price: %s wei", suggestedGasPrice.String())

	for nonce := latestNonce; nonce < currentNonce; nonce++ {
		gasPrice := new(big.Int).Set(suggestedGasPrice)
		const maxRetries = 5
		for retry := 0; retry < maxRetries; retry++ {
			if retry > 0 {
				increase := new(big.Int).Div(gasPrice, big.NewInt(10))
				gasPrice = gasPrice.Add(gasPrice, increase)
				gasPrice = gasPrice.Add(gasPrice, big.NewInt(1))
				log.Debug().Msgf("Increased gas price for retry %d: %s wei", retry, gasPrice.String())
			}

			tx := types.NewTx(&types.DynamicFeeTx{
				ChainID:   chainID,
				Nonce:     nonce,
				GasTipCap: gasPrice,
				GasFeeCap: gasPrice,
				Gas:       21000,
				To:        &fromAddress,
				Value:     big.NewInt(0),
			})
			signedTx, err := signer.SignTx(tx, chainID)
			if err != nil {
				return fmt.Errorf("failed to sign cancellation transaction for nonce %d: %w", nonce, err)
			}

			err = client.SendTransaction(ctx, signedTx)
			if err != nil {
				if isRetryableReplacement(err) {
					log.Warn().Err(err).Msgf("Retry %d: cancellation for nonce %d not accepted, increasing gas price", retry+1, nonce)
					continue
				}
				return fmt.Errorf("failed to send cancellation transaction for nonce %d: %w", nonce, err)
			}
			log.Info().Msgf("Sent cancel transaction for nonce %d with tx hash: %s, gas price: %s wei", nonce, signedTx.Hash().Hex(), gasPrice.String())
			break
		}
	}
	return nil
}

func isRetryableReplacement(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "replacement transaction underpriced") || strings.Contains(msg, "already known")
}

// PendingTransactionsExist reports whether the pending nonce is ahead of the
// latest mined nonce.
func PendingTransactionsExist(ctx context.Context, client EthClient, address common.Address) (bool, error) {
	currentNonce, err := client.PendingNonceAt(ctx, address)
	if err != nil {
		return false, fmt.Errorf("failed to get current pending nonce: %w", err)
	}

	latestNonce, err := client.NonceAt(ctx, address, nil)
	if err != nil {
		return false, fmt.Errorf("failed to get latest nonce: %w", err)
	}

	return currentNonce > latestNonce, nil
}
