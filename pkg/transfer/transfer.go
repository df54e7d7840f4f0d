package transfer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"t3rn-bridge/pkg/network"
	"t3rn-bridge/pkg/shared"
	"t3rn-bridge/pkg/state"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type Options struct {
	// Amount of ether sent with every bridge transaction.
	Amount    decimal.Decimal
	AmountMin decimal.Decimal
	AmountMax decimal.Decimal

	GasLimitMultiplier float64
	GasLimitPad        uint64
	PriorityFee        *big.Int

	Cooldown            time.Duration
	ConfirmTimeout      time.Duration
	ReceiptPollInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		Amount:              decimal.RequireFromString("0.301"),
		AmountMin:           decimal.RequireFromString("0.300"),
		AmountMax:           decimal.RequireFromString("0.302"),
		GasLimitMultiplier:  1.5,
		PriorityFee:         big.NewInt(7 * params.GWei),
		Cooldown:            state.DefaultCooldown,
		ConfirmTimeout:      120 * time.Second,
		ReceiptPollInterval: 2 * time.Second,
	}
}

func (o Options) Validate() error {
	if o.AmountMin.GreaterThan(o.AmountMax) {
		return fmt.Errorf("amount min %s is above max %s", o.AmountMin, o.AmountMax)
	}
	if !o.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	if o.GasLimitMultiplier < 1 {
		return fmt.Errorf("gas limit multiplier must be at least 1")
	}
	if o.PriorityFee == nil || o.PriorityFee.Sign() < 0 {
		return fmt.Errorf("priority fee must be set and not negative")
	}
	if o.ConfirmTimeout <= 0 {
		return fmt.Errorf("confirm timeout must be positive")
	}
	if o.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative")
	}
	return nil
}

// Outcome is what remains of a confirmed bridge transaction.
type Outcome struct {
	TxHash      common.Hash
	Amount      decimal.Decimal
	GasUsed     uint64
	BlockNumber *big.Int
	Balance     decimal.Decimal
}

// Submitter builds, signs, sends and confirms bridge transactions.
type Submitter struct {
	opts    Options
	tracker *state.Tracker
}

func NewSubmitter(opts Options, tracker *state.Tracker) (*Submitter, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid submitter options: %w", err)
	}
	if tracker == nil {
		return nil, errors.New("tracker is required")
	}
	return &Submitter{opts: opts, tracker: tracker}, nil
}

func (s *Submitter) Options() Options {
	return s.opts
}

// Submit sends one bridge transaction carrying data to the descriptor's
// contract and waits for it to be mined. No outcome is returned on error.
func (s *Submitter) Submit(
	ctx context.Context,
	client shared.EthClient,
	signer shared.Signer,
	data []byte,
	desc network.Descriptor,
) (*Outcome, error) {
	from := signer.Address()

	if remaining := s.tracker.CooldownRemaining(from, s.opts.Cooldown); remaining > 0 {
		log.Warn().Str("address", from.Hex()).Msgf("Cooling down, retry in %d seconds", int(remaining.Seconds()))
		return nil, fmt.Errorf("%w: %s left", shared.ErrCooldownActive, remaining.Round(time.Second))
	}

	if err := shared.ValidateAmount(s.opts.Amount, s.opts.AmountMin, s.opts.AmountMax); err != nil {
		return nil, err
	}
	value := shared.EtherToWei(s.opts.Amount)

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get pending nonce: %v", shared.ErrBroadcast, err)
	}

	to := desc.ContractAddress
	estimate, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		if shared.IsRevert(err) {
			return nil, shared.NewRevertError(err)
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrGasEstimation, err)
	}
	gasLimit := shared.GasLimit(estimate, s.opts.GasLimitMultiplier, s.opts.GasLimitPad)

	fees, err := shared.DynamicFees(ctx, client, s.opts.PriorityFee)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrGasEstimation, err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   desc.ChainID,
		Nonce:     nonce,
		GasTipCap: fees.GasTipCap,
		GasFeeCap: fees.GasFeeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signedTx, err := signer.SignTx(tx, desc.ChainID)
	if err != nil {
		if errors.Is(err, shared.ErrSigning) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrSigning, err)
	}

	if err := client.SendTransaction(ctx, signedTx); err != nil {
		if shared.IsRevert(err) {
			return nil, shared.NewRevertError(err)
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrBroadcast, err)
	}
	log.Debug().Msgf("Bridge tx sent, hash: %s, network: %s, nonce: %d, gas limit: %d, max fee: %s wei",
		signedTx.Hash().Hex(), desc.Network, nonce, gasLimit, fees.GasFeeCap)

	receipt, err := shared.WaitForReceipt(ctx, client, signedTx.Hash(), s.opts.ConfirmTimeout, s.opts.ReceiptPollInterval)
	if err != nil {
		if errors.Is(err, shared.ErrConfirmationTimeout) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrBroadcast, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, &shared.RevertError{Reason: "unknown", Err: fmt.Errorf("tx %s failed in block %s", receipt.TxHash.Hex(), receipt.BlockNumber)}
	}

	if err := s.tracker.RecordTransaction(from, signedTx.Hash()); err != nil {
		log.Warn().Err(err).Msg("failed to record transaction")
	}

	outcome := &Outcome{
		TxHash:      signedTx.Hash(),
		Amount:      s.opts.Amount,
		GasUsed:     receipt.GasUsed,
		BlockNumber: receipt.BlockNumber,
	}
	balance, err := client.BalanceAt(ctx, from, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to query balance")
	} else {
		outcome.Balance = shared.WeiToEther(balance)
	}

	log.Info().
		Str("address", from.Hex()).
		Uint64("gas_used", outcome.GasUsed).
		Str("block", outcome.BlockNumber.String()).
		Str("balance_eth", outcome.Balance.StringFixed(5)).
		Str("explorer", desc.TxURL(outcome.TxHash)).
		Msg("Bridge transaction confirmed")

	return outcome, nil
}
