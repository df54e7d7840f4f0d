package shared

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
	"github.com/ssgreg/repeat"
)

// EthClient is the subset of *ethclient.Client used by the bridge.
type EthClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

var _ EthClient = (*ethclient.Client)(nil)

// Dialer opens a client for an RPC endpoint. A returned client must be
// reachable.
type Dialer func(ctx context.Context, rpcURL string) (EthClient, error)

// DialEthClient dials rpcURL and checks that the endpoint answers.
func DialEthClient(ctx context.Context, rpcURL string) (EthClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}
	if _, err := client.ChainID(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	return client, nil
}

// Connect dials rpcURL up to attempts times, sleeping backoff in between.
func Connect(ctx context.Context, dial Dialer, rpcURL string, attempts int, backoff time.Duration) (EthClient, error) {
	if attempts < 1 {
		attempts = 1
	}
	var (
		client  EthClient
		lastErr error
		tries   int
	)
	err := repeat.Repeat(
		repeat.Fn(func() error {
			tries++
			c, err := dial(ctx, rpcURL)
			if err != nil {
				lastErr = err
				log.Debug().Err(err).Msgf("Connection attempt %d/%d to %s failed", tries, attempts, rpcURL)
				if ctx.Err() != nil || tries >= attempts {
					return repeat.HintStop(err)
				}
				return repeat.HintTemporary(err)
			}
			client = c
			return nil
		}),
		repeat.StopOnSuccess(),
		repeat.LimitMaxTries(attempts),
		repeat.WithDelay(repeat.FixedBackoff(backoff).Set(), repeat.SetContext(ctx)),
	)
	if client != nil {
		return client, nil
	}
	if lastErr == nil {
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no connection attempt made")
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrConnectivity, rpcURL, tries, lastErr)
}
