package shared

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// SimulatedClient is an in-memory EthClient used by tests in place of a
// JSON-RPC endpoint. Fields may be set before use to shape its answers.
type SimulatedClient struct {
	mu sync.Mutex

	ChainIDValue *big.Int
	Balances     map[common.Address]*big.Int
	Nonces       map[common.Address]uint64
	// PendingNonces, when set for an address, overrides Nonces for pending queries.
	PendingNonces map[common.Address]uint64
	GasEstimate   uint64
	GasPrice      *big.Int
	BaseFee       *big.Int
	BlockNumber   *big.Int

	BalanceErr  error
	EstimateErr error
	HeaderErr   error
	SendErrs    []error
	// ReceiptDelay is the number of receipt polls answered with NotFound.
	ReceiptDelay int
	// NoReceipts makes every receipt poll return NotFound.
	NoReceipts    bool
	ReceiptStatus uint64
	GasUsed       uint64

	Sent          []*types.Transaction
	EstimateCalls int
	NonceCalls    int
	ReceiptPolls  int
	Closed        bool
}

var _ EthClient = (*SimulatedClient)(nil)

func NewSimulatedClient(chainID int64) *SimulatedClient {
	return &SimulatedClient{
		ChainIDValue:  big.NewInt(chainID),
		Balances:      make(map[common.Address]*big.Int),
		Nonces:        make(map[common.Address]uint64),
		PendingNonces: make(map[common.Address]uint64),
		GasEstimate:   100000,
		GasPrice:      big.NewInt(2_000_000_000),
		BaseFee:       big.NewInt(1_000_000_000),
		BlockNumber:   big.NewInt(100),
		ReceiptStatus: types.ReceiptStatusSuccessful,
		GasUsed:       90000,
	}
}

func (c *SimulatedClient) SetBalance(addr common.Address, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Balances[addr] = new(big.Int).Set(wei)
}

func (c *SimulatedClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}

func (c *SimulatedClient) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.ChainIDValue), nil
}

func (c *SimulatedClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.BalanceErr != nil {
		return nil, c.BalanceErr
	}
	if b, ok := c.Balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (c *SimulatedClient) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Nonces[account], nil
}

func (c *SimulatedClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.NonceCalls++
	if n, ok := c.PendingNonces[account]; ok {
		return n, nil
	}
	return c.Nonces[account], nil
}

func (c *SimulatedClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EstimateCalls++
	if c.EstimateErr != nil {
		return 0, c.EstimateErr
	}
	return c.GasEstimate, nil
}

func (c *SimulatedClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.GasPrice), nil
}

func (c *SimulatedClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.HeaderErr != nil {
		return nil, c.HeaderErr
	}
	header := &types.Header{Number: new(big.Int).Set(c.BlockNumber)}
	if c.BaseFee != nil {
		header.BaseFee = new(big.Int).Set(c.BaseFee)
	}
	return header, nil
}

// SendTransaction records tx. Each queued SendErrs entry fails one call.
// Successful sends advance the pending nonce and, for cancellation style
// self-transfers, the mined nonce as well.
func (c *SimulatedClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.SendErrs) > 0 {
		err := c.SendErrs[0]
		c.SendErrs = c.SendErrs[1:]
		if err != nil {
			return err
		}
	}
	signer := types.LatestSignerForChainID(tx.ChainId())
	from, err := types.Sender(signer, tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	c.Sent = append(c.Sent, tx)
	if tx.Nonce()+1 > c.pendingNonce(from) {
		c.PendingNonces[from] = tx.Nonce() + 1
	}
	return nil
}

func (c *SimulatedClient) pendingNonce(addr common.Address) uint64 {
	if n, ok := c.PendingNonces[addr]; ok {
		return n
	}
	return c.Nonces[addr]
}

// MineAll marks every sent transaction as included.
func (c *SimulatedClient) MineAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, n := range c.PendingNonces {
		c.Nonces[addr] = n
	}
}

func (c *SimulatedClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ReceiptPolls++
	if c.NoReceipts || c.ReceiptPolls <= c.ReceiptDelay {
		return nil, ethereum.NotFound
	}
	for _, tx := range c.Sent {
		if tx.Hash() == txHash {
			return &types.Receipt{
				Status:      c.ReceiptStatus,
				TxHash:      txHash,
				GasUsed:     c.GasUsed,
				BlockNumber: new(big.Int).Set(c.BlockNumber),
			}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (c *SimulatedClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
}

var ErrSimulatedDown = errors.New("simulated endpoint unreachable")

// SimulatedDialer hands out SimulatedClients by RPC URL. Endpoints listed in
// Failures fail that many dials before succeeding; negative means always.
type SimulatedDialer struct {
	mu       sync.Mutex
	Clients  map[string]*SimulatedClient
	Failures map[string]int
	Dials    map[string]int
}

func NewSimulatedDialer() *SimulatedDialer {
	return &SimulatedDialer{
		Clients:  make(map[string]*SimulatedClient),
		Failures: make(map[string]int),
		Dials:    make(map[string]int),
	}
}

func (d *SimulatedDialer) Dial(ctx context.Context, rpcURL string) (EthClient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Dials[rpcURL]++
	if n, ok := d.Failures[rpcURL]; ok && (n < 0 || d.Dials[rpcURL] <= n) {
		return nil, fmt.Errorf("%w: %s", ErrSimulatedDown, rpcURL)
	}
	c, ok := d.Clients[rpcURL]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSimulatedDown, rpcURL)
	}
	return c, nil
}

func (d *SimulatedDialer) DialCount(rpcURL string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Dials[rpcURL]
}
