package bridger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"t3rn-bridge/pkg/metrics"
	"t3rn-bridge/pkg/network"
	"t3rn-bridge/pkg/payload"
	"t3rn-bridge/pkg/shared"
	"t3rn-bridge/pkg/state"
	"t3rn-bridge/pkg/transfer"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type Wallet struct {
	Label  string
	Signer shared.Signer
}

// Submitter sends one bridge transaction. *transfer.Submitter implements it.
type Submitter interface {
	Submit(
		ctx context.Context,
		client shared.EthClient,
		signer shared.Signer,
		data []byte,
		desc network.Descriptor,
	) (*transfer.Outcome, error)
}

var _ Submitter = (*transfer.Submitter)(nil)

type Options struct {
	Wallets   []Wallet
	Networks  network.Descriptors
	Templates map[network.Direction]payload.Template
	Tracker   *state.Tracker
	Submitter Submitter
	Dial      shared.Dialer

	// MinBalance is the balance in ether below which a network is not used.
	MinBalance      decimal.Decimal
	ConnectAttempts int
	ConnectBackoff  time.Duration
	Delay           DelayPolicy
	Metrics         metrics.Reporter

	// Optional chain whose balance is logged after each success.
	SideChainName   string
	SideChainRPCURL string

	// MaxRounds stops the loop after that many rounds. Zero runs forever.
	MaxRounds int
}

func DefaultOptions() Options {
	return Options{
		Networks:        network.DefaultDescriptors(),
		Dial:            shared.DialEthClient,
		MinBalance:      decimal.RequireFromString("0.31"),
		ConnectAttempts: 3,
		ConnectBackoff:  2 * time.Second,
		Delay:           DefaultDelay(),
		Metrics:         metrics.Nop{},
		SideChainName:   "b2n",
	}
}

func (o *Options) validate() error {
	if len(o.Wallets) == 0 {
		return errors.New("at least one wallet is required")
	}
	for i, w := range o.Wallets {
		if w.Signer == nil {
			return fmt.Errorf("wallet %d has no signer", i)
		}
	}
	if o.Tracker == nil {
		return errors.New("tracker is required")
	}
	if o.Submitter == nil {
		return errors.New("submitter is required")
	}
	if o.Dial == nil {
		return errors.New("dialer is required")
	}
	for _, n := range []network.Network{network.Base, network.OPSepolia} {
		desc := o.Networks.Get(n)
		if desc.RPCURL == "" {
			return fmt.Errorf("%s rpc url is required", n)
		}
		if desc.ChainID == nil || desc.ChainID.Sign() <= 0 {
			return fmt.Errorf("%s chain id is required", n)
		}
		if desc.ContractAddress == (common.Address{}) {
			return fmt.Errorf("%s bridge contract address is required", n)
		}
		if _, ok := o.Templates[network.DirectionFrom(n)]; !ok {
			return fmt.Errorf("bridge data for %q is required", network.DirectionFrom(n))
		}
	}
	if o.MinBalance.IsNegative() {
		return errors.New("min balance must not be negative")
	}
	if o.ConnectAttempts < 1 {
		return errors.New("connect attempts must be at least 1")
	}
	if o.Delay == nil {
		return errors.New("delay policy is required")
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Nop{}
	}
	return nil
}

// Bridger drives the bridge loop over all wallets, one at a time.
type Bridger struct {
	opts          *Options
	successfulTxs atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func New(opts *Options) (*Bridger, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid bridger options: %w", err)
	}
	return &Bridger{opts: opts}, nil
}

func (b *Bridger) SuccessfulTxs() int {
	return int(b.successfulTxs.Load())
}

// Start runs the loop in its own goroutine. The returned channel is closed
// once the loop has exited; Err reports why.
func (b *Bridger) Start(ctx context.Context) <-chan struct{} {
	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})
	go func() {
		defer close(b.done)
		b.err = b.Run(ctx)
	}()
	return b.done
}

func (b *Bridger) Err() error {
	return b.err
}

// CloseTimeout bounds how long TryCloseAll waits for the loop to exit.
const CloseTimeout = 10 * time.Second

// TryCloseAll stops the loop started by Start and waits for it to exit.
func (b *Bridger) TryCloseAll() error {
	if b.cancel == nil {
		return nil
	}
	log.Debug().Msg("stopping bridge loop")
	b.cancel()
	select {
	case <-b.done:
		log.Info().Msg("bridge loop stopped")
		return nil
	case <-time.After(CloseTimeout):
		msg := fmt.Sprintf("failed to stop bridge loop in %s", CloseTimeout)
		log.Error().Msg(msg)
		return errors.New(msg)
	}
}

// Run processes rounds until ctx is done, MaxRounds is reached or the loop
// panics. Per-wallet failures are logged and never end the loop.
func (b *Bridger) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bridge loop panicked: %v", r)
		}
	}()

	for round := 1; b.opts.MaxRounds == 0 || round <= b.opts.MaxRounds; round++ {
		log.Info().Int("round", round).Msg("Starting round")
		for i, w := range b.opts.Wallets {
			if err := b.processWallet(ctx, i, w); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				b.reportFailure(ctx, w, err)
			}
			if err := sleep(ctx, b.opts.Delay.BetweenWallets(round)); err != nil {
				return err
			}
		}
		if b.opts.MaxRounds != 0 && round == b.opts.MaxRounds {
			break
		}
		wait := b.opts.Delay.BetweenRounds(round)
		log.Info().Msgf("Round %d complete, waiting %.1f seconds", round, wait.Seconds())
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
	log.Info().Int("successful_txs", b.SuccessfulTxs()).Msg("Bridge loop finished")
	return nil
}

func (b *Bridger) processWallet(ctx context.Context, idx int, w Wallet) error {
	addr := w.Signer.Address()
	log.Info().Msgf("Processing address %d/%d (%s...)", idx+1, len(b.opts.Wallets), addr.Hex()[:8])

	client, current, err := b.connect(ctx, addr)
	if err != nil {
		return err
	}
	defer func() { client.Close() }()

	minBalance := b.opts.MinBalance
	balance := b.balanceOf(ctx, client, addr, current)
	if balance.LessThan(minBalance) {
		alternate := current.Other()
		log.Warn().Msgf("Balance %s ETH on %s is below %s ETH, checking %s",
			balance.StringFixed(3), current, minBalance, alternate)

		altClient, err := shared.Connect(ctx, b.opts.Dial, b.opts.Networks.Get(alternate).RPCURL,
			b.opts.ConnectAttempts, b.opts.ConnectBackoff)
		if err != nil {
			return fmt.Errorf("%w: %s ETH on %s, %s unreachable: %v",
				shared.ErrInsufficientBalance, balance.StringFixed(3), current, alternate, err)
		}
		altBalance := b.balanceOf(ctx, altClient, addr, alternate)
		if altBalance.LessThan(minBalance) {
			altClient.Close()
			return fmt.Errorf("%w: %s ETH on %s and %s ETH on %s",
				shared.ErrInsufficientBalance, balance.StringFixed(3), current, altBalance.StringFixed(3), alternate)
		}
		if current, err = b.opts.Tracker.SwitchNetwork(addr); err != nil {
			altClient.Close()
			return err
		}
		log.Info().Msgf("Switched %s to %s with %s ETH", addr.Hex(), current, altBalance.StringFixed(3))
		client.Close()
		client = altClient
	}

	direction := network.DirectionFrom(current)
	tmpl, ok := b.opts.Templates[direction]
	if !ok {
		return fmt.Errorf("%w: missing bridge data for %s", shared.ErrValidation, direction)
	}
	patched, err := tmpl.Patch(addr.Hex())
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}
	data, err := payload.Decode(patched)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}

	desc := b.opts.Networks.Get(current)
	outcome, err := b.opts.Submitter.Submit(ctx, client, w.Signer, data, desc)
	if err != nil {
		return err
	}

	total := b.successfulTxs.Add(1)
	log.Info().Msgf("Successful transaction: total %d | %s | %s | amount %s ETH",
		total, w.Label, direction, outcome.Amount.StringFixed(5))
	b.opts.Metrics.Gauge(ctx, metrics.BridgeSuccess, 1, []string{
		"network:" + current.String(),
		"address:" + addr.Hex(),
	})
	b.logSideBalance(ctx, addr)
	return nil
}

// connect reaches the wallet's current network, failing over to the
// alternate one when the current stays unreachable.
func (b *Bridger) connect(ctx context.Context, addr common.Address) (shared.EthClient, network.Network, error) {
	current, err := b.opts.Tracker.Network(addr)
	if err != nil {
		return nil, current, err
	}
	client, err := shared.Connect(ctx, b.opts.Dial, b.opts.Networks.Get(current).RPCURL,
		b.opts.ConnectAttempts, b.opts.ConnectBackoff)
	if err == nil {
		return client, current, nil
	}
	if ctx.Err() != nil {
		return nil, current, ctx.Err()
	}

	log.Error().Err(err).Msgf("Cannot connect to %s, switching to %s", current, current.Other())
	if current, err = b.opts.Tracker.SwitchNetwork(addr); err != nil {
		return nil, current, err
	}
	client, err = shared.Connect(ctx, b.opts.Dial, b.opts.Networks.Get(current).RPCURL,
		b.opts.ConnectAttempts, b.opts.ConnectBackoff)
	if err != nil {
		return nil, current, err
	}
	return client, current, nil
}

// balanceOf treats a failed query as an empty balance.
func (b *Bridger) balanceOf(ctx context.Context, client shared.EthClient, addr common.Address, n network.Network) decimal.Decimal {
	wei, err := client.BalanceAt(ctx, addr, nil)
	if err != nil {
		log.Error().Err(err).Msgf("Balance query on %s failed", n)
		return decimal.Zero
	}
	return shared.WeiToEther(wei)
}

func (b *Bridger) logSideBalance(ctx context.Context, addr common.Address) {
	if b.opts.SideChainRPCURL == "" {
		return
	}
	balance, err := b.sideBalance(ctx, addr)
	if err != nil {
		log.Error().Err(err).Msgf("%s balance query failed", b.opts.SideChainName)
		return
	}
	log.Info().Msgf("%s balance: %s %s", b.opts.SideChainName, balance.StringFixed(4), b.opts.SideChainName)
}

func (b *Bridger) sideBalance(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	client, err := b.opts.Dial(ctx, b.opts.SideChainRPCURL)
	if err != nil {
		return decimal.Zero, err
	}
	defer client.Close()
	wei, err := client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return decimal.Zero, err
	}
	return shared.WeiToEther(wei), nil
}

func (b *Bridger) reportFailure(ctx context.Context, w Wallet, err error) {
	kind := shared.Kind(err)
	var formatErr *payload.FormatError
	if errors.As(err, &formatErr) {
		kind = "validation"
	}
	level := zerolog.ErrorLevel
	switch kind {
	case "cooldown", "insufficient_balance":
		level = zerolog.WarnLevel
	}
	log.WithLevel(level).Err(err).Str("label", w.Label).Str("kind", kind).Msgf("Skipping %s this round", w.Signer.Address().Hex())
	b.opts.Metrics.Gauge(ctx, metrics.BridgeFailure, 1, []string{
		"address:" + w.Signer.Address().Hex(),
		"error:" + kind,
	})
}

type BalanceReport struct {
	Label   string
	Address common.Address
	Chain   string
	Balance decimal.Decimal
	Err     error
}

// Balances queries every wallet on both networks and the side chain.
func (b *Bridger) Balances(ctx context.Context) []BalanceReport {
	var reports []BalanceReport
	clients := make(map[network.Network]shared.EthClient)
	dialErrs := make(map[network.Network]error)
	for _, n := range []network.Network{network.Base, network.OPSepolia} {
		client, err := shared.Connect(ctx, b.opts.Dial, b.opts.Networks.Get(n).RPCURL,
			b.opts.ConnectAttempts, b.opts.ConnectBackoff)
		if err != nil {
			dialErrs[n] = err
			continue
		}
		defer client.Close()
		clients[n] = client
	}

	for _, w := range b.opts.Wallets {
		addr := w.Signer.Address()
		for _, n := range []network.Network{network.Base, network.OPSepolia} {
			report := BalanceReport{Label: w.Label, Address: addr, Chain: n.String()}
			if client, ok := clients[n]; ok {
				wei, err := client.BalanceAt(ctx, addr, nil)
				report.Balance, report.Err = shared.WeiToEther(wei), err
			} else {
				report.Err = dialErrs[n]
			}
			reports = append(reports, report)
		}
		if b.opts.SideChainRPCURL != "" {
			balance, err := b.sideBalance(ctx, addr)
			reports = append(reports, BalanceReport{
				Label: w.Label, Address: addr, Chain: b.opts.SideChainName, Balance: balance, Err: err,
			})
		}
	}
	return reports
}
