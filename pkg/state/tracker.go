package state

import (
	"errors"
	"fmt"
	"time"

	"t3rn-bridge/pkg/network"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultCooldown is how long a wallet rests after a successful send.
const DefaultCooldown = 600 * time.Second

var ErrUnknownAddress = errors.New("address is not tracked")

type TxRecord struct {
	Hash      common.Hash
	Timestamp time.Time
}

type WalletState struct {
	Address   common.Address
	Current   network.Network
	Alternate network.Network
	LastTx    time.Time
	History   []TxRecord
}

// Tracker holds per-wallet network selection and send history. It is only
// touched by the bridge loop and is not safe for concurrent use.
type Tracker struct {
	states map[common.Address]*WalletState
	now    func() time.Time
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

func NewTracker(addresses []common.Address, initial network.Network, opts ...Option) *Tracker {
	t := &Tracker{
		states: make(map[common.Address]*WalletState, len(addresses)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	for _, addr := range addresses {
		t.states[addr] = &WalletState{
			Address:   addr,
			Current:   initial,
			Alternate: initial.Other(),
		}
	}
	return t
}

func (t *Tracker) get(addr common.Address) (*WalletState, error) {
	s, ok := t.states[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAddress, addr.Hex())
	}
	return s, nil
}

func (t *Tracker) Network(addr common.Address) (network.Network, error) {
	s, err := t.get(addr)
	if err != nil {
		return 0, err
	}
	return s.Current, nil
}

func (t *Tracker) Alternate(addr common.Address) (network.Network, error) {
	s, err := t.get(addr)
	if err != nil {
		return 0, err
	}
	return s.Alternate, nil
}

// SwitchNetwork swaps current and alternate and returns the new current.
func (t *Tracker) SwitchNetwork(addr common.Address) (network.Network, error) {
	s, err := t.get(addr)
	if err != nil {
		return 0, err
	}
	s.Current, s.Alternate = s.Alternate, s.Current
	return s.Current, nil
}

// RecordTransaction appends hash to the wallet history and starts its cooldown.
func (t *Tracker) RecordTransaction(addr common.Address, hash common.Hash) error {
	s, err := t.get(addr)
	if err != nil {
		return err
	}
	now := t.now()
	s.LastTx = now
	s.History = append(s.History, TxRecord{Hash: hash, Timestamp: now})
	return nil
}

// CheckCooldown reports whether the last successful send happened less than
// cooldown ago. Unknown or never-used wallets are never cooling down.
func (t *Tracker) CheckCooldown(addr common.Address, cooldown time.Duration) bool {
	return t.CooldownRemaining(addr, cooldown) > 0
}

func (t *Tracker) CooldownRemaining(addr common.Address, cooldown time.Duration) time.Duration {
	s, err := t.get(addr)
	if err != nil || s.LastTx.IsZero() {
		return 0
	}
	elapsed := t.now().Sub(s.LastTx)
	if elapsed >= cooldown {
		return 0
	}
	return cooldown - elapsed
}

func (t *Tracker) History(addr common.Address) []TxRecord {
	s, err := t.get(addr)
	if err != nil {
		return nil
	}
	out := make([]TxRecord, len(s.History))
	copy(out, s.History)
	return out
}

// Snapshot returns a copy of the wallet's state.
func (t *Tracker) Snapshot(addr common.Address) (WalletState, error) {
	s, err := t.get(addr)
	if err != nil {
		return WalletState{}, err
	}
	cp := *s
	cp.History = t.History(addr)
	return cp, nil
}
