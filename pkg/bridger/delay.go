package bridger

import (
	"context"
	"math/rand"
	"time"
)

// DelayPolicy decides how long the loop rests. round starts at 1.
type DelayPolicy interface {
	BetweenWallets(round int) time.Duration
	BetweenRounds(round int) time.Duration
}

// RandomDelay draws uniformly from [Min, Max] for each pause.
type RandomDelay struct {
	WalletMin, WalletMax time.Duration
	RoundMin, RoundMax   time.Duration
	rnd                  *rand.Rand
}

func NewRandomDelay(walletMin, walletMax, roundMin, roundMax time.Duration) *RandomDelay {
	return &RandomDelay{
		WalletMin: walletMin,
		WalletMax: walletMax,
		RoundMin:  roundMin,
		RoundMax:  roundMax,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func DefaultDelay() *RandomDelay {
	return NewRandomDelay(5*time.Second, 8*time.Second, 60*time.Second, 90*time.Second)
}

func (d *RandomDelay) BetweenWallets(int) time.Duration {
	return d.between(d.WalletMin, d.WalletMax)
}

func (d *RandomDelay) BetweenRounds(int) time.Duration {
	return d.between(d.RoundMin, d.RoundMax)
}

func (d *RandomDelay) between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	if d.rnd == nil {
		d.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return min + time.Duration(d.rnd.Int63n(int64(max-min)+1))
}

type NoDelay struct{}

func (NoDelay) BetweenWallets(int) time.Duration { return 0 }
func (NoDelay) BetweenRounds(int) time.Duration  { return 0 }

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
