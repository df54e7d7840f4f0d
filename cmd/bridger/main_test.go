package main

import (
	"bytes"
	"errors"
	"testing"

	"t3rn-bridge/pkg/bridger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRenderBalances(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	var buf bytes.Buffer
	renderBalances(&buf, []bridger.BalanceReport{
		{Label: "main", Address: addr, Chain: "Base", Balance: decimal.RequireFromString("0.05")},
		{Label: "main", Address: addr, Chain: "OP Sepolia", Err: errors.New("unreachable")},
	})

	out := buf.String()
	assert.Contains(t, out, "WALLET")
	assert.Contains(t, out, addr.Hex())
	assert.Contains(t, out, "0.05000")
	assert.Contains(t, out, "error: unreachable")
}

func TestShutdownWaitOutlastsLoopClose(t *testing.T) {
	assert.Greater(t, shutdownWait, bridger.CloseTimeout)
}
