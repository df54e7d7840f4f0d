package shared

import (
	"encoding/hex"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressFromKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), AddressFromKey(key))
}

func TestLoadKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	want := crypto.PubkeyToAddress(key.PublicKey)

	inline, err := LoadKey("0x"+hex.EncodeToString(crypto.FromECDSA(key)), "")
	require.NoError(t, err)
	assert.Equal(t, want, AddressFromKey(inline))

	path := filepath.Join(t.TempDir(), "key")
	require.NoError(t, crypto.SaveECDSA(path, key))
	fromFile, err := LoadKey("", path)
	require.NoError(t, err)
	assert.Equal(t, want, AddressFromKey(fromFile))

	_, err = LoadKey("", "")
	assert.Error(t, err)
	_, err = LoadKey("not-hex", "")
	assert.Error(t, err)
	_, err = LoadKey("", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/bridger")
	p, err := ExpandHome("~/keys/a")
	require.NoError(t, err)
	assert.Equal(t, "/home/bridger/keys/a", p)

	p, err = ExpandHome("/abs/a")
	require.NoError(t, err)
	assert.Equal(t, "/abs/a", p)
}

func TestKeySignerSignsForChain(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := NewKeySigner(key)
	to := common.HexToAddress("0x01")
	chainID := big.NewInt(84532)

	tx := types.NewTx(&types.DynamicFeeTx{ChainID: chainID, Nonce: 1, Gas: 21000, To: &to,
		GasTipCap: big.NewInt(1), GasFeeCap: big.NewInt(2), Value: big.NewInt(0)})
	signed, err := signer.SignTx(tx, chainID)
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), from)

	_, err = signer.SignTx(tx, nil)
	assert.ErrorIs(t, err, ErrSigning)
}
