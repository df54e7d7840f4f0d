package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dataError struct {
	msg  string
	data interface{}
}

func (e *dataError) Error() string          { return e.msg }
func (e *dataError) ErrorData() interface{} { return e.data }

func encodeRevert(t *testing.T, reason string) []byte {
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	require.NoError(t, err)
	return append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...)
}

func TestParseRevertReasonFromErrorData(t *testing.T) {
	err := &dataError{
		msg:  "execution reverted",
		data: hexutil.Encode(encodeRevert(t, "bridge paused")),
	}
	assert.Equal(t, "bridge paused", ParseRevertReason(fmt.Errorf("estimate: %w", err)))
}

func TestParseRevertReasonFromMessage(t *testing.T) {
	encoded := hexutil.Encode(encodeRevert(t, "amount too low"))
	err := errors.New("execution reverted, data: " + encoded)
	assert.Equal(t, "amount too low", ParseRevertReason(err))

	assert.Equal(t, "nope", ParseRevertReason(errors.New("execution reverted: nope")))
}

func TestParseRevertReasonUnknown(t *testing.T) {
	assert.Equal(t, "unknown", ParseRevertReason(nil))
	assert.Equal(t, "unknown", ParseRevertReason(errors.New("execution reverted")))
	assert.Equal(t, "unknown", ParseRevertReason(errors.New("execution reverted 0x08c379a0zz")))
	assert.Equal(t, "unknown", ParseRevertReason(&dataError{msg: "execution reverted", data: 42}))
}

func TestRevertErrorMatchesKind(t *testing.T) {
	err := fmt.Errorf("submit: %w", NewRevertError(errors.New("execution reverted: closed")))
	assert.ErrorIs(t, err, ErrContractRevert)
	var revertErr *RevertError
	require.ErrorAs(t, err, &revertErr)
	assert.Equal(t, "closed", revertErr.Reason)
	assert.Equal(t, "revert", Kind(err))
	assert.True(t, IsRevert(errors.New("execution reverted: closed")))
	assert.False(t, IsRevert(errors.New("nonce too low")))
}

func TestKind(t *testing.T) {
	assert.Equal(t, "none", Kind(nil))
	assert.Equal(t, "connectivity", Kind(fmt.Errorf("x: %w", ErrConnectivity)))
	assert.Equal(t, "timeout", Kind(ErrConfirmationTimeout))
	assert.Equal(t, "gas_estimation", Kind(ErrGasEstimation))
	assert.Equal(t, "unknown", Kind(errors.New("boom")))
}
