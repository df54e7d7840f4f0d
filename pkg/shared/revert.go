package shared

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	unknownRevertReason = "unknown"
	// Error(string) selector
	revertSelector = "08c379a0"
)

func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "execution reverted")
}

// ParseRevertReason decodes the Error(string) reason carried by a JSON-RPC
// error. Falls back to scanning the message and finally to "unknown".
func ParseRevertReason(err error) string {
	if err == nil {
		return unknownRevertReason
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(s); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason
				}
			}
		}
	}

	msg := err.Error()
	idx := strings.Index(msg, revertSelector)
	if idx < 0 {
		const prefix = "execution reverted: "
		if i := strings.Index(msg, prefix); i >= 0 && len(msg) > i+len(prefix) {
			return msg[i+len(prefix):]
		}
		return unknownRevertReason
	}
	encoded := msg[idx:]
	end := 0
	for end < len(encoded) && isHexChar(encoded[end]) {
		end++
	}
	data, decErr := hex.DecodeString(encoded[:end-end%2])
	if decErr != nil {
		return unknownRevertReason
	}
	if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
		return reason
	}
	return unknownRevertReason
}

// NewRevertError wraps err as a contract revert with its decoded reason.
func NewRevertError(err error) *RevertError {
	return &RevertError{Reason: ParseRevertReason(err), Err: err}
}

func isHexChar(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
