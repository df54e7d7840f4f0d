package shared

import (
	"errors"
	"fmt"
)

var (
	ErrConnectivity        = errors.New("rpc unreachable")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrCooldownActive      = errors.New("cooldown active")
	ErrValidation          = errors.New("validation failed")
	ErrGasEstimation       = errors.New("gas estimation failed")
	ErrSigning             = errors.New("signing failed")
	ErrBroadcast           = errors.New("broadcast failed")
	ErrContractRevert      = errors.New("contract reverted")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
)

// RevertError is returned when the bridge contract rejects a transaction.
type RevertError struct {
	Reason string
	Err    error
}

func (e *RevertError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrContractRevert, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrContractRevert, e.Reason)
}

func (e *RevertError) Is(target error) bool {
	return target == ErrContractRevert
}

func (e *RevertError) Unwrap() error {
	return e.Err
}

// Kind names the error class for logs and metric tags.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrConnectivity):
		return "connectivity"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrCooldownActive):
		return "cooldown"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrContractRevert):
		return "revert"
	case errors.Is(err, ErrGasEstimation):
		return "gas_estimation"
	case errors.Is(err, ErrSigning):
		return "signing"
	case errors.Is(err, ErrBroadcast):
		return "broadcast"
	case errors.Is(err, ErrConfirmationTimeout):
		return "timeout"
	default:
		return "unknown"
	}
}
