// Package payload patches precomputed bridge calldata so that it carries
// the sending wallet's address.
//
// Templates are 0x-prefixed hex strings. Offsets count hex characters of
// the stored string, prefix included. The address slot is a full ABI word:
// 24 zero characters followed by the 40-character address.
package payload

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	SlotHexLen    = 64
	AddressHexLen = 40
	padHexLen     = SlotHexLen - AddressHexLen
	// selector and prefix precede the first argument word
	headerHexLen = 2 + 8
)

var zeroPad = strings.Repeat("0", padHexLen)

type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "payload format error: " + e.Reason
}

func formatErrorf(format string, args ...any) error {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

// Template is a read-only calldata template for one bridge direction.
type Template struct {
	Data   string
	Offset int
}

func (t Template) Patch(address string) (string, error) {
	return Patch(t.Data, address, t.Offset)
}

// WordOffset returns the offset of the i-th argument word of a 0x-prefixed
// calldata string.
func WordOffset(i int) int {
	return headerHexLen + i*SlotHexLen
}

func IsWordAligned(offset int) bool {
	return offset >= headerHexLen && (offset-headerHexLen)%SlotHexLen == 0
}

// Patch returns a copy of template with the slot at [offset, offset+64)
// replaced by the zero-padded address.
func Patch(template, address string, offset int) (string, error) {
	body, err := addressBody(address)
	if err != nil {
		return "", err
	}
	if err := checkSlot(template, offset); err != nil {
		return "", err
	}
	return template[:offset] + zeroPad + body + template[offset+SlotHexLen:], nil
}

// Extract returns the 64-character slot at offset.
func Extract(payload string, offset int) (string, error) {
	if offset < 0 || offset+SlotHexLen > len(payload) {
		return "", formatErrorf("slot [%d, %d) outside payload of length %d", offset, offset+SlotHexLen, len(payload))
	}
	return payload[offset : offset+SlotHexLen], nil
}

func ExtractAddress(payload string, offset int) (common.Address, error) {
	slot, err := Extract(payload, offset)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(slot[padHexLen:]), nil
}

// Decode turns a patched payload into transaction calldata.
func Decode(payload string) ([]byte, error) {
	if !strings.HasPrefix(payload, "0x") {
		payload = "0x" + payload
	}
	data, err := hexutil.Decode(payload)
	if err != nil {
		return nil, formatErrorf("invalid hex payload: %v", err)
	}
	return data, nil
}

func addressBody(address string) (string, error) {
	body := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X"))
	if len(body) != AddressHexLen {
		return "", formatErrorf("address %q has %d hex characters, want %d", address, len(body), AddressHexLen)
	}
	if !isHex(body) {
		return "", formatErrorf("address %q is not hex", address)
	}
	return body, nil
}

// checkSlot rejects offsets that do not land on a padded address word of
// the template, which catches templates paired with the wrong offset.
func checkSlot(template string, offset int) error {
	slot, err := Extract(template, offset)
	if err != nil {
		return err
	}
	if slot[:padHexLen] != zeroPad {
		return formatErrorf("slot at offset %d does not hold a padded address", offset)
	}
	if !isHex(slot) {
		return formatErrorf("slot at offset %d is not hex", offset)
	}
	return nil
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case '0' <= c && c <= '9', 'a' <= c && c <= 'f', 'A' <= c && c <= 'F':
		default:
			return false
		}
	}
	return true
}
