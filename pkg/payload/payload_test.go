package payload

import (
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	selector = "56591d59"
	placeholder = "000000000000000000000000fb1fa2c2bd7a0d2ba1bcb1e6c8d0d6f3c2a9e4a1"
	sender   = "0xAbC0000000000000000000000000000000001234"
)

// testTemplate builds calldata with three words; the address sits in word 1.
func testTemplate() string {
	word0 := strings.Repeat("1", 64)
	word2 := strings.Repeat("2", 64)
	return "0x" + selector + word0 + placeholder + word2
}

func TestWordOffset(t *testing.T) {
	assert.Equal(t, 10, WordOffset(0))
	assert.Equal(t, 138, WordOffset(2))
	assert.True(t, IsWordAligned(138))
	assert.False(t, IsWordAligned(298))
	assert.True(t, IsWordAligned(162-padHexLen))
	assert.False(t, IsWordAligned(4))
}

func TestPatchEmbedsAddress(t *testing.T) {
	tmpl := testTemplate()
	offset := WordOffset(1)

	patched, err := Patch(tmpl, sender, offset)
	require.NoError(t, err)
	assert.Len(t, patched, len(tmpl))
	assert.Equal(t, tmpl[:offset], patched[:offset])
	assert.Equal(t, tmpl[offset+SlotHexLen:], patched[offset+SlotHexLen:])

	slot, err := Extract(patched, offset)
	require.NoError(t, err)
	assert.Equal(t, "000000000000000000000000abc0000000000000000000000000000000001234", slot)

	addr, err := ExtractAddress(patched, offset)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(sender), addr)

	assert.Equal(t, placeholder, testTemplate()[offset:offset+SlotHexLen], "template must not be mutated")
}

func TestPatchIdempotent(t *testing.T) {
	tmpl := testTemplate()
	offset := WordOffset(1)

	first, err := Patch(tmpl, sender, offset)
	require.NoError(t, err)
	second, err := Patch(tmpl, sender, offset)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	again, err := Patch(first, sender, offset)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestPatchRejectsBadAddress(t *testing.T) {
	tests := []string{
		"",
		"0x",
		"0x1234",
		"0xAbC000000000000000000000000000000000123",   // 39
		"0xAbC00000000000000000000000000000000012345", // 41
		"0x000000000000000000000000abc0000000000000000000000000000000001234",
		"0xzz00000000000000000000000000000000001234",
	}
	for _, addr := range tests {
		_, err := Patch(testTemplate(), addr, WordOffset(1))
		var fe *FormatError
		assert.True(t, errors.As(err, &fe), "address %q: %v", addr, err)
	}

	_, err := Patch(testTemplate(), "AbC0000000000000000000000000000000001234", WordOffset(1))
	assert.NoError(t, err, "prefix is optional")
}

func TestPatchRejectsBadOffset(t *testing.T) {
	tmpl := testTemplate()
	for _, offset := range []int{-1, len(tmpl) - 63, len(tmpl), WordOffset(0), WordOffset(1) + 20} {
		_, err := Patch(tmpl, sender, offset)
		var fe *FormatError
		assert.True(t, errors.As(err, &fe), "offset %d: %v", offset, err)
	}
}

func TestTemplateAndDecode(t *testing.T) {
	tmpl := Template{Data: testTemplate(), Offset: WordOffset(1)}
	patched, err := tmpl.Patch(sender)
	require.NoError(t, err)

	data, err := Decode(patched)
	require.NoError(t, err)
	assert.Len(t, data, 4+3*32)
	assert.Equal(t, common.HexToAddress(sender).Bytes(), data[4+32+12:4+64])

	_, err = Decode("0x123")
	assert.Error(t, err)
}
