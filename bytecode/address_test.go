package bytecode

import (
	"testing"

	"github.com/risor-io/unwind/op"
	"github.com/stretchr/testify/require"
)

func TestAddressSentinel(t *testing.T) {
	addr := DecodeAddress(0xFFFF, 0xFFFF)
	require.False(t, addr.IsPresent())
	require.Equal(t, NoAddress, addr)
	require.Equal(t, -1, addr.Offset())
	require.Equal(t, "none", addr.String())

	hi, lo := NoAddress.Encode()
	require.Equal(t, op.Code(0xFFFF), hi)
	require.Equal(t, op.Code(0xFFFF), lo)
}

func TestAddressEncodeDecode(t *testing.T) {
	for _, offset := range []int{0, 1, 200, 0xFFFF, 0x10000, 0x12345, MaxAddress} {
		addr := AddressOf(offset)
		require.True(t, addr.IsPresent())
		hi, lo := addr.Encode()
		decoded := DecodeAddress(hi, lo)
		got, ok := decoded.Get()
		require.True(t, ok)
		require.Equal(t, offset, got)
		require.Equal(t, addr, decoded)
	}
}

func TestAddressOfOutOfRange(t *testing.T) {
	require.False(t, AddressOf(-1).IsPresent())
	require.False(t, AddressOf(MaxAddress+1).IsPresent())
	require.Equal(t, "@300", AddressOf(300).String())
}

func TestZeroAddressIsAbsent(t *testing.T) {
	var addr Address
	require.False(t, addr.IsPresent())
	// Offset zero is a real instruction and must stay distinguishable.
	require.True(t, AddressOf(0).IsPresent())
}
