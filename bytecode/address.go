package bytecode

import (
	"fmt"

	"github.com/risor-io/unwind/op"
)

// NoAddressSentinel is the reserved 32-bit value the compiler writes into an
// address operand to mean "not present". It never escapes package bytecode:
// every address read from an instruction stream goes through DecodeAddress.
const NoAddressSentinel uint32 = 0xFFFFFFFF

// MaxAddress is the largest instruction offset an Address can hold.
const MaxAddress = int(NoAddressSentinel - 1)

// Address is an optional absolute instruction offset within one Code.
// The zero value is "not present".
type Address struct {
	offset uint32
	valid  bool
}

// NoAddress is the absent address.
var NoAddress = Address{}

// AddressOf returns a present address for the given instruction offset.
// Negative or oversized offsets yield NoAddress.
func AddressOf(offset int) Address {
	if offset < 0 || offset > MaxAddress {
		return NoAddress
	}
	return Address{offset: uint32(offset), valid: true}
}

// DecodeAddress converts the (high, low) operand pair of an instruction into
// an Address, mapping the sentinel to NoAddress.
func DecodeAddress(hi, lo op.Code) Address {
	raw := uint32(hi)<<16 | uint32(lo)
	if raw == NoAddressSentinel {
		return NoAddress
	}
	return Address{offset: raw, valid: true}
}

// Encode returns the (high, low) operand pair for this address.
func (a Address) Encode() (hi, lo op.Code) {
	raw := NoAddressSentinel
	if a.valid {
		raw = a.offset
	}
	return op.Code(raw >> 16), op.Code(raw & 0xFFFF)
}

// Get returns the offset and whether the address is present.
func (a Address) Get() (int, bool) {
	return int(a.offset), a.valid
}

// IsPresent returns true if the address refers to an instruction.
func (a Address) IsPresent() bool {
	return a.valid
}

// Offset returns the instruction offset, or -1 if the address is absent.
func (a Address) Offset() int {
	if !a.valid {
		return -1
	}
	return int(a.offset)
}

func (a Address) String() string {
	if !a.valid {
		return "none"
	}
	return fmt.Sprintf("@%d", a.offset)
}
