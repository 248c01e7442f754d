// Package bytecode provides immutable representations of compiled code.
//
// This package defines the output of compilation: pure data structures that
// represent compiled bytecode and function templates. These types are created
// once during compilation and shared safely across VM instances.
//
// # Key Types
//
//   - [Code]: An immutable compiled code block (module or function body)
//   - [Function]: An immutable function template with a code reference
//   - [Address]: An optional absolute instruction offset
//   - [ExceptionHandler]: Describes a try/catch/finally region (value type)
//
// # Region Addresses
//
// PUSH_EXCEPT, BREAK and CONTINUE carry absolute instruction offsets split
// over two operands. The compiler writes [NoAddressSentinel] for an absent
// catch or finally. [DecodeAddress] is the only place that sentinel is
// interpreted; everything downstream works with [Address].
//
// # Serialization
//
// [Marshal] and [Unmarshal] use a canonical CBOR encoding. [Validate] checks
// decoded code against the compiler contract before it is run.
package bytecode
