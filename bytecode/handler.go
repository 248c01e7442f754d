package bytecode

// ExceptionHandler describes one protected region as laid out by the
// compiler. The VM does not need it to execute; it exists for disassembly
// and validation.
type ExceptionHandler struct {
	TryStart int     // IP of the PUSH_EXCEPT instruction
	TryEnd   int     // IP of the POP_EXCEPT that ends the try body
	Catch    Address // catch entry, if any
	Finally  Address // finally entry, if any
	End      int     // IP just past the END_FINALLY (or the catch body)
}
