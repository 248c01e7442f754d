package bytecode

// clone returns a shallow copy of src. A nil slice stays nil so that
// accessors can distinguish "never set" from "empty".
func clone[T any](src []T) []T {
	if src == nil {
		return nil
	}
	return append(make([]T, 0, len(src)), src...)
}
