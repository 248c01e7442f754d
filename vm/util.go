package vm

import (
	"fmt"

	"github.com/risor-io/unwind/bytecode"
)

func checkCallArgs(fn *bytecode.Function, argc int) error {
	paramsCount := fn.ParameterCount()
	if argc == paramsCount {
		return nil
	}
	msg := "args error: function"
	if name := fn.Name(); name != "" {
		msg = fmt.Sprintf("%s %q", msg, name)
	}
	switch paramsCount {
	case 0:
		msg = fmt.Sprintf("%s takes 0 arguments (%d given)", msg, argc)
	case 1:
		msg = fmt.Sprintf("%s takes 1 argument (%d given)", msg, argc)
	default:
		msg = fmt.Sprintf("%s takes %d arguments (%d given)", msg, paramsCount, argc)
	}
	return fmt.Errorf("%s", msg)
}

func isTruthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != ""
	default:
		return true
	}
}

func typeName(value any) string {
	switch value.(type) {
	case nil:
		return "nil"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "string"
	case *bytecode.Function:
		return "function"
	case error:
		return "error"
	default:
		return fmt.Sprintf("%T", value)
	}
}
