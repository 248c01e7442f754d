package vm

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/risor-io/unwind/op"
)

var errDivisionByZero = errors.New("division by zero")

func binaryOp(opType op.BinaryOpType, a, b any) (any, error) {
	switch a := a.(type) {
	case int64:
		switch b := b.(type) {
		case int64:
			return intOp(opType, a, b)
		case float64:
			return floatOp(opType, float64(a), b)
		}
	case float64:
		switch b := b.(type) {
		case int64:
			return floatOp(opType, a, float64(b))
		case float64:
			return floatOp(opType, a, b)
		}
	case string:
		if b, ok := b.(string); ok && opType == op.Add {
			return a + b, nil
		}
	}
	return nil, unsupported(opType.String(), a, b)
}

func intOp(opType op.BinaryOpType, a, b int64) (any, error) {
	switch opType {
	case op.Add:
		return a + b, nil
	case op.Subtract:
		return a - b, nil
	case op.Multiply:
		return a * b, nil
	case op.Divide:
		if b == 0 {
			return nil, errDivisionByZero
		}
		return a / b, nil
	case op.Modulo:
		if b == 0 {
			return nil, errDivisionByZero
		}
		return a % b, nil
	}
	return nil, unsupported(opType.String(), a, b)
}

func floatOp(opType op.BinaryOpType, a, b float64) (any, error) {
	switch opType {
	case op.Add:
		return a + b, nil
	case op.Subtract:
		return a - b, nil
	case op.Multiply:
		return a * b, nil
	case op.Divide:
		if b == 0 {
			return nil, errDivisionByZero
		}
		return a / b, nil
	case op.Modulo:
		if b == 0 {
			return nil, errDivisionByZero
		}
		return math.Mod(a, b), nil
	}
	return nil, unsupported(opType.String(), a, b)
}

func compare(opType op.CompareOpType, a, b any) (any, error) {
	switch opType {
	case op.Equal, op.NotEqual:
		eq, ok := equal(a, b)
		if !ok {
			return nil, unsupported(opType.String(), a, b)
		}
		return eq == (opType == op.Equal), nil
	}
	cmp, ok := order(a, b)
	if !ok {
		return nil, unsupported(opType.String(), a, b)
	}
	switch opType {
	case op.LessThan:
		return cmp < 0, nil
	case op.LessThanOrEqual:
		return cmp <= 0, nil
	case op.GreaterThan:
		return cmp > 0, nil
	case op.GreaterThanOrEqual:
		return cmp >= 0, nil
	}
	return nil, unsupported(opType.String(), a, b)
}

// equal compares numbers by value across int and float. Other values use
// Go equality, which is refused for values such as maps and slices.
func equal(a, b any) (bool, bool) {
	if !isComparable(a) || !isComparable(b) {
		return false, false
	}
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return x == y, true
		}
		return false, true
	}
	return a == b, true
}

func isComparable(v any) bool {
	return v == nil || reflect.ValueOf(v).Comparable()
}

func order(a, b any) (int, bool) {
	if x, ok := toFloat(a); ok {
		y, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	x, ok := a.(string)
	if !ok {
		return 0, false
	}
	y, ok := b.(string)
	if !ok {
		return 0, false
	}
	switch {
	case x < y:
		return -1, true
	case x > y:
		return 1, true
	}
	return 0, true
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func unsupported(operator string, a, b any) error {
	return fmt.Errorf("unsupported operand types for %s: %s and %s", operator, typeName(a), typeName(b))
}
