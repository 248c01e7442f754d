package compiler

import "github.com/risor-io/unwind/op"

// The functions below build Blocks so that programs can be written as nested
// expressions, for example:
//
//	compiler.Try(
//		compiler.Throw(compiler.Const("boom")),
//		&compiler.Catch{Var: "e", Body: compiler.Output(compiler.Local("e"))},
//		compiler.Output(compiler.Const("finally")),
//	)

// Const pushes value.
func Const(value any) Block {
	return func(c *Compiler) error { return c.LoadConst(value) }
}

// Local pushes the value of a local variable.
func Local(name string) Block {
	return func(c *Compiler) error { return c.Load(name) }
}

// Assign stores the value produced by value into a local.
func Assign(name string, value Block) Block {
	return func(c *Compiler) error {
		if err := c.Seq(value); err != nil {
			return err
		}
		return c.Store(name)
	}
}

// Output emits the value produced by value.
func Output(value Block) Block {
	return func(c *Compiler) error {
		if err := c.Seq(value); err != nil {
			return err
		}
		c.Emit()
		return nil
	}
}

// Discard evaluates value and drops the result.
func Discard(value Block) Block {
	return func(c *Compiler) error {
		if err := c.Seq(value); err != nil {
			return err
		}
		c.Pop()
		return nil
	}
}

// Seq runs blocks in order.
func Seq(blocks ...Block) Block {
	return func(c *Compiler) error { return c.Seq(blocks...) }
}

// BinaryOp applies opType to the values produced by left and right.
func BinaryOp(opType op.BinaryOpType, left, right Block) Block {
	return func(c *Compiler) error {
		if err := c.Seq(left, right); err != nil {
			return err
		}
		c.Binary(opType)
		return nil
	}
}

// CompareOp compares the values produced by left and right.
func CompareOp(opType op.CompareOpType, left, right Block) Block {
	return func(c *Compiler) error {
		if err := c.Seq(left, right); err != nil {
			return err
		}
		c.Compare(opType)
		return nil
	}
}

// Increment adds one to a local.
func Increment(name string) Block {
	return Assign(name, BinaryOp(op.Add, Local(name), Const(1)))
}

func Scope(body ...Block) Block {
	return func(c *Compiler) error { return c.Scope(Seq(body...)) }
}

func If(cond, then, els Block) Block {
	return func(c *Compiler) error { return c.If(cond, then, els) }
}

func While(cond Block, body ...Block) Block {
	return func(c *Compiler) error { return c.While(cond, Seq(body...)) }
}

func Break() Block {
	return func(c *Compiler) error { return c.Break() }
}

func Continue() Block {
	return func(c *Compiler) error { return c.Continue() }
}

func Return(value Block) Block {
	return func(c *Compiler) error { return c.Return(value) }
}

func Throw(value Block) Block {
	return func(c *Compiler) error { return c.Throw(value) }
}

// Try builds a protected region; see Compiler.Try.
func Try(body Block, catch *Catch, finally Block) Block {
	return func(c *Compiler) error { return c.Try(body, catch, finally) }
}

// Func pushes a function value.
func Func(name string, params []string, body ...Block) Block {
	return func(c *Compiler) error { return c.Function(name, params, Seq(body...)) }
}

// Def defines a function and stores it in a local of the same name.
func Def(name string, params []string, body ...Block) Block {
	return Assign(name, Func(name, params, body...))
}

// Call pushes the result of calling fn with args.
func Call(fn Block, args ...Block) Block {
	return func(c *Compiler) error { return c.Call(fn, args...) }
}
