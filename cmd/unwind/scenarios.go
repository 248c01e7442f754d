package main

import (
	"sort"

	"github.com/risor-io/unwind/bytecode"
	c "github.com/risor-io/unwind/compiler"
	"github.com/risor-io/unwind/op"
)

// scenario is a small program exercising one path through the region
// controller, along with what it should emit.
type scenario struct {
	name        string
	description string
	body        func() c.Block
	emits       []any
	uncaught    any
}

func (s scenario) compile() (*bytecode.Code, error) {
	return c.Compile(s.body(), &c.Config{Filename: s.name + ".u"})
}

var scenarios = []scenario{
	{
		name:        "nested-finally",
		description: "a throw runs the inner finally, then the outer catch and finally",
		body: func() c.Block {
			return c.Try(
				c.Try(c.Throw(c.Const("x")), nil, c.Output(c.Const("B finally"))),
				&c.Catch{Var: "e", Body: c.Output(c.Local("e"))},
				c.Output(c.Const("A finally")),
			)
		},
		emits: []any{"B finally", "x", "A finally"},
	},
	{
		name:        "return-through-finally",
		description: "a return is deferred until the finally body completes",
		body: func() c.Block {
			return c.Seq(
				c.Def("f", nil, c.Try(c.Return(c.Const(1)), nil, c.Output(c.Const("cleanup")))),
				c.Output(c.Call(c.Local("f"))),
			)
		},
		emits: []any{"cleanup", int64(1)},
	},
	{
		name:        "finally-overrides",
		description: "a return inside finally replaces the deferred return",
		body: func() c.Block {
			return c.Seq(
				c.Def("f", nil, c.Try(c.Return(c.Const("try")), nil, c.Return(c.Const("finally")))),
				c.Output(c.Call(c.Local("f"))),
			)
		},
		emits: []any{"finally"},
	},
	{
		name:        "break-through-finally",
		description: "a break leaves the loop after the finally body runs",
		body: func() c.Block {
			return c.Seq(
				c.While(nil, c.Try(c.Break(), nil, c.Output(c.Const("finally")))),
				c.Output(c.Const("after")),
			)
		},
		emits: []any{"finally", "after"},
	},
	{
		name:        "continue-through-finally",
		description: "each continue runs the finally body before the next iteration",
		body: func() c.Block {
			return c.Seq(
				c.Assign("i", c.Const(0)),
				c.While(c.CompareOp(op.LessThan, c.Local("i"), c.Const(2)),
					c.Increment("i"),
					c.Try(c.Continue(), nil, c.Output(c.Local("i"))),
				),
			)
		},
		emits: []any{int64(1), int64(2)},
	},
	{
		name:        "rethrow-from-catch",
		description: "a throw from a catch body runs its finally and reaches the outer catch",
		body: func() c.Block {
			return c.Try(
				c.Try(
					c.Throw(c.Const("a")),
					&c.Catch{Var: "e", Body: c.Throw(c.Const("b"))},
					c.Output(c.Const("inner finally")),
				),
				&c.Catch{Var: "e", Body: c.Output(c.Local("e"))},
				nil,
			)
		},
		emits: []any{"inner finally", "b"},
	},
	{
		name:        "cross-frame",
		description: "a throw inside a call is caught by the caller",
		body: func() c.Block {
			return c.Seq(
				c.Def("thrower", nil, c.Throw(c.Const("deep"))),
				c.Try(
					c.Discard(c.Call(c.Local("thrower"))),
					&c.Catch{Var: "e", Body: c.Output(c.Local("e"))},
					c.Output(c.Const("done")),
				),
			)
		},
		emits: []any{"deep", "done"},
	},
	{
		name:        "uncaught",
		description: "an uncaught throw still runs every finally on the way out",
		body: func() c.Block {
			return c.Try(c.Throw(c.Const("boom")), nil, c.Output(c.Const("cleanup")))
		},
		emits:    []any{"cleanup"},
		uncaught: "boom",
	},
}

func findScenario(name string) (scenario, bool) {
	for _, s := range scenarios {
		if s.name == name {
			return s, true
		}
	}
	return scenario{}, false
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for _, s := range scenarios {
		names = append(names, s.name)
	}
	sort.Strings(names)
	return names
}
