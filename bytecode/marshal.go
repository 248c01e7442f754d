package bytecode

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/risor-io/unwind/op"
)

// Canonical encoding keeps marshaled bytecode deterministic.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal converts a Code object, and every function code reachable from
// it, into CBOR.
func Marshal(code *Code) ([]byte, error) {
	state, err := stateFromCode(code)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(state)
}

// Unmarshal converts CBOR produced by Marshal back into a Code object.
func Unmarshal(data []byte) (*Code, error) {
	var state codeState
	if err := cbor.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal: %w", err)
	}
	return codeFromState(&state)
}

// Serialization types. Addresses are stored raw, sentinel included, the
// same way they appear in the instruction stream.

type constantDef struct {
	Type   string   `cbor:"1,keyasint"`
	Bool   bool     `cbor:"2,keyasint,omitempty"`
	Int    int64    `cbor:"3,keyasint,omitempty"`
	Float  float64  `cbor:"4,keyasint,omitempty"`
	String string   `cbor:"5,keyasint,omitempty"`
	Func   *funcDef `cbor:"6,keyasint,omitempty"`
}

type funcDef struct {
	ID         string   `cbor:"1,keyasint"`
	Name       string   `cbor:"2,keyasint,omitempty"`
	Parameters []string `cbor:"3,keyasint,omitempty"`
	CodeIndex  int      `cbor:"4,keyasint"`
}

type handlerDef struct {
	TryStart int    `cbor:"1,keyasint"`
	TryEnd   int    `cbor:"2,keyasint"`
	Catch    uint32 `cbor:"3,keyasint"`
	Finally  uint32 `cbor:"4,keyasint"`
	End      int    `cbor:"5,keyasint"`
}

type locationDef struct {
	Line   int `cbor:"1,keyasint"`
	Column int `cbor:"2,keyasint"`
}

type codeDef struct {
	ID           string        `cbor:"1,keyasint"`
	Name         string        `cbor:"2,keyasint,omitempty"`
	Instructions []op.Code     `cbor:"3,keyasint"`
	Constants    []constantDef `cbor:"4,keyasint,omitempty"`
	Source       string        `cbor:"5,keyasint,omitempty"`
	Filename     string        `cbor:"6,keyasint,omitempty"`
	Locations    []locationDef `cbor:"7,keyasint,omitempty"`
	LocalCount   int           `cbor:"8,keyasint"`
	LocalNames   []string      `cbor:"9,keyasint,omitempty"`
	Handlers     []handlerDef  `cbor:"10,keyasint,omitempty"`
}

type codeState struct {
	Version int        `cbor:"1,keyasint"`
	Codes   []*codeDef `cbor:"2,keyasint"`
}

const stateVersion = 1

func rawAddress(a Address) uint32 {
	if off, ok := a.Get(); ok {
		return uint32(off)
	}
	return NoAddressSentinel
}

func addressFromRaw(raw uint32) Address {
	return DecodeAddress(op.Code(raw>>16), op.Code(raw&0xFFFF))
}

func stateFromCode(code *Code) (*codeState, error) {
	allCodes := code.Flatten()
	codeIndexMap := make(map[*Code]int, len(allCodes))
	for i, c := range allCodes {
		codeIndexMap[c] = i
	}
	state := &codeState{
		Version: stateVersion,
		Codes:   make([]*codeDef, len(allCodes)),
	}
	for i, c := range allCodes {
		constants := make([]constantDef, c.ConstantCount())
		for j := 0; j < c.ConstantCount(); j++ {
			def, err := marshalConstant(c.ConstantAt(j), codeIndexMap)
			if err != nil {
				return nil, err
			}
			constants[j] = def
		}
		handlers := make([]handlerDef, c.ExceptionHandlerCount())
		for j := range handlers {
			h := c.ExceptionHandlerAt(j)
			handlers[j] = handlerDef{
				TryStart: h.TryStart,
				TryEnd:   h.TryEnd,
				Catch:    rawAddress(h.Catch),
				Finally:  rawAddress(h.Finally),
				End:      h.End,
			}
		}
		locations := make([]locationDef, c.LocationCount())
		for j := range locations {
			loc := c.LocationAt(j)
			locations[j] = locationDef{Line: loc.Line, Column: loc.Column}
		}
		localNames := make([]string, c.LocalNameCount())
		for j := range localNames {
			localNames[j] = c.LocalNameAt(j)
		}
		instructions := make([]op.Code, c.InstructionCount())
		for j := range instructions {
			instructions[j] = c.InstructionAt(j)
		}
		state.Codes[i] = &codeDef{
			ID:           c.ID(),
			Name:         c.Name(),
			Instructions: instructions,
			Constants:    constants,
			Source:       c.Source(),
			Filename:     c.Filename(),
			Locations:    locations,
			LocalCount:   c.LocalCount(),
			LocalNames:   localNames,
			Handlers:     handlers,
		}
	}
	return state, nil
}

func marshalConstant(c any, codeIndexMap map[*Code]int) (constantDef, error) {
	switch v := c.(type) {
	case nil:
		return constantDef{Type: "nil"}, nil
	case bool:
		return constantDef{Type: "bool", Bool: v}, nil
	case int:
		return constantDef{Type: "int", Int: int64(v)}, nil
	case int64:
		return constantDef{Type: "int", Int: v}, nil
	case float64:
		return constantDef{Type: "float", Float: v}, nil
	case string:
		return constantDef{Type: "string", String: v}, nil
	case *Function:
		idx, ok := codeIndexMap[v.Code()]
		if !ok {
			return constantDef{}, fmt.Errorf("bytecode: function %q has no code", v.Name())
		}
		return constantDef{Type: "function", Func: &funcDef{
			ID:         v.ID(),
			Name:       v.Name(),
			Parameters: v.Parameters(),
			CodeIndex:  idx,
		}}, nil
	default:
		return constantDef{}, fmt.Errorf("bytecode: unknown constant type: %T", c)
	}
}

// codeFromState rebuilds codes lazily so a function constant can refer to any
// code in the table, including one that appears later.
func codeFromState(state *codeState) (*Code, error) {
	if state.Version != stateVersion {
		return nil, fmt.Errorf("bytecode: unsupported version %d", state.Version)
	}
	if len(state.Codes) == 0 {
		return nil, fmt.Errorf("bytecode: no code")
	}
	built := make([]*Code, len(state.Codes))
	building := make([]bool, len(state.Codes))

	var build func(i int) (*Code, error)
	build = func(i int) (*Code, error) {
		if i < 0 || i >= len(state.Codes) {
			return nil, fmt.Errorf("bytecode: code index %d out of range", i)
		}
		if built[i] != nil {
			return built[i], nil
		}
		if building[i] {
			return nil, fmt.Errorf("bytecode: recursive code reference at index %d", i)
		}
		building[i] = true
		def := state.Codes[i]

		constants := make([]any, len(def.Constants))
		for j, cd := range def.Constants {
			switch cd.Type {
			case "nil":
				constants[j] = nil
			case "bool":
				constants[j] = cd.Bool
			case "int":
				constants[j] = cd.Int
			case "float":
				constants[j] = cd.Float
			case "string":
				constants[j] = cd.String
			case "function":
				if cd.Func == nil {
					return nil, fmt.Errorf("bytecode: function constant without definition")
				}
				fnCode, err := build(cd.Func.CodeIndex)
				if err != nil {
					return nil, err
				}
				constants[j] = NewFunction(FunctionParams{
					ID:         cd.Func.ID,
					Name:       cd.Func.Name,
					Parameters: cd.Func.Parameters,
					Code:       fnCode,
				})
			default:
				return nil, fmt.Errorf("bytecode: unknown constant type %q", cd.Type)
			}
		}
		handlers := make([]ExceptionHandler, len(def.Handlers))
		for j, h := range def.Handlers {
			handlers[j] = ExceptionHandler{
				TryStart: h.TryStart,
				TryEnd:   h.TryEnd,
				Catch:    addressFromRaw(h.Catch),
				Finally:  addressFromRaw(h.Finally),
				End:      h.End,
			}
		}
		locations := make([]SourceLocation, len(def.Locations))
		for j, loc := range def.Locations {
			locations[j] = SourceLocation{Line: loc.Line, Column: loc.Column}
		}
		built[i] = NewCode(CodeParams{
			ID:                def.ID,
			Name:              def.Name,
			Instructions:      def.Instructions,
			Constants:         constants,
			Source:            def.Source,
			Filename:          def.Filename,
			Locations:         locations,
			LocalCount:        def.LocalCount,
			LocalNames:        def.LocalNames,
			ExceptionHandlers: handlers,
		})
		return built[i], nil
	}
	return build(0)
}
