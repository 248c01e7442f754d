package bytecode

// Function is a compiled function template: a name, named parameters and a
// body Code. Values are shared between frames and never change.
type Function struct {
	id         string
	name       string
	parameters []string
	code       *Code
}

// FunctionParams is the input to NewFunction. Parameters is copied.
type FunctionParams struct {
	ID         string
	Name       string
	Parameters []string
	Code       *Code
}

func NewFunction(params FunctionParams) *Function {
	return &Function{
		id:         params.ID,
		name:       params.Name,
		parameters: clone(params.Parameters),
		code:       params.Code,
	}
}

// ID is unique within one compilation, for example "__main__.0".
func (f *Function) ID() string { return f.id }

// Name is "" for anonymous functions.
func (f *Function) Name() string { return f.name }

func (f *Function) Code() *Code { return f.code }

// ParameterCount is the exact number of arguments a call must pass.
func (f *Function) ParameterCount() int { return len(f.parameters) }

func (f *Function) Parameter(index int) string { return f.parameters[index] }

// Parameters returns a copy of the parameter names in order.
func (f *Function) Parameters() []string { return clone(f.parameters) }

func (f *Function) String() string {
	if f.name == "" {
		return "func:<anonymous>"
	}
	return "func:" + f.name
}
