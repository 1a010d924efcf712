package effect

import (
	"errors"
	"fmt"

	"github.com/gogpu/naga"
)

// ErrCompileFailed wraps every shader validation or program creation failure.
var ErrCompileFailed = errors.New("effect: compile failed")

// Compiler validates a preprocessed WGSL module and returns its intermediate form.
// Implementations must be safe for concurrent use; compilation runs on worker goroutines.
type Compiler interface {
	// Compile validates source.
	//
	// Parameters:
	//   - name: a label used in error messages
	//   - source: the preprocessed WGSL module
	//
	// Returns:
	//   - []byte: the compiled bytecode (SPIR-V for the naga compiler)
	//   - error: a compile error
	Compile(name, source string) ([]byte, error)
}

type nagaCompiler struct{}

// NewNagaCompiler returns a Compiler that validates WGSL and lowers it to SPIR-V with naga.
//
// Returns:
//   - Compiler: the naga-backed compiler
func NewNagaCompiler() Compiler {
	return nagaCompiler{}
}

func (nagaCompiler) Compile(name, source string) ([]byte, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCompileFailed, name, err)
	}
	return spirv, nil
}

// CompilerFunc adapts a function to the Compiler interface.
type CompilerFunc func(name, source string) ([]byte, error)

// Compile calls f.
func (f CompilerFunc) Compile(name, source string) ([]byte, error) {
	return f(name, source)
}
