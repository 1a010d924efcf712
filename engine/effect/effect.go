// Package effect caches compiled shader programs ("effects"). An effect is identified by the
// exact tuple of its sources, attribute/uniform/sampler names, defines string and index
// parameters; requesting the same tuple twice yields the same *Effect and a single compile.
package effect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Carmen-Shannon/prism/engine/backend"
	"github.com/Carmen-Shannon/prism/engine/event"
)

// State is the compile state of an Effect.
type State int

const (
	// StatePending means compilation has been scheduled but not yet completed.
	StatePending State = iota

	// StateReady means the backend program exists and the effect can be bound.
	StateReady

	// StateFailed means compilation failed. A failed effect is never retried; request a new
	// tuple (typically different defines) to try again.
	StateFailed
)

// String returns a readable state name.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Options describes an effect request.
type Options struct {
	// Vertex and Fragment are source names registered in the ShaderStore.
	Vertex   string
	Fragment string

	Attributes []string
	Uniforms   []string
	Samplers   []string

	// Defines is a newline-separated "#define NAME" string. It is part of the cache key.
	Defines string

	// IndexParameters substitute {key} tokens in sources and includes.
	IndexParameters map[string]int

	// OnCompiled is invoked on the render thread when the effect becomes ready.
	OnCompiled func(e *Effect)

	// OnError is invoked on the render thread when compilation fails.
	OnError func(e *Effect, err error)
}

// Key returns the cache key of the request tuple.
func (o Options) Key() string {
	var sb strings.Builder
	sb.WriteString(o.Vertex)
	sb.WriteByte('|')
	sb.WriteString(o.Fragment)
	sb.WriteByte('|')
	sb.WriteString(strings.Join(o.Attributes, ","))
	sb.WriteByte('|')
	sb.WriteString(strings.Join(o.Uniforms, ","))
	sb.WriteByte('|')
	sb.WriteString(strings.Join(o.Samplers, ","))
	sb.WriteByte('|')
	sb.WriteString(o.Defines)
	sb.WriteByte('|')
	keys := make([]string, 0, len(o.IndexParameters))
	for k := range o.IndexParameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s=%d;", k, o.IndexParameters[k])
	}
	return sb.String()
}

// Effect is a compiled (or compiling) shader program plus its parameter metadata.
// Fields are owned by the render thread; workers only produce results that Cache.Poll applies.
type Effect struct {
	key     string
	options Options
	state   State
	program backend.ProgramID
	err     error
	refs    int
	alive   bool
	stale   bool

	onCompiled event.Observable[*Effect]
	onError    event.Observable[error]
}

// Key returns the cache key.
func (e *Effect) Key() string { return e.key }

// Name returns a readable label built from the source names.
func (e *Effect) Name() string { return e.options.Vertex + "+" + e.options.Fragment }

// Options returns the request the effect was created from.
func (e *Effect) Options() Options { return e.options }

// State returns the compile state.
func (e *Effect) State() State { return e.state }

// IsReady reports whether the effect can be bound.
func (e *Effect) IsReady() bool { return e.state == StateReady && e.alive }

// Failed reports whether compilation failed.
func (e *Effect) Failed() bool { return e.state == StateFailed }

// CompilationError returns the compile error of a failed effect.
func (e *Effect) CompilationError() error { return e.err }

// Program returns the backend program of a ready effect.
func (e *Effect) Program() backend.ProgramID { return e.program }

// IsStale reports whether a source of this effect was edited since it was compiled. Holders
// should request the same Options again to pick up the new program.
func (e *Effect) IsStale() bool { return e.stale }

// Alive reports whether the effect is still owned by the cache.
func (e *Effect) Alive() bool { return e.alive }

// Uniforms returns the declared uniform names.
func (e *Effect) Uniforms() []string { return e.options.Uniforms }

// Samplers returns the declared sampler names.
func (e *Effect) Samplers() []string { return e.options.Samplers }

// OnCompiled exposes the compiled observable for additional subscribers.
func (e *Effect) OnCompiled() *event.Observable[*Effect] { return &e.onCompiled }

// OnError exposes the error observable for additional subscribers.
func (e *Effect) OnError() *event.Observable[error] { return &e.onError }
