package effect

import (
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/prism/engine/backend"
)

const (
	defaultCompileWorkers = 2
	defaultQueueSize      = 64
	workerIdleTimeout     = 5 * time.Second
	vertexEntryPoint      = "vs_main"
	fragmentEntryPoint    = "fs_main"
)

// Cache deduplicates effect requests and owns their backend programs. GetOrCreate, Poll,
// Release and Invalidate must be called from the render thread.
type Cache interface {
	// GetOrCreate returns the effect for the request tuple, scheduling compilation on first use.
	// A second request for the same tuple returns the same *Effect and takes another reference.
	// If the effect already finished, the request's OnCompiled or OnError runs immediately.
	//
	// Parameters:
	//   - opts: the request
	//
	// Returns:
	//   - *Effect: the shared effect
	GetOrCreate(opts Options) *Effect

	// Poll applies finished compilations and pending source edits. Call once per frame.
	//
	// Returns:
	//   - int: the number of compilations applied
	Poll() int

	// Pending returns the number of compilations requested but not yet applied by Poll.
	Pending() int

	// Release drops one reference. At zero the backend program is released and a compilation
	// still in flight is discarded when it completes.
	//
	// Parameters:
	//   - e: the effect to release
	Release(e *Effect)

	// Invalidate drops every cached effect built from source so the next request recompiles.
	// Dropped effects are marked stale and keep their programs until released.
	//
	// Parameters:
	//   - source: the source name
	//
	// Returns:
	//   - int: the number of effects invalidated
	Invalidate(source string) int

	// Store returns the shader store backing the cache.
	Store() ShaderStore

	// Len returns the number of cached effects.
	Len() int

	// Dispose releases every program owned by the cache and stops the compile workers.
	Dispose()
}

type compileResult struct {
	effect   *Effect
	vertex   string
	fragment string
	bytecode []byte
	err      error
}

type cache struct {
	backend  backend.Backend
	store    ShaderStore
	compiler Compiler

	workers     int
	queueSize   int
	synchronous bool

	// One single-worker pool per compile worker: a pool only stops its workers reliably when it
	// owns exactly one.
	pools []worker.DynamicWorkerPool
	next  int

	// backlog holds requests not yet handed to a pool. At most queueSize tasks are submitted at
	// a time, so SubmitTask never blocks the render thread.
	backlog  []*Effect
	inFlight int

	mu       sync.Mutex
	running  int
	done     []compileResult
	disposed bool

	effects map[string]*Effect
	orphans []*Effect
	taskID  int
}

var _ Cache = &cache{}

// NewCache creates an effect cache that creates programs on b.
//
// Parameters:
//   - b: the backend that receives compiled programs
//   - options: builder options
//
// Returns:
//   - Cache: the cache
func NewCache(b backend.Backend, options ...CacheBuilderOption) Cache {
	if b == nil {
		panic("effect: NewCache requires a non-nil backend")
	}
	c := &cache{
		backend:   b,
		workers:   defaultCompileWorkers,
		queueSize: defaultQueueSize,
		effects:   make(map[string]*Effect),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.store == nil {
		c.store = NewShaderStore()
	}
	if c.compiler == nil {
		c.compiler = NewNagaCompiler()
	}
	if !c.synchronous {
		c.pools = make([]worker.DynamicWorkerPool, c.workers)
		for i := range c.pools {
			c.pools[i] = worker.NewDynamicWorkerPool(1, c.queueSize, workerIdleTimeout)
		}
	}
	return c
}

func (c *cache) Store() ShaderStore { return c.store }

func (c *cache) Len() int { return len(c.effects) }

func (c *cache) Pending() int { return c.inFlight }

func (c *cache) GetOrCreate(opts Options) *Effect {
	key := opts.Key()
	if e, ok := c.effects[key]; ok {
		e.refs++
		subscribe(e, opts)
		return e
	}

	e := &Effect{
		key:     key,
		options: opts,
		state:   StatePending,
		refs:    1,
		alive:   true,
	}
	c.effects[key] = e
	subscribe(e, opts)

	if c.synchronous {
		c.apply(c.compile(e))
		return e
	}

	c.inFlight++
	c.backlog = append(c.backlog, e)
	c.dispatch()
	return e
}

// dispatch submits backlogged requests while fewer than queueSize tasks are running.
func (c *cache) dispatch() {
	for len(c.backlog) > 0 {
		e := c.backlog[0]
		if !e.alive {
			c.backlog = c.backlog[1:]
			c.inFlight--
			continue
		}
		c.mu.Lock()
		if c.disposed || c.running >= c.queueSize {
			c.mu.Unlock()
			return
		}
		c.running++
		c.mu.Unlock()

		c.backlog = c.backlog[1:]
		c.taskID++
		pool := c.pools[c.next]
		c.next = (c.next + 1) % len(c.pools)
		pool.SubmitTask(worker.Task{
			ID: c.taskID,
			Do: func() (any, error) {
				res := c.compile(e)
				c.mu.Lock()
				c.done = append(c.done, res)
				c.running--
				c.mu.Unlock()
				return nil, res.err
			},
		})
	}
}

// subscribe wires the request callbacks, firing them immediately when the effect already finished.
func subscribe(e *Effect, opts Options) {
	switch e.state {
	case StateReady:
		if opts.OnCompiled != nil {
			opts.OnCompiled(e)
		}
	case StateFailed:
		if opts.OnError != nil {
			opts.OnError(e, e.err)
		}
	default:
		if opts.OnCompiled != nil {
			e.onCompiled.AddOnce(opts.OnCompiled)
		}
		if opts.OnError != nil {
			e.onError.AddOnce(func(err error) { opts.OnError(e, err) })
		}
	}
}

// compile runs on a worker goroutine. It reads only immutable request data and the store.
func (c *cache) compile(e *Effect) compileResult {
	res := compileResult{effect: e}
	opts := e.options
	pre := NewPreProcessor(c.store.Source)

	vertex, err := c.stage(pre, opts.Vertex, opts)
	if err != nil {
		res.err = err
		return res
	}
	fragment := vertex
	if opts.Fragment != opts.Vertex {
		if fragment, err = c.stage(pre, opts.Fragment, opts); err != nil {
			res.err = err
			return res
		}
	}

	bytecode, err := c.compiler.Compile(opts.Vertex, vertex)
	if err != nil {
		res.err = err
		return res
	}
	if opts.Fragment != opts.Vertex {
		if _, err := c.compiler.Compile(opts.Fragment, fragment); err != nil {
			res.err = err
			return res
		}
	}
	res.vertex, res.fragment, res.bytecode = vertex, fragment, bytecode
	return res
}

func (c *cache) stage(pre PreProcessor, name string, opts Options) (string, error) {
	src, err := c.store.Source(name)
	if err != nil {
		return "", err
	}
	out, err := pre.Process(src, opts.Defines, opts.IndexParameters)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCompileFailed, name, err)
	}
	return out, nil
}

func (c *cache) Poll() int {
	for _, name := range c.store.Changed() {
		if n := c.Invalidate(name); n > 0 {
			log.Printf("[Effects] %s changed, invalidated %d effect(s)", name, n)
		}
	}
	if c.synchronous {
		return 0
	}

	c.mu.Lock()
	done := c.done
	c.done = nil
	c.mu.Unlock()

	for _, res := range done {
		c.inFlight--
		c.apply(res)
	}
	c.dispatch()
	return len(done)
}

func (c *cache) apply(res compileResult) {
	e := res.effect
	if !e.alive {
		log.Printf("[Effects] dropping completion for released effect %s", e.Name())
		return
	}
	if res.err == nil {
		program, err := c.backend.CreateEffect(backend.ProgramDescriptor{
			Name:           e.Name(),
			VertexSource:   res.vertex,
			FragmentSource: res.fragment,
			VertexEntry:    vertexEntryPoint,
			FragmentEntry:  fragmentEntryPoint,
			Attributes:     e.options.Attributes,
			Uniforms:       e.options.Uniforms,
			Samplers:       e.options.Samplers,
			Bytecode:       res.bytecode,
		})
		if err == nil {
			e.program = program
			e.state = StateReady
			e.onError.Clear()
			e.onCompiled.Notify(e)
			return
		}
		res.err = fmt.Errorf("%w: %s: %v", ErrCompileFailed, e.Name(), err)
	}

	e.state = StateFailed
	e.err = res.err
	log.Printf("[Effects] failed to compile %s: %v", e.Name(), res.err)
	e.onCompiled.Clear()
	e.onError.Notify(res.err)
}

func (c *cache) Release(e *Effect) {
	if e == nil || e.refs <= 0 {
		return
	}
	e.refs--
	if e.refs > 0 {
		return
	}
	e.alive = false
	if cur, ok := c.effects[e.key]; ok && cur == e {
		delete(c.effects, e.key)
	}
	c.orphans = slices.DeleteFunc(c.orphans, func(o *Effect) bool { return o == e })
	c.releaseProgram(e)
}

func (c *cache) releaseProgram(e *Effect) {
	if e.program != 0 {
		c.backend.ReleaseEffect(e.program)
		e.program = 0
	}
	e.onCompiled.Clear()
	e.onError.Clear()
}

func (c *cache) Invalidate(source string) int {
	n := 0
	for key, e := range c.effects {
		if !e.usesSource(source, c.store) {
			continue
		}
		delete(c.effects, key)
		e.stale = true
		c.orphans = append(c.orphans, e)
		n++
	}
	return n
}

// usesSource reports whether the effect was built from name directly or through an #include.
func (e *Effect) usesSource(name string, store ShaderStore) bool {
	if e.options.Vertex == name || e.options.Fragment == name {
		return true
	}
	seen := map[string]bool{}
	var walk func(src string, depth int) bool
	walk = func(src string, depth int) bool {
		if depth > maxIncludeDepth || seen[src] {
			return false
		}
		seen[src] = true
		text, err := store.Source(src)
		if err != nil {
			return false
		}
		for _, inc := range includes(text) {
			if inc == name || walk(inc, depth+1) {
				return true
			}
		}
		return false
	}
	return walk(e.options.Vertex, 0) || walk(e.options.Fragment, 0)
}

func (c *cache) Dispose() {
	c.mu.Lock()
	alreadyDisposed := c.disposed
	c.disposed = true
	c.done = nil
	c.mu.Unlock()
	if !alreadyDisposed {
		for _, pool := range c.pools {
			pool.Stop()
		}
	}
	c.backlog = nil
	c.inFlight = 0

	for key, e := range c.effects {
		e.alive = false
		e.refs = 0
		c.releaseProgram(e)
		delete(c.effects, key)
	}
	for _, e := range c.orphans {
		e.alive = false
		e.refs = 0
		c.releaseProgram(e)
	}
	c.orphans = nil
}
