package effect

// CacheBuilderOption configures a Cache.
type CacheBuilderOption func(*cache)

// WithWorkers sets the number of compile workers.
//
// Parameters:
//   - n: the worker count; values below 1 keep the default
//
// Returns:
//   - CacheBuilderOption: the option
func WithWorkers(n int) CacheBuilderOption {
	return func(c *cache) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithQueueSize caps the number of compilations handed to the workers at once. Further requests
// wait in the cache's backlog until Poll frees a slot.
//
// Parameters:
//   - n: the queue capacity; values below 1 keep the default
//
// Returns:
//   - CacheBuilderOption: the option
func WithQueueSize(n int) CacheBuilderOption {
	return func(c *cache) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithSynchronousCompile compiles inside GetOrCreate instead of on the worker pool.
//
// Returns:
//   - CacheBuilderOption: the option
func WithSynchronousCompile() CacheBuilderOption {
	return func(c *cache) {
		c.synchronous = true
	}
}

// WithCompiler replaces the naga compiler.
//
// Parameters:
//   - compiler: the compiler; must be safe for concurrent use
//
// Returns:
//   - CacheBuilderOption: the option
func WithCompiler(compiler Compiler) CacheBuilderOption {
	return func(c *cache) {
		c.compiler = compiler
	}
}

// WithStore sets the shader store the cache reads sources from.
//
// Parameters:
//   - store: the store
//
// Returns:
//   - CacheBuilderOption: the option
func WithStore(store ShaderStore) CacheBuilderOption {
	return func(c *cache) {
		c.store = store
	}
}
