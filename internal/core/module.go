package core

// Module is the contract every service implementation satisfies — the
// target-language rendering of spec.md section 9's "dynamic dispatch" note:
// a trait-object-equivalent with four lifecycle methods plus the callback
// entry point. The scripting runtime that would normally author services is
// explicitly out of scope (spec.md section 1); Module is the seam where it
// would plug in.
type Module interface {
	// Create allocates and returns the service's private user-data. Called
	// once, before Init, on the goroutine that invoked Registry.Create.
	Create() any

	// Init performs first-time setup. Returning an error aborts creation:
	// the partially-built service is atomically unregistered (spec.md
	// section 4.1).
	Init(ctx *Context, userData any, args string) error

	// Release runs exactly once, when the service's refcount reaches zero
	// after retirement. Used to release module-owned resources.
	Release(ctx *Context, userData any)

	// Signal implements the SIGNAL runtime command (spec.md section 6). n
	// is the caller-supplied argument, defaulting to 0.
	Signal(ctx *Context, userData any, n int)

	// Callback handles one message. Returning true retains the payload
	// buffer (the module has kept a reference to it, e.g. to reuse it in a
	// downstream DONT_COPY send); returning false relinquishes it back to
	// the runtime.
	Callback(ctx *Context, userData any, msgType MessageType, session uint32, source Handle, payload []byte) bool
}

// ModuleFactory constructs a fresh Module instance for one service. Modules
// are registered by name; Create() is the Go-native substitute for the
// original's dlopen-a-.so module loading, which has no idiomatic Go
// equivalent and is out of scope per spec.md section 1.
type ModuleFactory func() Module

// ModuleLoader resolves a module name (optionally templated through a
// cservice_path-style search list) to a factory.
type ModuleLoader interface {
	Load(name string) (Module, error)
}
