package domain

import "go.trai.ch/zerr"

var (
	// ErrReferenceNotFound is returned when a reference token names a hash that is not in the cache.
	// The cache may have been cleared; the referenced object has to be regenerated.
	ErrReferenceNotFound = zerr.New("referenced object not found in cache, it may have been cleared; regenerate the object")

	// ErrShapeNotInCache is returned by reserved operations when the shape to mesh or export is missing.
	ErrShapeNotInCache = zerr.New("shape not found in cache")

	// ErrNoShapesProvided is returned when a batch mesh request carries an empty shape list.
	ErrNoShapesProvided = zerr.New("no shapes provided")

	// ErrInvalidHash is returned when a token hash is neither an integer nor a decimal string.
	ErrInvalidHash = zerr.New("invalid reference hash")

	// ErrInvalidReference is returned when a reserved operation input is not a reference token.
	ErrInvalidReference = zerr.New("input is not a reference token")

	// ErrPathNotResolved is returned when a dotted operation path leaves the kernel surface.
	ErrPathNotResolved = zerr.New("cannot resolve path")

	// ErrNotAFunction is returned when a dotted operation path ends on a namespace.
	ErrNotAFunction = zerr.New("not a function")

	// ErrUnconvertedBlob is returned when a file-like value reaches the resolver instead of raw bytes.
	ErrUnconvertedBlob = zerr.New("file-like input was not converted to a byte buffer before reaching the worker")

	// ErrMixedShapeArray is returned when an array starting with a shape holds a non-shape element.
	ErrMixedShapeArray = zerr.New("array mixes shapes with other values")

	// ErrKernelNotAttached is returned when an operation arrives before the kernel is initialized.
	ErrKernelNotAttached = zerr.New("kernel is not initialized")

	// ErrKernelPanic is returned when a kernel operation panics.
	ErrKernelPanic = zerr.New("kernel operation panicked")

	// ErrPointerFieldLeak reports a canonical form that still contains a ptr field after stripping.
	ErrPointerFieldLeak = zerr.New("pointer field survived canonicalization")

	// ErrCanonicalizeFailed is returned when a request cannot be serialized for fingerprinting.
	ErrCanonicalizeFailed = zerr.New("failed to canonicalize request")

	// ErrObjectReleased is returned by liveness probes of released kernel objects.
	ErrObjectReleased = zerr.New("kernel object has been released")

	// ErrWorkerStopped is returned when a request is submitted to a stopped worker.
	ErrWorkerStopped = zerr.New("worker stopped")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrInvalidConfig is returned when a config value is out of range.
	ErrInvalidConfig = zerr.New("invalid configuration")

	// ErrDaemonSpawnFailed is returned when the daemon process cannot be started.
	ErrDaemonSpawnFailed = zerr.New("failed to spawn daemon")

	// ErrDaemonNotRunning is returned when no daemon answers on the socket.
	ErrDaemonNotRunning = zerr.New("daemon is not running")

	// ErrDaemonStartTimeout is returned when a spawned daemon does not become responsive in time.
	ErrDaemonStartTimeout = zerr.New("daemon failed to start within timeout")

	// ErrCallFailed is returned by the CLI when the worker replied with an error frame.
	ErrCallFailed = zerr.New("operation failed")

	// ErrInvalidInputs is returned when command line inputs are not a JSON object.
	ErrInvalidInputs = zerr.New("inputs must be a JSON object")

	// ErrNoReply is returned when a call stream ends before the reply frame arrived.
	ErrNoReply = zerr.New("daemon closed the call without a reply")

	// ErrUnknownCodec is returned when a transport codec name is not registered.
	ErrUnknownCodec = zerr.New("unknown transport codec")
)
