package consts

import "time"

// Byte budgets for a single invocation. Exceeding any of them aborts the
// invocation; none of them are soft.
const (
	// MaxProgramBytes is the largest agent bytecode the fetcher accepts
	MaxProgramBytes = 10 * 1024 * 1024
	// MaxInputBytes is the largest input blob the fetcher accepts
	MaxInputBytes = 1024 * 1024
	// MaxOutputBytes is the largest output a guest may pass to set_output
	MaxOutputBytes = 1024 * 1024
	// MaxURIBytes is the longest input URI accepted at submission
	MaxURIBytes = 2 * 1024
)

// Wasm sandbox ceilings
const (
	// MaxMemoryPages caps guest linear memory at 16 MiB (64 KiB pages)
	MaxMemoryPages = 256
)

// Timeouts for external I/O and guest execution
const (
	// FetchTimeout bounds every program and input HTTP GET
	FetchTimeout = 5 * time.Second
	// SandboxTimeout bounds one guest invocation end to end
	SandboxTimeout = 30 * time.Second
)
