package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/codefionn/agentrun/internal/consts"
	"github.com/codefionn/agentrun/internal/logger"
)

const (
	hostModuleName = "env"
	memoryExport   = "memory"
	entryExport    = "wasm_function"
)

// Sandbox executes agent bytecode inside an isolated wazero runtime. The
// guest sees exactly two imports, env.get_input and env.set_output, both
// operating on a host-side byte store that starts out holding the input and
// ends up holding the output. Nothing nondeterministic is linked in: no
// WASI, no clock, no filesystem, no network.
type Sandbox struct {
	log            *logger.Logger
	timeout        time.Duration
	maxOutputBytes uint32
	maxMemoryPages uint32
}

// SandboxOption adjusts a Sandbox at construction time
type SandboxOption func(*Sandbox)

// WithSandboxTimeout overrides the guest execution ceiling
func WithSandboxTimeout(d time.Duration) SandboxOption {
	return func(s *Sandbox) { s.timeout = d }
}

// WithMaxOutputBytes overrides the set_output budget
func WithMaxOutputBytes(n uint32) SandboxOption {
	return func(s *Sandbox) { s.maxOutputBytes = n }
}

// NewSandbox creates a Sandbox with the default ceilings
func NewSandbox(log *logger.Logger, opts ...SandboxOption) *Sandbox {
	if log == nil {
		log = logger.Global()
	}
	s := &Sandbox{
		log:            log.WithPrefix("sandbox"),
		timeout:        consts.SandboxTimeout,
		maxOutputBytes: consts.MaxOutputBytes,
		maxMemoryPages: consts.MaxMemoryPages,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// hostStore is the per-invocation byte buffer shared by the two host
// functions. It holds the input snapshot until the guest calls set_output,
// after which it holds the last output written. abort records why a host
// function tore the invocation down.
type hostStore struct {
	data  []byte
	abort *SandboxError
}

// fail records the abort reason and unwinds the guest call. wazero recovers
// host-function panics and surfaces them as the call's error; the recorded
// reason takes precedence over that opaque error.
func (st *hostStore) fail(kind SandboxErrorKind, cause error) {
	st.abort = newSandboxError(kind, cause)
	panic(st.abort)
}

// Run executes one agent invocation and returns the bytes the guest last
// passed to set_output. A guest that never calls set_output yields the input
// snapshot unchanged; the store is the only channel between host and guest.
func (s *Sandbox) Run(ctx context.Context, program, input []byte) ([]byte, error) {
	if len(input) > consts.MaxInputBytes {
		return nil, newSandboxError(ResourceLimit, fmt.Errorf("input is %d bytes, limit %d", len(input), consts.MaxInputBytes))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithMemoryLimitPages(s.maxMemoryPages))
	defer runtime.Close(context.WithoutCancel(ctx))

	store := &hostStore{data: cloneBytes(input)}

	if err := s.instantiateHostModule(ctx, runtime, store); err != nil {
		return nil, err
	}

	compiled, err := runtime.CompileModule(ctx, program)
	if err != nil {
		// wazero enforces the page ceiling while decoding, so an oversized
		// memory surfaces here rather than at instantiation.
		if strings.Contains(err.Error(), "over limit of") {
			return nil, newSandboxError(ResourceLimit, err)
		}
		return nil, newSandboxError(CompileError, err)
	}

	memDef, ok := compiled.ExportedMemories()[memoryExport]
	if !ok {
		return nil, newSandboxError(ExportError, errors.New("module does not export a memory named \"memory\""))
	}
	if memDef.Min() > s.maxMemoryPages {
		return nil, newSandboxError(ResourceLimit, fmt.Errorf("module wants %d memory pages, limit %d", memDef.Min(), s.maxMemoryPages))
	}

	// Instantiation also runs the module's start section, so guest code may
	// already execute (and abort) here.
	mod, err := runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("agent"))
	if err != nil {
		if store.abort != nil {
			return nil, store.abort
		}
		return nil, newSandboxError(InstantiationError, err)
	}
	defer mod.Close(context.WithoutCancel(ctx))

	entry := mod.ExportedFunction(entryExport)
	if entry == nil {
		return nil, newSandboxError(ExportError, fmt.Errorf("module does not export %q", entryExport))
	}
	if def := entry.Definition(); len(def.ParamTypes()) != 0 || len(def.ResultTypes()) != 0 {
		return nil, newSandboxError(ExportError, fmt.Errorf("%q must have signature () -> ()", entryExport))
	}

	if _, err := entry.Call(ctx); err != nil {
		if store.abort != nil {
			return nil, store.abort
		}
		return nil, newSandboxError(TrapError, err)
	}

	s.log.Info("guest finished, store holds %d bytes", len(store.data))
	return store.data, nil
}

// instantiateHostModule registers env.get_input and env.set_output against
// the given store.
func (s *Sandbox) instantiateHostModule(ctx context.Context, runtime wazero.Runtime, store *hostStore) error {
	builder := runtime.NewHostModuleBuilder(hostModuleName)

	// get_input(ptr, len): copy up to len bytes of the store's current data
	// into guest memory at ptr. When the store holds fewer than len bytes
	// the remainder of the window is left untouched. The whole window must
	// lie inside guest memory.
	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, m api.Module, ptr, length uint32) {
			memory := m.Memory()
			if memory == nil {
				store.fail(MemoryOutOfBounds, errors.New("guest has no memory"))
			}
			if _, ok := memory.Read(ptr, length); !ok {
				store.fail(MemoryOutOfBounds, fmt.Errorf("get_input window [%d, %d) outside guest memory", ptr, ptr+length))
			}
			n := uint32(len(store.data))
			if n > length {
				n = length
			}
			if n > 0 && !memory.Write(ptr, store.data[:n]) {
				store.fail(MemoryOutOfBounds, fmt.Errorf("get_input write of %d bytes at %d failed", n, ptr))
			}
			s.log.Info("memory write: get_input copied %d bytes to ptr %d", n, ptr)
		}).
		Export("get_input")

	// set_output(ptr, len): read exactly len bytes from guest memory at ptr
	// and make them the store's new data. The last call wins.
	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, m api.Module, ptr, length uint32) {
			if length > s.maxOutputBytes {
				store.fail(ResourceLimit, fmt.Errorf("set_output of %d bytes, limit %d", length, s.maxOutputBytes))
			}
			memory := m.Memory()
			if memory == nil {
				store.fail(MemoryOutOfBounds, errors.New("guest has no memory"))
			}
			view, ok := memory.Read(ptr, length)
			if !ok {
				store.fail(MemoryOutOfBounds, fmt.Errorf("set_output window [%d, %d) outside guest memory", ptr, ptr+length))
			}
			// Read returns a view into guest memory; snapshot it before the
			// guest can mutate it again.
			store.data = cloneBytes(view)
			s.log.Info("memory read: set_output stored %d bytes from ptr %d", length, ptr)
		}).
		Export("set_output")

	if _, err := builder.Instantiate(ctx); err != nil {
		return newSandboxError(LinkError, err)
	}
	return nil
}
