package engine

import (
	"context"
	"sync/atomic"

	"github.com/codefionn/agentrun/internal/consts"
	"github.com/codefionn/agentrun/internal/logger"
)

// BlobFetcher retrieves agent bytecode and input blobs. Implemented by
// Fetcher; narrowed to an interface so controller tests can fail each step
// independently.
type BlobFetcher interface {
	FetchProgram(ctx context.Context, agentID uint32) ([]byte, error)
	FetchInput(ctx context.Context, uriBytes []byte) ([]byte, error)
}

// Runner executes one agent invocation. Implemented by Sandbox.
type Runner interface {
	Run(ctx context.Context, program, input []byte) ([]byte, error)
}

// ResultSink receives the output of every successful invocation: exactly one
// emission per success, none on failure. Emission failures are logged and
// otherwise ignored; they never re-run the invocation.
type ResultSink interface {
	Emit(ctx context.Context, agentID uint32, output []byte) error
}

// Controller drives the execution state machine. Each Tick inspects the
// request register and, when it holds a valid request, runs fetch -> fetch ->
// sandbox -> sink to completion, then clears the register. At most one
// invocation is in flight; ticks arriving while one is running are ignored.
type Controller struct {
	register *Register
	fetcher  BlobFetcher
	runner   Runner
	sink     ResultSink
	log      *logger.Logger
	working  atomic.Bool
}

// NewController wires the engine components together
func NewController(register *Register, fetcher BlobFetcher, runner Runner, sink ResultSink, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.Global()
	}
	return &Controller{
		register: register,
		fetcher:  fetcher,
		runner:   runner,
		sink:     sink,
		log:      log.WithPrefix("controller"),
	}
}

// Submit validates a request and writes it into the register. The register
// slot is a total overwrite: a pending request is replaced, not queued
// behind.
func (c *Controller) Submit(agentID uint32, inputURI []byte) error {
	if agentID == 0 || len(inputURI) == 0 || len(inputURI) > consts.MaxURIBytes {
		return ErrInvalidRequest
	}
	c.register.Write(Request{AgentID: agentID, InputURI: inputURI})
	c.log.Info("accepted request for agent %d", agentID)
	return nil
}

// Tick runs the state machine once. It returns after the invocation (if any)
// reaches a terminal state; every terminal state leaves the register empty
// except the idle no-request case, which leaves it untouched.
func (c *Controller) Tick(ctx context.Context) {
	if !c.working.CompareAndSwap(false, true) {
		c.log.Debug("tick ignored, invocation in flight")
		return
	}
	defer c.working.Store(false)

	req := c.register.Snapshot()
	if req.IsZero() {
		c.log.Info("no execution requested")
		return
	}
	if !req.Valid() {
		c.log.Error("invalid request in register (agent %d, uri %d bytes), clearing", req.AgentID, len(req.InputURI))
		c.register.Clear()
		return
	}

	// Terminal for this invocation either way: the register never survives
	// a drained request.
	defer c.register.Clear()

	program, err := c.fetcher.FetchProgram(ctx, req.AgentID)
	if err != nil {
		c.log.Error("program fetch for agent %d failed: %v", req.AgentID, err)
		return
	}

	input, err := c.fetcher.FetchInput(ctx, req.InputURI)
	if err != nil {
		c.log.Error("input fetch for agent %d failed: %v", req.AgentID, err)
		return
	}

	output, err := c.runner.Run(ctx, program, input)
	if err != nil {
		c.log.Error("sandbox run for agent %d failed: %v", req.AgentID, err)
		return
	}

	if err := c.sink.Emit(ctx, req.AgentID, output); err != nil {
		c.log.Error("result emission for agent %d failed: %v", req.AgentID, err)
	}
	c.log.Info("agent %d produced %d bytes", req.AgentID, len(output))
}
