package engine

import "sync"

// Request pairs an agent id with the URI of its input blob. The zero value
// (0, nil) is the sentinel meaning "no request pending".
type Request struct {
	AgentID  uint32
	InputURI []byte
}

// IsZero reports whether the request is the sentinel
func (r Request) IsZero() bool {
	return r.AgentID == 0 && len(r.InputURI) == 0
}

// Valid reports whether the request names an agent and an input
func (r Request) Valid() bool {
	return r.AgentID != 0 && len(r.InputURI) > 0
}

// Register is the single-slot mailbox between the surrounding system and the
// controller. Writes are total overwrites, reads are non-destructive, and
// Clear resets the slot to the sentinel.
type Register struct {
	mu  sync.Mutex
	req Request
}

// NewRegister returns an empty register
func NewRegister() *Register {
	return &Register{}
}

// Write replaces the slot's content
func (g *Register) Write(req Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.req = Request{AgentID: req.AgentID, InputURI: cloneBytes(req.InputURI)}
}

// Snapshot returns a copy of the slot without consuming it
func (g *Register) Snapshot() Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Request{AgentID: g.req.AgentID, InputURI: cloneBytes(g.req.InputURI)}
}

// Clear writes the sentinel. Clearing an already-empty register is a no-op.
func (g *Register) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.req = Request{}
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
