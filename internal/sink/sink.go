// Package sink delivers successful invocation results to the surrounding
// system. The engine contract is one emission per successful invocation;
// what a sink does with it (log it, persist it, stream it) is its own
// business, and a sink failure never reaches back into the engine.
package sink

import (
	"context"

	"github.com/codefionn/agentrun/internal/logger"
)

// LogSink writes every emission to the log. It is the default sink when
// nothing else is configured.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a LogSink
func NewLogSink(log *logger.Logger) *LogSink {
	if log == nil {
		log = logger.Global()
	}
	return &LogSink{log: log.WithPrefix("sink")}
}

// Emit logs the emission
func (s *LogSink) Emit(_ context.Context, agentID uint32, output []byte) error {
	s.log.Info("agent %d emitted %d bytes", agentID, len(output))
	return nil
}

// MultiSink fans an emission out to several sinks. Every sink sees the
// emission even when an earlier one fails; the first error is reported.
type MultiSink struct {
	sinks []EmitSink
}

// EmitSink is the receiving half shared by all sink implementations
type EmitSink interface {
	Emit(ctx context.Context, agentID uint32, output []byte) error
}

// NewMultiSink combines sinks into one
func NewMultiSink(sinks ...EmitSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Emit delivers to every sink
func (s *MultiSink) Emit(ctx context.Context, agentID uint32, output []byte) error {
	var firstErr error
	for _, sub := range s.sinks {
		if err := sub.Emit(ctx, agentID, output); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
