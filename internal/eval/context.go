// Package eval hosts the explicit evaluation context, the interpreter
// boundary, and the parallel driver that produces package pieces. The
// build description language itself is interpreted elsewhere; this
// package only hands an interpreter the builder it must drive.
package eval

import (
	"context"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"mason/internal/piece"
)

// LevelTrace is a custom log level more verbose than Debug, used for
// per-target logging. Enable with &slog.HandlerOptions{Level: slog.Level(-8)}.
const LevelTrace = slog.Level(-8)

// Context is the per-evaluation state threaded explicitly through every
// call the driver makes into evaluated code. There is no thread-keyed
// ambient lookup: code that needs the active builder receives a Context.
type Context struct {
	builder piece.Definer
	permits *semaphore.Weighted
	sink    ProgressSink
	logger  *slog.Logger
}

// ContextOption configures NewContext.
type ContextOption func(*Context)

// WithPermits attaches the CPU admission semaphore handed down to
// builders and interpreters. Carried opaquely; nil means unthrottled.
func WithPermits(sem *semaphore.Weighted) ContextOption {
	return func(c *Context) { c.permits = sem }
}

// WithProgress attaches a progress sink for per-piece events.
func WithProgress(sink ProgressSink) ContextOption {
	return func(c *Context) { c.sink = sink }
}

// WithLogger sets the logger for debug/trace output. If not set, no
// logging occurs.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *Context) { c.logger = logger }
}

// NewContext returns a context with no active builder.
func NewContext(opts ...ContextOption) *Context {
	c := &Context{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ActiveBuilder returns the builder the current evaluation mutates, or
// nil when no evaluation is active on this context. A nil result is a
// normal, checkable condition, not an error.
func (c *Context) ActiveBuilder() piece.Definer {
	if c == nil {
		return nil
	}
	return c.builder
}

// WithBuilder returns a copy of the context bound to b. The driver binds
// the outer builder this way; a nested macro expansion rebinds on the
// same goroutine (synchronous call-down) and the outer binding is
// untouched for the caller.
func (c *Context) WithBuilder(b piece.Definer) *Context {
	dup := *c
	dup.builder = b
	return &dup
}

// Permits returns the CPU admission semaphore, or nil when unthrottled.
func (c *Context) Permits() *semaphore.Weighted {
	if c == nil {
		return nil
	}
	return c.permits
}

// Emit forwards an event to the progress sink, if any.
func (c *Context) Emit(evt Event) {
	if c == nil || c.sink == nil {
		return
	}
	c.sink.OnEvent(evt)
}

// Logger returns the configured logger, or nil.
func (c *Context) Logger() *slog.Logger {
	if c == nil {
		return nil
	}
	return c.logger
}

// logEnabled reports whether logging is enabled at the given level.
func logEnabled(logger *slog.Logger, level slog.Level) bool {
	return logger != nil && logger.Enabled(context.Background(), level)
}

// Interpreter executes one build description evaluation against the
// builder bound to ec. Implementations live with the language engine;
// the replay subsystem provides a trace-driven one.
type Interpreter interface {
	Evaluate(ctx context.Context, ec *Context) error
}
