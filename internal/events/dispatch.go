package events

import (
	"fmt"
	"io"
	"log"
	"runtime/debug"

	"github.com/steveyegge/treewatch/internal/metrics"
)

// HandlerError reports a handler that panicked while processing an event.
type HandlerError struct {
	Event Event
	Value any
	Stack []byte
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for %s panicked: %v", e.Event, e.Value)
}

// Dispatcher invokes the handler registered for each event's kind.
type Dispatcher struct {
	Handlers Handlers
	Logger   *log.Logger
	Metrics  *metrics.Collector
}

// NewDispatcher returns a dispatcher over handlers. A nil logger discards
// output.
func NewDispatcher(handlers Handlers, logger *log.Logger, m *metrics.Collector) *Dispatcher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Dispatcher{Handlers: handlers, Logger: logger, Metrics: m}
}

// Dispatch calls ev's handler, if any. A panicking handler is recovered and
// returned as a *HandlerError so the caller can keep dispatching.
func (d *Dispatcher) Dispatch(ev Event) (err error) {
	fn := d.Handlers.For(ev.Kind)
	if fn == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			d.Metrics.HandlerFailed(ev.Kind.String())
			err = &HandlerError{Event: ev, Value: r, Stack: debug.Stack()}
		}
	}()

	d.Metrics.EventDispatched(ev.Kind.String())
	fn(ev)
	return nil
}

// Run pops events from q and dispatches them until q reports its sentinel.
// Handler failures are logged and never stop the loop.
func (d *Dispatcher) Run(q *Queue) {
	for {
		ev, ok := q.Pop()
		if !ok {
			return
		}
		d.Metrics.SetQueued(q.Len())
		if err := d.Dispatch(ev); err != nil {
			d.logf("%v", err)
		}
	}
}

func (d *Dispatcher) logf(format string, args ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
	}
}
