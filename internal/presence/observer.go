package presence

import "sync"

// Logger defines the logging interface used by this package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Handler is a change-notification callback. A returned error is logged
// and suppressed; it never reaches the caller of the mutation that
// triggered the notification.
type Handler[T any] func(v T) error

// HandlerList is an observer list shared by Device and Manager. Fan-out
// iterates a snapshot of the list taken at trigger time, so handlers
// subscribing or unsubscribing mid-notification never corrupt the walk.
//
// Each handler runs in its own goroutine. A panicking or erroring
// handler is isolated: it is logged and does not stop the other
// handlers, nor does it propagate to the mutation that triggered it.
type HandlerList[T any] struct {
	mu       sync.Mutex
	handlers []*handlerEntry[T]
	logger   Logger
}

type handlerEntry[T any] struct {
	fn Handler[T]
}

// NewHandlerList creates a handler list. A nil logger disables logging.
func NewHandlerList[T any](logger Logger) *HandlerList[T] {
	if logger == nil {
		logger = noopLogger{}
	}
	return &HandlerList[T]{logger: logger}
}

// Subscribe registers a handler and returns a disposer that removes it.
// Calling the disposer more than once is harmless.
func (l *HandlerList[T]) Subscribe(fn Handler[T]) func() {
	entry := &handlerEntry[T]{fn: fn}
	l.mu.Lock()
	l.handlers = append(l.handlers, entry)
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, e := range l.handlers {
			if e == entry {
				l.handlers = append(l.handlers[:i], l.handlers[i+1:]...)
				return
			}
		}
	}
}

// Notify fans the value out to every registered handler. Each handler
// runs in its own goroutine; Notify does not wait for them to finish.
// The triggering mutation must already be committed, so handlers observe
// a consistent post-mutation snapshot.
func (l *HandlerList[T]) Notify(v T) {
	l.mu.Lock()
	snapshot := make([]*handlerEntry[T], len(l.handlers))
	copy(snapshot, l.handlers)
	l.mu.Unlock()

	for _, entry := range snapshot {
		go l.runHandler(entry.fn, v)
	}
}

// runHandler invokes one handler with panic and error isolation.
func (l *HandlerList[T]) runHandler(fn Handler[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic in update handler", "panic", r)
		}
	}()
	if err := fn(v); err != nil {
		l.logger.Error("update handler failed", "error", err)
	}
}

// Len returns the number of registered handlers.
func (l *HandlerList[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handlers)
}
