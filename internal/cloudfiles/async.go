package cloudfiles

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Completion reports the end of an asynchronous operation.
type Completion struct {
	ID  string
	Op  string
	Err error
}

// Operation is a handle on one asynchronous call.
type Operation struct {
	id   string
	op   string
	done chan struct{}
	err  error
}

// ID returns the operation's unique id.
func (o *Operation) ID() string { return o.id }

// Done is closed when the operation finishes.
func (o *Operation) Done() <-chan struct{} { return o.done }

// Err returns the operation's result once Done is closed, nil before.
func (o *Operation) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

// Wait blocks until the operation finishes or ctx ends.
func (o *Operation) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type completionListeners struct {
	mu  sync.RWMutex
	fns []func(Completion)
}

func (l *completionListeners) add(fn func(Completion)) {
	l.mu.Lock()
	l.fns = append(l.fns, fn)
	l.mu.Unlock()
}

func (l *completionListeners) notify(c Completion) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, fn := range l.fns {
		fn(c)
	}
}

// OnOperationComplete registers fn to be called after every asynchronous
// operation on this connection finishes.
func (c *Connection) OnOperationComplete(fn func(Completion)) {
	c.listeners.add(fn)
}

// start runs fn on its own goroutine and returns its handle.
func (c *Connection) start(ctx context.Context, op string, fn func(context.Context) error) *Operation {
	o := &Operation{
		id:   uuid.NewString(),
		op:   op,
		done: make(chan struct{}),
	}

	go func() {
		o.err = fn(ctx)
		close(o.done)
		c.listeners.notify(Completion{ID: o.id, Op: o.op, Err: o.err})
	}()

	return o
}
