// Package stream provides a bounded single-producer/single-consumer pipe for
// relaying model output fragments in order.
//
// The producer calls [Pipe.Send] for every fragment and [Pipe.Close] exactly
// once when done, optionally with a terminal error. The consumer calls
// [Pipe.Recv] until it returns an error; io.EOF marks a clean end. A consumer
// that stops early calls [Pipe.Abort] so a blocked producer is released.
package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the fragment capacity used when New receives a
// non-positive size.
const DefaultBuffer = 16

// ErrAborted is returned by Send after the consumer abandoned the pipe.
var ErrAborted = errors.New("stream: aborted by consumer")

// ErrClosed is returned by Send after the producer already closed the pipe.
var ErrClosed = errors.New("stream: send on closed pipe")

// Pipe is a bounded channel of text fragments with a close-once end signal.
type Pipe struct {
	ch    chan string
	abort chan struct{}

	closeOnce sync.Once
	abortOnce sync.Once
	closed    atomic.Bool
	err       error
}

// New creates a Pipe buffering up to size fragments.
func New(size int) *Pipe {
	if size <= 0 {
		size = DefaultBuffer
	}

	return &Pipe{
		ch:    make(chan string, size),
		abort: make(chan struct{}),
	}
}

// Send delivers a fragment to the consumer. It blocks while the buffer is
// full and returns early if ctx is done or the consumer aborted.
func (p *Pipe) Send(ctx context.Context, fragment string) error {
	if p.closed.Load() {
		return ErrClosed
	}

	select {
	case <-p.abort:
		return ErrAborted
	default:
	}

	select {
	case p.ch <- fragment:
		return nil
	case <-p.abort:
		return ErrAborted
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the stream. A nil err marks a clean end; otherwise the consumer
// receives err after draining buffered fragments. Only the first call has an
// effect and reports true.
func (p *Pipe) Close(err error) bool {
	closed := false

	p.closeOnce.Do(func() {
		p.err = err
		p.closed.Store(true)
		close(p.ch)
		closed = true
	})

	return closed
}

// Recv returns the next fragment. After the producer closes the pipe and the
// buffer drains, Recv returns io.EOF or the producer's terminal error.
func (p *Pipe) Recv(ctx context.Context) (string, error) {
	select {
	case fragment, ok := <-p.ch:
		if !ok {
			if p.err != nil {
				return "", p.err
			}
			return "", io.EOF
		}
		return fragment, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Abort tells the producer the consumer is gone. It is safe to call more
// than once and alongside Close.
func (p *Pipe) Abort() {
	p.abortOnce.Do(func() { close(p.abort) })
}

// Aborted returns a channel closed once the consumer aborts.
func (p *Pipe) Aborted() <-chan struct{} {
	return p.abort
}

// Collect drains the pipe and returns the concatenated fragments.
func (p *Pipe) Collect(ctx context.Context) (string, error) {
	var b strings.Builder

	for {
		fragment, err := p.Recv(ctx)
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		b.WriteString(fragment)
	}
}

// FromSlice returns a closed pipe pre-filled with fragments.
func FromSlice(fragments ...string) *Pipe {
	p := New(len(fragments))
	for _, f := range fragments {
		p.ch <- f
	}
	p.Close(nil)

	return p
}
