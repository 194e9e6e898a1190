package svclog

import (
	"errors"
)

// Reactor delivers write-readiness notifications. Any event loop can satisfy
// it through an adapter; reactor.Loop does so directly.
type Reactor interface {
	// ActivateWatcher arranges for onWritable to run on the loop goroutine
	// whenever fd is writable, until DeactivateWatcher is called
	ActivateWatcher(fd int, onWritable func())
	// DeactivateWatcher stops notifications for fd
	DeactivateWatcher(fd int)
}

// Descriptor is a destination handle. Write performs a single write and is
// expected to return a would-block error rather than block once the
// descriptor is non-blocking.
type Descriptor interface {
	Fd() int
	Write(p []byte) (int, error)
	SetNonblock(nonblocking bool) error
}

// ConsoleQueue is the supervisor collaborator that receives the console when
// the multiplexer releases it
type ConsoleQueue interface {
	PullConsoleQueue()
}

// ConsoleQueueFunc adapts a function to ConsoleQueue
type ConsoleQueueFunc func()

// PullConsoleQueue calls f
func (f ConsoleQueueFunc) PullConsoleQueue() {
	f()
}

// Poster runs closures on the reactor goroutine. Code outside the loop
// reaches the multiplexer only through a Poster.
type Poster interface {
	Post(fn func()) error
}

// Errors
var (
	// ErrWouldBlock is the portable would-block result for Descriptor.Write
	ErrWouldBlock = errors.New("svclog: write would block")
	// ErrSpecialBusy reports that a special message is already in flight
	ErrSpecialBusy = errors.New("svclog: special message already pending")
	// ErrMalformedSpecial reports a special message without exactly one trailing newline
	ErrMalformedSpecial = errors.New("svclog: special message must end with its only newline")
	// ErrStreamImpaired reports a destination disabled by a fatal write error
	ErrStreamImpaired = errors.New("svclog: stream impaired")
	// ErrNoDestination reports a stream without a descriptor
	ErrNoDestination = errors.New("svclog: stream has no destination")
)
