// Package reactor provides a minimal single-goroutine event loop built on
// poll(2). It delivers write-readiness notifications for registered
// descriptors and runs closures posted from other goroutines, so every
// callback executes on the loop goroutine and the code it drives needs no
// locking.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned by Post after Close
var ErrClosed = errors.New("reactor: loop closed")

// readinessMask covers every revent that should wake a write watcher. Error
// conditions are delivered as readiness so the watcher's next write observes
// the failure itself.
const readinessMask = unix.POLLOUT | unix.POLLERR | unix.POLLHUP | unix.POLLNVAL

// Loop is a poll(2) reactor. Watcher registration and RunOnce must only be
// called from the loop goroutine; Post and Stop are safe from anywhere.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	done   chan struct{} // closed by Close

	wakeRead  FD
	wakeWrite FD

	watchers map[int]func()
	order    []int // activation order, keeps dispatch deterministic
	pollFds  []unix.PollFd
	stopped  bool
}

// New creates a loop with its wakeup pipe
func New() (*Loop, error) {
	r, w, err := Pipe()
	if err != nil {
		return nil, err
	}
	return &Loop{
		wakeRead:  r,
		wakeWrite: w,
		watchers:  make(map[int]func()),
		done:      make(chan struct{}),
	}, nil
}

// ActivateWatcher registers onWritable to run whenever fd is writable.
// Activating an already active fd replaces its callback.
func (l *Loop) ActivateWatcher(fd int, onWritable func()) {
	if _, ok := l.watchers[fd]; !ok {
		l.order = append(l.order, fd)
	}
	l.watchers[fd] = onWritable
}

// DeactivateWatcher removes the watcher for fd, if any
func (l *Loop) DeactivateWatcher(fd int) {
	if _, ok := l.watchers[fd]; !ok {
		return
	}
	delete(l.watchers, fd)
	for i, v := range l.order {
		if v == fd {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// Post queues fn to run on the loop goroutine and wakes the loop
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	// A full pipe already guarantees a pending wakeup
	if _, err := l.wakeWrite.Write([]byte{1}); err != nil && err != unix.EAGAIN {
		return fmt.Errorf("reactor: wake: %w", err)
	}
	return nil
}

// Stop asks a running Run to return after the current iteration
func (l *Loop) Stop() error {
	return l.Post(func() { l.stopped = true })
}

// Run dispatches events until ctx is done or Stop is called
func (l *Loop) Run(ctx context.Context) error {
	cancel := context.AfterFunc(ctx, func() { _ = l.Stop() })
	defer cancel()
	defer func() { l.stopped = false }()

	for !l.stopped {
		if err := l.RunOnce(-1); err != nil {
			return err
		}
	}
	return nil
}

// RunOnce waits up to timeout (negative waits indefinitely) for readiness,
// dispatches ready watchers, then runs posted closures
func (l *Loop) RunOnce(timeout time.Duration) error {
	fds := l.pollFds[:0]
	fds = append(fds, unix.PollFd{Fd: int32(l.wakeRead), Events: unix.POLLIN})
	for _, fd := range l.order {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLOUT})
	}
	l.pollFds = fds

	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}

	n, err := unix.Poll(fds, ms)
	if err != nil && err != unix.EINTR {
		return fmt.Errorf("reactor: poll: %w", err)
	}

	if n > 0 {
		for _, pfd := range fds[1:] {
			if pfd.Revents&readinessMask == 0 {
				continue
			}
			// An earlier callback may have deactivated this watcher
			if cb, ok := l.watchers[int(pfd.Fd)]; ok {
				cb()
			}
		}
		if fds[0].Revents&unix.POLLIN != 0 {
			l.drainWake()
		}
	}

	l.runPosted()
	return nil
}

// Close releases the wakeup pipe. Posted closures not yet run are dropped;
// Done tells anyone waiting on one of them.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.queue = nil
	close(l.done)
	l.mu.Unlock()

	return errors.Join(l.wakeRead.Close(), l.wakeWrite.Close())
}

// Done is closed once the loop is closed and will run no more closures
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(int(l.wakeRead), buf[:])
		if err != nil || n < len(buf) {
			return
		}
	}
}

func (l *Loop) runPosted() {
	l.mu.Lock()
	queue := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, fn := range queue {
		fn()
	}
}
