package reactor

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// FD is a raw file descriptor used as a log destination. Writes go straight
// to write(2) so a descriptor in non-blocking mode reports EAGAIN instead of
// parking the calling goroutine.
type FD int

// Standard destinations
const (
	Stdout FD = 1
	Stderr FD = 2
)

// Fd returns the descriptor number
func (f FD) Fd() int {
	return int(f)
}

// Write issues exactly one write(2). On failure the byte count is 0 and the
// errno is returned unwrapped so callers can match EAGAIN.
func (f FD) Write(p []byte) (int, error) {
	n, err := unix.Write(int(f), p)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// SetNonblock toggles O_NONBLOCK on the descriptor
func (f FD) SetNonblock(nonblocking bool) error {
	if err := unix.SetNonblock(int(f), nonblocking); err != nil {
		return fmt.Errorf("reactor: set nonblock=%t on fd %d: %w", nonblocking, int(f), err)
	}
	return nil
}

// Close closes the descriptor
func (f FD) Close() error {
	return unix.Close(int(f))
}

// OpenAppend opens (creating if needed) a file for appending in non-blocking,
// close-on-exec mode, suitable as the main log destination
func OpenAppend(path string) (FD, error) {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_APPEND|unix.O_CREAT|unix.O_NONBLOCK|unix.O_CLOEXEC, 0o644)
	if err != nil {
		return -1, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return FD(fd), nil
}

// Pipe returns a non-blocking, close-on-exec pipe as (read end, write end)
func Pipe() (FD, FD, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, -1, fmt.Errorf("reactor: pipe2: %w", err)
	}
	return FD(fds[0]), FD(fds[1]), nil
}
