package svclog

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeReactor records watcher state and lets tests fire notifications by hand
type fakeReactor struct {
	active        map[int]func()
	activations   int
	deactivations int
}

func newFakeReactor() *fakeReactor {
	return &fakeReactor{active: make(map[int]func())}
}

func (r *fakeReactor) ActivateWatcher(fd int, onWritable func()) {
	r.active[fd] = onWritable
	r.activations++
}

func (r *fakeReactor) DeactivateWatcher(fd int) {
	delete(r.active, fd)
	r.deactivations++
}

func (r *fakeReactor) isActive(fd int) bool {
	_, ok := r.active[fd]
	return ok
}

// fire delivers one notification to fd, returning false when it has no watcher
func (r *fakeReactor) fire(fd int) bool {
	cb, ok := r.active[fd]
	if !ok {
		return false
	}
	cb()
	return true
}

// pump fires fd until its watcher goes away or limit notifications were sent
func (r *fakeReactor) pump(fd int, limit int) int {
	n := 0
	for n < limit && r.fire(fd) {
		n++
	}
	return n
}

var errBrokenPipe = errors.New("broken pipe")

// fakeDesc is a scripted descriptor. limit caps bytes per write, block makes
// every write would-block and fail makes every write fail.
type fakeDesc struct {
	fd    int
	out   bytes.Buffer
	limit int
	block bool
	fail  error

	writes       int
	chunks       []string // one entry per successful write
	nonblock     bool
	nonblockSets []bool
	nonblockErr  error
}

func newFakeDesc(fd int) *fakeDesc {
	return &fakeDesc{fd: fd}
}

func (d *fakeDesc) Fd() int {
	return d.fd
}

func (d *fakeDesc) Write(p []byte) (int, error) {
	d.writes++
	if d.fail != nil {
		return 0, d.fail
	}
	if d.block {
		return 0, ErrWouldBlock
	}
	n := len(p)
	if d.limit > 0 && n > d.limit {
		n = d.limit
	}
	d.out.Write(p[:n])
	d.chunks = append(d.chunks, string(p[:n]))
	return n, nil
}

func (d *fakeDesc) SetNonblock(nonblocking bool) error {
	d.nonblock = nonblocking
	d.nonblockSets = append(d.nonblockSets, nonblocking)
	return d.nonblockErr
}

// countingQueue counts console handoffs
type countingQueue struct {
	pulls int
	onPull func()
}

func (q *countingQueue) PullConsoleQueue() {
	q.pulls++
	if q.onPull != nil {
		q.onPull()
	}
}

type testEnv struct {
	mux     *Multiplexer
	reactor *fakeReactor
	console *fakeDesc
	main    *fakeDesc
	queue   *countingQueue
}

const (
	testConsoleFD = 10
	testMainFD    = 11
)

// newTestEnv builds an initialized multiplexer over fakes. Both thresholds
// start at debug and the prefix is empty unless modify changes them.
func newTestEnv(t *testing.T, modify func(*Config)) *testEnv {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Level = LevelDebug
	cfg.ConsoleLevel = LevelDebug
	cfg.Prefix = ""
	if modify != nil {
		modify(cfg)
	}

	env := &testEnv{
		reactor: newFakeReactor(),
		console: newFakeDesc(testConsoleFD),
		main:    newFakeDesc(testMainFD),
		queue:   &countingQueue{},
	}

	mux, err := NewMultiplexer(cfg, env.reactor, env.console, env.main)
	require.NoError(t, err)
	mux.Init(env.queue)
	env.mux = mux
	return env
}

// drain pumps both streams until idle
func (e *testEnv) drain() {
	e.reactor.pump(testMainFD, 10000)
	e.reactor.pump(testConsoleFD, 10000)
}
