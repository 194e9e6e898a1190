package svclog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole_InitEnables(t *testing.T) {
	env := newTestEnv(t, nil)

	assert.True(t, env.mux.ConsoleEnabled())
	assert.True(t, env.console.nonblock)
	assert.Equal(t, 0, env.queue.pulls)
}

func TestConsole_ImmediateRelease(t *testing.T) {
	env := newTestEnv(t, consoleOnly)

	env.mux.EnableConsoleLog(false)

	assert.False(t, env.mux.ConsoleEnabled())
	assert.Equal(t, 1, env.queue.pulls)
	assert.False(t, env.console.nonblock, "blocking mode restored")
	assert.False(t, env.reactor.isActive(testConsoleFD))

	// Repeated disables do not hand off again
	env.mux.EnableConsoleLog(false)
	assert.Equal(t, 1, env.queue.pulls)
}

func TestConsole_BufferedWhileDisabled(t *testing.T) {
	env := newTestEnv(t, consoleOnly)
	env.mux.EnableConsoleLog(false)

	env.mux.Info("held")
	assert.False(t, env.reactor.isActive(testConsoleFD))
	assert.Empty(t, env.console.out.String())

	env.mux.EnableConsoleLog(true)
	assert.True(t, env.reactor.isActive(testConsoleFD))
	env.drain()
	assert.Equal(t, "held\n", env.console.out.String())
}

func TestConsole_FlushOnDisable(t *testing.T) {
	env := newTestEnv(t, consoleOnly)

	env.mux.Info("first")
	env.mux.Info("second")
	env.mux.EnableConsoleLog(false)

	// One write completes the first message, then the console is released
	assert.Equal(t, "first\n", env.console.out.String())
	assert.Equal(t, 1, env.queue.pulls)
	assert.False(t, env.reactor.isActive(testConsoleFD))
	assert.Equal(t, 7, env.mux.streams[Console].pending)

	env.mux.EnableConsoleLog(true)
	env.drain()
	assert.Equal(t, "first\nsecond\n", env.console.out.String())
}

func TestConsole_DeferredRelease(t *testing.T) {
	env := newTestEnv(t, consoleOnly)
	env.console.limit = 3

	env.mux.Info("abcdefgh")
	env.mux.Info("next")
	require.True(t, env.reactor.fire(testConsoleFD))
	require.True(t, env.mux.streams[Console].partway)

	env.mux.EnableConsoleLog(false)
	assert.Equal(t, 0, env.queue.pulls, "release waits for the message")
	assert.True(t, env.reactor.isActive(testConsoleFD))
	assert.True(t, env.console.nonblock)

	env.reactor.pump(testConsoleFD, 10)
	assert.Equal(t, "abcdefgh\n", env.console.out.String(), "stops at the boundary")
	assert.Equal(t, 1, env.queue.pulls)
	assert.False(t, env.console.nonblock)
	assert.False(t, env.reactor.isActive(testConsoleFD))
}

func TestConsole_FlushLeavesPartway(t *testing.T) {
	env := newTestEnv(t, consoleOnly)
	env.console.limit = 3

	env.mux.Info("abcdefgh")
	env.mux.EnableConsoleLog(false)

	assert.Equal(t, "abc", env.console.out.String())
	assert.Equal(t, 0, env.queue.pulls)
	assert.True(t, env.reactor.isActive(testConsoleFD))

	env.reactor.pump(testConsoleFD, 10)
	assert.Equal(t, "abcdefgh\n", env.console.out.String())
	assert.Equal(t, 1, env.queue.pulls)
}

func TestConsole_ReenableBeforeDeferredRelease(t *testing.T) {
	env := newTestEnv(t, consoleOnly)
	env.console.limit = 3

	env.mux.Info("abcdefgh")
	env.mux.Info("next")
	env.reactor.fire(testConsoleFD)

	env.mux.EnableConsoleLog(false)
	env.mux.EnableConsoleLog(true)
	env.reactor.pump(testConsoleFD, 20)

	assert.Equal(t, "abcdefgh\nnext\n", env.console.out.String())
	assert.Equal(t, 0, env.queue.pulls)
}

func TestConsole_HandoffOncePerCycle(t *testing.T) {
	env := newTestEnv(t, consoleOnly)

	for i := 1; i <= 3; i++ {
		env.mux.Info("cycle")
		env.mux.EnableConsoleLog(false)
		env.mux.EnableConsoleLog(false)
		assert.Equal(t, i, env.queue.pulls)
		env.mux.EnableConsoleLog(true)
		env.mux.EnableConsoleLog(true)
		env.drain()
	}
	assert.Equal(t, "cycle\ncycle\ncycle\n", env.console.out.String())
}

func TestConsole_QueueReturnsConsoleImmediately(t *testing.T) {
	env := newTestEnv(t, consoleOnly)
	env.queue.onPull = func() { env.mux.EnableConsoleLog(true) }

	env.mux.Info("one")
	env.mux.Info("two")
	env.mux.EnableConsoleLog(false)

	assert.Equal(t, 1, env.queue.pulls)
	assert.True(t, env.mux.ConsoleEnabled())
	assert.True(t, env.reactor.isActive(testConsoleFD), "draining resumes")

	env.drain()
	assert.Equal(t, "one\ntwo\n", env.console.out.String())
}

func TestConsole_NilQueue(t *testing.T) {
	r := newFakeReactor()
	console := newFakeDesc(testConsoleFD)

	mux, err := NewBuilder().Reactor(r).Console(console).Build()
	require.NoError(t, err)

	assert.NotPanics(t, func() { mux.EnableConsoleLog(false) })
	assert.False(t, console.nonblock)
}

func TestMultiplexer_Close(t *testing.T) {
	t.Run("restores blocking mode without a handoff", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.console.block = true
		env.mux.Info("stuck")
		require.True(t, env.reactor.isActive(testConsoleFD))

		require.NoError(t, env.mux.Close())
		assert.False(t, env.reactor.isActive(testConsoleFD))
		assert.False(t, env.reactor.isActive(testMainFD))
		assert.Equal(t, []bool{true, false}, env.console.nonblockSets)
		assert.Equal(t, []bool{true, false}, env.main.nonblockSets)
		assert.Equal(t, 0, env.queue.pulls)
		assert.False(t, env.mux.ConsoleEnabled())

		// Nothing drains any more
		env.mux.Info("late")
		env.mux.EnableConsoleLog(true)
		assert.False(t, env.reactor.isActive(testConsoleFD))
		assert.False(t, env.reactor.isActive(testMainFD))
		assert.NoError(t, env.mux.Close())
	})

	t.Run("reports both descriptor errors", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.console.nonblockErr = errors.New("console gone")
		env.main.nonblockErr = errors.New("main gone")

		err := env.mux.Close()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to restore main blocking mode: main gone")
		assert.Contains(t, err.Error(), "failed to restore console blocking mode: console gone")
	})
}
