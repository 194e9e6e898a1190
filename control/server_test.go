package control

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixenwraith/svclog"
	"github.com/lixenwraith/svclog/compat"
)

// freeAddr reserves a loopback port and releases it for the server
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// startLoop runs the env loop in the background for the rest of the test
func startLoop(t *testing.T, env *testEnv) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("dial %s: %v", addr, err)
	return nil
}

func TestServer_LineProtocol(t *testing.T) {
	env := newTestEnv(t)
	startLoop(t, env)

	d := NewDispatcher(env.mux, env.loop)
	addr := freeAddr(t)
	srv := NewServer("tcp://"+addr, d, WithLogger(compat.NewGnetAdapter(env.mux, env.loop)))

	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()

	select {
	case <-srv.Ready():
	case err := <-served:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not boot")
	}

	conn := dial(t, addr)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	// Commands split across writes and batched in one write both work
	_, err := conn.Write([]byte("started w"))
	require.NoError(t, err)
	_, err = conn.Write([]byte("eb\r\nstats\nbogus\n"))
	require.NoError(t, err)

	r := bufio.NewReader(conn)

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ok\n", line)

	line, err = r.ReadString('\n')
	require.NoError(t, err)
	var st svclog.Stats
	require.NoError(t, json.Unmarshal([]byte(line), &st))
	assert.True(t, st.ConsoleEnabled)

	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "error: unknown command \"bogus\", try help\n", line)

	_, err = conn.Write([]byte("quit\n"))
	require.NoError(t, err)
	_, err = r.ReadString('\n')
	assert.ErrorIs(t, err, io.EOF)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	assert.NoError(t, <-served)
}

func TestServer_LineTooLong(t *testing.T) {
	env := newTestEnv(t)
	startLoop(t, env)

	addr := freeAddr(t)
	srv := NewServer("tcp://"+addr, NewDispatcher(env.mux, env.loop))
	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()
	<-srv.Ready()

	conn := dial(t, addr)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err := conn.Write(make([]byte, maxLineLength+1))
	require.NoError(t, err)

	reply, _ := io.ReadAll(conn)
	assert.Equal(t, "error: line too long\n", string(reply))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	<-served
}
