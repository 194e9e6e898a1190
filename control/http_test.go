package control

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/lixenwraith/svclog"
)

func doRequest(h *HTTPServer, method, uri, body string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	if body != "" {
		ctx.Request.SetBodyString(body)
	}
	h.Handler(ctx)
	return ctx
}

func TestHTTPServer_Handler(t *testing.T) {
	env := newTestEnv(t)
	h := NewHTTPServer(env.dispatcher, nil)

	t.Run("stats", func(t *testing.T) {
		ctx := doRequest(h, fasthttp.MethodGet, "/stats", "")
		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.Equal(t, "application/json", string(ctx.Response.Header.ContentType()))

		var st svclog.Stats
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &st))
		assert.True(t, st.ConsoleEnabled)
	})

	t.Run("dump", func(t *testing.T) {
		ctx := doRequest(h, fasthttp.MethodGet, "/dump", "")
		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.Contains(t, string(ctx.Response.Body()), "svclog.Stats")
	})

	t.Run("console toggle", func(t *testing.T) {
		ctx := doRequest(h, fasthttp.MethodPost, "/console?enable=false", "")
		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.False(t, env.mux.ConsoleEnabled())
		assert.Equal(t, 1, env.pulls)

		ctx = doRequest(h, fasthttp.MethodPost, "/console?enable=true", "")
		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.True(t, env.mux.ConsoleEnabled())

		ctx = doRequest(h, fasthttp.MethodPost, "/console?enable=sometimes", "")
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	})

	t.Run("log body", func(t *testing.T) {
		ctx := doRequest(h, fasthttp.MethodPost, "/log?level=warn", "disk almost full")
		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.Equal(t, "disk almost full\n", env.flush(t))

		ctx = doRequest(h, fasthttp.MethodPost, "/log?level=loud", "x")
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
		assert.Contains(t, string(ctx.Response.Body()), "invalid level string")

		ctx = doRequest(h, fasthttp.MethodPost, "/log", "")
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	})

	t.Run("routing", func(t *testing.T) {
		assert.Equal(t, fasthttp.StatusNotFound, doRequest(h, fasthttp.MethodGet, "/nope", "").Response.StatusCode())
		assert.Equal(t, fasthttp.StatusMethodNotAllowed, doRequest(h, fasthttp.MethodPost, "/stats", "").Response.StatusCode())
		assert.Equal(t, fasthttp.StatusMethodNotAllowed, doRequest(h, fasthttp.MethodGet, "/console", "").Response.StatusCode())
	})
}

func TestHTTPServer_Serve(t *testing.T) {
	env := newTestEnv(t)
	h := NewHTTPServer(env.dispatcher, nil)

	ln := fasthttputil.NewInmemoryListener()
	served := make(chan error, 1)
	go func() { served <- h.Serve(ln) }()

	client := &fasthttp.Client{
		Dial: func(addr string) (net.Conn, error) { return ln.Dial() },
	}

	statusCode, body, err := client.Get(nil, "http://svcd/stats")
	require.NoError(t, err)
	assert.Equal(t, fasthttp.StatusOK, statusCode)
	assert.Contains(t, string(body), `"console_enabled":true`)

	require.NoError(t, h.Shutdown())
	assert.NoError(t, <-served)
}

func TestHTTPServer_ShutdownWithStalledReactor(t *testing.T) {
	env := newTestEnv(t)
	// The loop never runs, as after svcd's loop has returned
	h := NewHTTPServer(NewDispatcher(env.mux, env.loop), nil)

	ln := fasthttputil.NewInmemoryListener()
	served := make(chan error, 1)
	go func() { served <- h.Serve(ln) }()

	client := &fasthttp.Client{
		Dial: func(addr string) (net.Conn, error) { return ln.Dial() },
	}

	type result struct {
		status int
		err    error
	}
	resCh := make(chan result, 1)
	go func() {
		status, _, err := client.Get(nil, "http://svcd/stats")
		resCh <- result{status, err}
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, env.loop.Close())

	select {
	case res := <-resCh:
		require.NoError(t, res.err)
		assert.Equal(t, fasthttp.StatusServiceUnavailable, res.status)
	case <-time.After(callTimeout + time.Second):
		t.Fatal("request still waiting after the loop closed")
	}

	shutdown := make(chan error, 1)
	go func() { shutdown <- h.Shutdown() }()
	select {
	case err := <-shutdown:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown hung")
	}
	assert.NoError(t, <-served)
}
