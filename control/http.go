package control

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// callTimeout bounds how long a request waits for the reactor
const callTimeout = 2 * time.Second

// HTTPServer is a fasthttp status API over a Dispatcher.
//
//	GET  /stats               multiplexer stats as JSON
//	GET  /dump                human-readable state dump
//	POST /console?enable=bool enable or disable console logging
//	POST /log?level=name      log the request body
type HTTPServer struct {
	dispatcher *Dispatcher
	server     *fasthttp.Server
}

// NewHTTPServer creates the status server. logger may be nil.
func NewHTTPServer(d *Dispatcher, logger fasthttp.Logger) *HTTPServer {
	h := &HTTPServer{dispatcher: d}
	h.server = &fasthttp.Server{
		Handler:               h.Handler,
		Name:                  "svcd",
		Logger:                logger,
		NoDefaultServerHeader: true,
	}
	return h
}

// ListenAndServe serves on addr until Shutdown
func (h *HTTPServer) ListenAndServe(addr string) error {
	return h.server.ListenAndServe(addr)
}

// Serve serves on ln until Shutdown
func (h *HTTPServer) Serve(ln net.Listener) error {
	return h.server.Serve(ln)
}

// Shutdown stops accepting and waits for open requests
func (h *HTTPServer) Shutdown() error {
	return h.server.Shutdown()
}

// Handler routes a request
func (h *HTTPServer) Handler(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/stats":
		if !ctx.IsGet() {
			ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
			return
		}
		h.reply(ctx, "stats", "application/json")

	case "/dump":
		if !ctx.IsGet() {
			ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
			return
		}
		h.reply(ctx, "dump", "text/plain; charset=utf-8")

	case "/console":
		if !ctx.IsPost() {
			ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
			return
		}
		enable, err := strconv.ParseBool(string(ctx.QueryArgs().Peek("enable")))
		if err != nil {
			ctx.Error("enable must be a boolean", fasthttp.StatusBadRequest)
			return
		}
		cmd := "console off"
		if enable {
			cmd = "console on"
		}
		h.reply(ctx, cmd, "text/plain; charset=utf-8")

	case "/log":
		if !ctx.IsPost() {
			ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
			return
		}
		level := string(ctx.QueryArgs().Peek("level"))
		if level == "" {
			level = "info"
		}
		h.reply(ctx, "log "+level+" "+string(ctx.PostBody()), "text/plain; charset=utf-8")

	default:
		ctx.Error("not found", fasthttp.StatusNotFound)
	}
}

// reply executes cmd and writes its reply. Error replies map to 400, a
// reactor that does not answer to 503.
func (h *HTTPServer) reply(ctx *fasthttp.RequestCtx, cmd, contentType string) {
	callCtx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	out, err := h.dispatcher.Call(callCtx, cmd)
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusServiceUnavailable)
		return
	}
	if strings.HasPrefix(out, "error: ") {
		ctx.Error(out, fasthttp.StatusBadRequest)
		return
	}
	ctx.SetContentType(contentType)
	ctx.SetBodyString(out)
}
