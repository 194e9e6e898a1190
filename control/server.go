package control

import (
	"bytes"
	"context"
	"strings"

	"github.com/panjf2000/gnet/v2"
	"github.com/panjf2000/gnet/v2/pkg/logging"
)

// maxLineLength bounds a command line still missing its newline
const maxLineLength = 4096

// Server serves the line protocol over gnet. Each line is one command and
// gets exactly one reply; "quit" closes the connection.
type Server struct {
	gnet.BuiltinEventEngine

	addr       string
	dispatcher *Dispatcher
	logger     logging.Logger

	eng   gnet.Engine
	ready chan struct{}
}

// ServerOption allows customizing the server
type ServerOption func(*Server)

// WithLogger routes gnet's own diagnostics, usually to a compat.GnetAdapter
func WithLogger(logger logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a control server for addr, a gnet protocol address such
// as "tcp://127.0.0.1:7070" or "unix:///run/svcd.sock"
func NewServer(addr string, d *Dispatcher, opts ...ServerOption) *Server {
	s := &Server{
		addr:       addr,
		dispatcher: d,
		ready:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve runs the gnet engine until Stop is called
func (s *Server) Serve() error {
	opts := []gnet.Option{gnet.WithMulticore(false)}
	if s.logger != nil {
		opts = append(opts, gnet.WithLogger(s.logger))
	}
	return gnet.Run(s, s.addr, opts...)
}

// Ready is closed once the engine is listening
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Stop shuts the engine down
func (s *Server) Stop(ctx context.Context) error {
	return s.eng.Stop(ctx)
}

// OnBoot keeps the engine for Stop
func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.eng = eng
	close(s.ready)
	return gnet.None
}

// OnOpen gives each connection its own line buffer
func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	c.SetContext(new(bytes.Buffer))
	return nil, gnet.None
}

// OnTraffic splits input into lines and submits each to the dispatcher.
// Replies are written asynchronously from the reactor goroutine in
// submission order.
func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	pending, ok := c.Context().(*bytes.Buffer)
	if !ok {
		return gnet.Close
	}

	data, err := c.Next(-1)
	if err != nil {
		return gnet.Close
	}
	pending.Write(data)

	for {
		i := bytes.IndexByte(pending.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(pending.Next(i+1)[:i]), "\r")
		if strings.TrimSpace(line) == "quit" {
			return gnet.Close
		}

		err := s.dispatcher.Submit(line, func(reply string) {
			if reply != "" {
				_ = c.AsyncWrite([]byte(reply), nil)
			}
		})
		if err != nil {
			_, _ = c.Write([]byte(replyError(err.Error())))
			return gnet.Close
		}
	}

	if pending.Len() > maxLineLength {
		_, _ = c.Write([]byte(replyError("line too long")))
		return gnet.Close
	}
	return gnet.None
}
