package compat

import (
	"fmt"

	"github.com/lixenwraith/svclog"
)

// Builder creates logger adapters for gnet and fasthttp that share one
// multiplexer and the poster of the reactor it runs on
type Builder struct {
	mux    *svclog.Multiplexer
	poster svclog.Poster
	err    error
}

// NewBuilder creates a new adapter builder
func NewBuilder() *Builder {
	return &Builder{}
}

// WithMultiplexer specifies the multiplexer the adapters log into
func (b *Builder) WithMultiplexer(m *svclog.Multiplexer) *Builder {
	if m == nil {
		b.err = fmt.Errorf("svclog/compat: provided multiplexer cannot be nil")
		return b
	}
	b.mux = m
	return b
}

// WithPoster specifies how adapters hop onto the multiplexer's reactor.
// reactor.Loop is the usual poster.
func (b *Builder) WithPoster(p svclog.Poster) *Builder {
	if p == nil {
		b.err = fmt.Errorf("svclog/compat: provided poster cannot be nil")
		return b
	}
	b.poster = p
	return b
}

func (b *Builder) check() error {
	if b.err != nil {
		return b.err
	}
	if b.mux == nil {
		return fmt.Errorf("svclog/compat: multiplexer not set")
	}
	if b.poster == nil {
		return fmt.Errorf("svclog/compat: poster not set")
	}
	return nil
}

// BuildGnet creates a gnet adapter
func (b *Builder) BuildGnet(opts ...GnetOption) (*GnetAdapter, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	return NewGnetAdapter(b.mux, b.poster, opts...), nil
}

// BuildFastHTTP creates a fasthttp adapter
func (b *Builder) BuildFastHTTP(opts ...FastHTTPOption) (*FastHTTPAdapter, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	return NewFastHTTPAdapter(b.mux, b.poster, opts...), nil
}

// --- Example Usage ---
//
//	loop, _ := reactor.New()
//	mux, _ := svclog.NewBuilder().Reactor(loop).Console(reactor.Stdout).Build()
//
//	builder := compat.NewBuilder().WithMultiplexer(mux).WithPoster(loop)
//
//	gnetLogger, err := builder.BuildGnet()
//	if err != nil { /* handle error */ }
//	go gnet.Run(events, "tcp://:9000", gnet.WithLogger(gnetLogger))
//
//	fasthttpLogger, err := builder.BuildFastHTTP()
//	if err != nil { /* handle error */ }
//	server := &fasthttp.Server{Handler: handler, Logger: fasthttpLogger}
