package compat

import (
	"fmt"
	"os"

	"github.com/lixenwraith/svclog"
)

// GnetAdapter implements gnet's logging.Logger on top of a multiplexer.
// gnet logs from its own event-loop goroutines, so every message is posted
// to the multiplexer's reactor rather than logged in place.
type GnetAdapter struct {
	mux          *svclog.Multiplexer
	poster       svclog.Poster
	tag          string
	fatalHandler func(msg string) // Customizable fatal behavior
}

// NewGnetAdapter creates a new gnet-compatible logger adapter
func NewGnetAdapter(mux *svclog.Multiplexer, poster svclog.Poster, opts ...GnetOption) *GnetAdapter {
	adapter := &GnetAdapter{
		mux:    mux,
		poster: poster,
		tag:    "gnet: ",
		fatalHandler: func(msg string) {
			os.Exit(1) // Default behavior matches gnet expectations
		},
	}

	for _, opt := range opts {
		opt(adapter)
	}

	return adapter
}

// GnetOption allows customizing adapter behavior
type GnetOption func(*GnetAdapter)

// WithFatalHandler sets a custom fatal handler
func WithFatalHandler(handler func(string)) GnetOption {
	return func(a *GnetAdapter) {
		a.fatalHandler = handler
	}
}

// WithGnetTag sets the text placed between the prefix and each message
func WithGnetTag(tag string) GnetOption {
	return func(a *GnetAdapter) {
		a.tag = tag
	}
}

// Debugf logs at debug level with printf-style formatting
func (a *GnetAdapter) Debugf(format string, args ...any) {
	a.logf(svclog.LevelDebug, format, args...)
}

// Infof logs at info level with printf-style formatting
func (a *GnetAdapter) Infof(format string, args ...any) {
	a.logf(svclog.LevelInfo, format, args...)
}

// Warnf logs at warn level with printf-style formatting
func (a *GnetAdapter) Warnf(format string, args ...any) {
	a.logf(svclog.LevelWarn, format, args...)
}

// Errorf logs at error level with printf-style formatting
func (a *GnetAdapter) Errorf(format string, args ...any) {
	a.logf(svclog.LevelError, format, args...)
}

// Fatalf logs at error level and triggers the fatal handler. The message is
// only queued; whether it is written before the handler runs depends on the
// reactor.
func (a *GnetAdapter) Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	post(a.poster, func() { a.mux.LogParts(svclog.LevelError, a.tag, "fatal: ", msg) })

	if a.fatalHandler != nil {
		a.fatalHandler(msg)
	}
}

func (a *GnetAdapter) logf(level int64, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	post(a.poster, func() { a.mux.LogParts(level, a.tag, msg) })
}

// post hands fn to the reactor. A closed reactor has nowhere to log to, so
// the message is dropped.
func post(p svclog.Poster, fn func()) {
	_ = p.Post(fn)
}
