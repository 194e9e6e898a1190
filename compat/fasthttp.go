package compat

import (
	"fmt"
	"strings"

	"github.com/lixenwraith/svclog"
)

// FastHTTPAdapter implements fasthttp's Logger interface on top of a
// multiplexer, posting each message to the reactor
type FastHTTPAdapter struct {
	mux           *svclog.Multiplexer
	poster        svclog.Poster
	tag           string
	defaultLevel  int64
	levelDetector func(string) int64 // Function to detect log level from message
}

// NewFastHTTPAdapter creates a new fasthttp-compatible logger adapter
func NewFastHTTPAdapter(mux *svclog.Multiplexer, poster svclog.Poster, opts ...FastHTTPOption) *FastHTTPAdapter {
	adapter := &FastHTTPAdapter{
		mux:           mux,
		poster:        poster,
		tag:           "http: ",
		defaultLevel:  svclog.LevelInfo,
		levelDetector: DetectLogLevel, // Default level detection
	}

	for _, opt := range opts {
		opt(adapter)
	}

	return adapter
}

// FastHTTPOption allows customizing adapter behavior
type FastHTTPOption func(*FastHTTPAdapter)

// WithDefaultLevel sets the log level used when detection finds nothing
func WithDefaultLevel(level int64) FastHTTPOption {
	return func(a *FastHTTPAdapter) {
		a.defaultLevel = level
	}
}

// WithLevelDetector sets a custom function to detect log level from message
// content. A nil detector logs everything at the default level.
func WithLevelDetector(detector func(string) int64) FastHTTPOption {
	return func(a *FastHTTPAdapter) {
		a.levelDetector = detector
	}
}

// WithFastHTTPTag sets the text placed between the prefix and each message
func WithFastHTTPTag(tag string) FastHTTPOption {
	return func(a *FastHTTPAdapter) {
		a.tag = tag
	}
}

// Printf implements fasthttp's Logger interface
func (a *FastHTTPAdapter) Printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	level := a.defaultLevel
	if a.levelDetector != nil {
		if detected, ok := a.detect(msg); ok {
			level = detected
		}
	}

	post(a.poster, func() { a.mux.LogParts(level, a.tag, msg) })
}

func (a *FastHTTPAdapter) detect(msg string) (int64, bool) {
	level := a.levelDetector(msg)
	return level, level != levelUnknown
}

// levelUnknown is returned by DetectLogLevel when no keyword matches
const levelUnknown int64 = -1 << 63

// DetectLogLevel guesses the level of a message from its keywords
func DetectLogLevel(msg string) int64 {
	msgLower := strings.ToLower(msg)

	// Check for error indicators
	if strings.Contains(msgLower, "error") ||
		strings.Contains(msgLower, "failed") ||
		strings.Contains(msgLower, "fatal") ||
		strings.Contains(msgLower, "panic") {
		return svclog.LevelError
	}

	// Check for warning indicators
	if strings.Contains(msgLower, "warn") ||
		strings.Contains(msgLower, "deprecated") {
		return svclog.LevelWarn
	}

	// Check for debug indicators
	if strings.Contains(msgLower, "debug") ||
		strings.Contains(msgLower, "trace") {
		return svclog.LevelDebug
	}

	return levelUnknown
}
