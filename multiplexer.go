package svclog

import (
	"fmt"
	"os"

	"github.com/lixenwraith/svclog/sanitizer"
)

// Multiplexer routes log messages to the main log and the console without
// ever blocking the caller. It is bound to a single reactor goroutine: every
// method must run there, and other goroutines reach it through a Poster.
type Multiplexer struct {
	cfg     *Config
	reactor Reactor
	queue   ConsoleQueue
	streams [numDests]*Stream

	consoleEnabled   bool
	consoleHandedOff bool // console given to the queue, cleared on enable
	logCurrentLine   bool // the incremental line in progress passed its level check
	closed           bool

	sanitizer *sanitizer.Sanitizer
	parts     []string
}

// NewMultiplexer creates a multiplexer writing to console and, when main is
// non-nil, to a persistent log. Main is switched to non-blocking mode here;
// the console only when logging to it is enabled.
func NewMultiplexer(cfg *Config, r Reactor, console, main Descriptor) (*Multiplexer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmtErrorf("invalid configuration: %w", err)
	}
	if r == nil {
		return nil, fmtErrorf("reactor cannot be nil")
	}
	if console == nil {
		return nil, fmtErrorf("console descriptor cannot be nil")
	}
	if main != nil && main.Fd() == console.Fd() {
		return nil, fmtErrorf("main and console must use distinct descriptors (fd %d)", main.Fd())
	}

	m := &Multiplexer{
		cfg:     cfg.Clone(),
		reactor: r,
		// The console belongs to the supervisor until Init enables it
		consoleHandedOff: true,
	}
	m.rebuildSanitizer()

	capacity := int(cfg.BufferSize)
	m.streams[Console] = newStream(m, Console, console, capacity)
	if main != nil {
		if err := main.SetNonblock(true); err != nil {
			return nil, fmtErrorf("failed to set main log non-blocking: %w", err)
		}
		m.streams[Main] = newStream(m, Main, main, capacity)
	} else {
		m.streams[Main] = newStream(m, Main, nil, capacity)
	}

	return m, nil
}

// Init binds the console queue collaborator and enables console logging
func (m *Multiplexer) Init(q ConsoleQueue) {
	m.queue = q
	m.EnableConsoleLog(true)
}

// ApplyConfig replaces the configuration. The buffer size is fixed for the
// lifetime of the multiplexer and cannot change.
func (m *Multiplexer) ApplyConfig(cfg *Config) error {
	if cfg == nil {
		return fmtErrorf("configuration cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmtErrorf("invalid configuration: %w", err)
	}
	if cfg.BufferSize != m.cfg.BufferSize {
		return fmtErrorf("buffer_size cannot change after construction (%d -> %d)", m.cfg.BufferSize, cfg.BufferSize)
	}

	m.cfg = cfg.Clone()
	m.rebuildSanitizer()
	return nil
}

// GetConfig returns a copy of current configuration
func (m *Multiplexer) GetConfig() *Config {
	return m.cfg.Clone()
}

// Log queues prefix+msg+"\n" for every stream whose threshold level meets
func (m *Multiplexer) Log(level int64, msg string) {
	m.LogParts(level, msg)
}

// LogParts queues the concatenation of parts as a single message. Each stream
// receives the whole message or, when it does not fit, nothing.
func (m *Multiplexer) LogParts(level int64, parts ...string) {
	mainOK := level >= m.cfg.Level
	consoleOK := level >= m.cfg.ConsoleLevel
	if !mainOK && !consoleOK {
		return
	}

	msg := m.formatMessage(m.cfg.Prefix, parts...)
	if mainOK {
		m.streams[Main].enqueue(msg...)
	}
	if consoleOK {
		m.streams[Console].enqueue(msg...)
	}
}

// Logf formats according to a format specifier and logs the result
func (m *Multiplexer) Logf(level int64, format string, args ...any) {
	if level < m.cfg.Level && level < m.cfg.ConsoleLevel {
		return
	}
	m.LogParts(level, fmt.Sprintf(format, args...))
}

// Debug logs a message at debug level
func (m *Multiplexer) Debug(msg string) { m.Log(LevelDebug, msg) }

// Info logs a message at info level
func (m *Multiplexer) Info(msg string) { m.Log(LevelInfo, msg) }

// Warn logs a message at warning level
func (m *Multiplexer) Warn(msg string) { m.Log(LevelWarn, msg) }

// Error logs a message at error level
func (m *Multiplexer) Error(msg string) { m.Log(LevelError, msg) }

// LogServiceStarted reports a started service on both streams, unfiltered
func (m *Multiplexer) LogServiceStarted(name string) {
	m.logStatus(tagStarted, name)
}

// LogServiceFailed reports a failed service on both streams, unfiltered
func (m *Multiplexer) LogServiceFailed(name string) {
	m.logStatus(tagFailed, name)
}

// LogServiceStopped reports a stopped service on both streams, unfiltered
func (m *Multiplexer) LogServiceStopped(name string) {
	m.logStatus(tagStopped, name)
}

func (m *Multiplexer) logStatus(tag, name string) {
	msg := m.formatMessage(tag, name)
	m.streams[Main].enqueue(msg...)
	m.streams[Console].enqueue(msg...)
}

// LogMsgBegin starts a line written straight to the console, bypassing the
// buffer. The line is dropped entirely when level is below the main
// threshold, and each piece is dropped while console logging is disabled.
// Whatever the console will not take without blocking is lost.
func (m *Multiplexer) LogMsgBegin(level int64, text string) {
	m.logCurrentLine = level >= m.cfg.Level
	if m.logCurrentLine {
		m.writeConsoleDirect(m.cfg.Prefix, text)
	}
}

// LogMsgPart continues the line started by LogMsgBegin
func (m *Multiplexer) LogMsgPart(text string) {
	if m.logCurrentLine {
		m.writeConsoleDirect(text)
	}
}

// LogMsgEnd finishes the line started by LogMsgBegin
func (m *Multiplexer) LogMsgEnd(text string) {
	if m.logCurrentLine {
		m.writeConsoleDirect(text, "\n")
	}
	m.logCurrentLine = false
}

func (m *Multiplexer) writeConsoleDirect(parts ...string) {
	if !m.consoleEnabled {
		return
	}
	var p []byte
	for _, s := range parts {
		p = append(p, m.sanitize(s)...)
	}
	m.streams[Console].writeDirect(p)
}

// PostSpecial queues msg for dest ahead of regular data. The message goes
// out at the next message boundary and is never interleaved with others.
// msg must end with its only newline and must not be modified until written.
func (m *Multiplexer) PostSpecial(dest Dest, msg []byte) error {
	if dest < 0 || dest >= numDests {
		return fmtErrorf("invalid destination %d", dest)
	}
	return m.streams[dest].postSpecial(msg)
}

// Close stops both streams and puts their descriptors back in blocking mode.
// Whatever is still buffered is dropped, so drain the reactor first. The
// console queue is not pulled. Logging after Close only fills the buffers.
func (m *Multiplexer) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.consoleEnabled = false
	m.consoleHandedOff = true

	var err error
	for _, s := range m.streams {
		s.deactivateWatcher()
		if s.desc == nil {
			continue
		}
		if e := s.desc.SetNonblock(false); e != nil {
			err = combineErrors(err, fmtErrorf("failed to restore %s blocking mode: %w", s.dest, e))
		}
	}
	return err
}

// destActive reports whether a stream may currently drain
func (m *Multiplexer) destActive(d Dest) bool {
	if m.closed {
		return false
	}
	if d == Console {
		return m.consoleEnabled
	}
	return m.streams[Main].desc != nil
}

// internalLog writes a diagnostic about the multiplexer itself to stderr
func (m *Multiplexer) internalLog(format string, args ...any) {
	if m.cfg == nil || !m.cfg.InternalErrorsToStderr {
		return
	}
	fmt.Fprintf(os.Stderr, "svclog: "+format, args...)
}
