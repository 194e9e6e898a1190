package svclog

// Builder provides a fluent API for assembling a multiplexer.
// It wraps a Config instance plus the destinations and collaborators.
type Builder struct {
	cfg     *Config
	reactor Reactor
	console Descriptor
	main    Descriptor
	queue   ConsoleQueue
	err     error // Accumulate errors for deferred handling
}

// NewBuilder creates a new builder with default configuration values.
func NewBuilder() *Builder {
	return &Builder{
		cfg: DefaultConfig(),
	}
}

// Build creates the multiplexer and enables console logging.
func (b *Builder) Build() (*Multiplexer, error) {
	if b.err != nil {
		return nil, b.err
	}

	m, err := NewMultiplexer(b.cfg, b.reactor, b.console, b.main)
	if err != nil {
		return nil, err
	}
	m.Init(b.queue)
	return m, nil
}

// Config replaces the whole configuration.
func (b *Builder) Config(cfg *Config) *Builder {
	if cfg == nil {
		b.err = fmtErrorf("configuration cannot be nil")
		return b
	}
	b.cfg = cfg.Clone()
	return b
}

// Reactor sets the event loop delivering readiness notifications.
func (b *Builder) Reactor(r Reactor) *Builder {
	b.reactor = r
	return b
}

// Console sets the console descriptor.
func (b *Builder) Console(d Descriptor) *Builder {
	b.console = d
	return b
}

// Main sets the persistent log descriptor.
func (b *Builder) Main(d Descriptor) *Builder {
	b.main = d
	return b
}

// ConsoleQueue sets the collaborator receiving the released console.
func (b *Builder) ConsoleQueue(q ConsoleQueue) *Builder {
	b.queue = q
	return b
}

// Level sets the main log threshold.
func (b *Builder) Level(level int64) *Builder {
	b.cfg.Level = level
	return b
}

// LevelString sets the main log threshold from a string.
func (b *Builder) LevelString(level string) *Builder {
	if b.err != nil {
		return b
	}
	levelVal, err := Level(level)
	if err != nil {
		b.err = err
		return b
	}
	b.cfg.Level = levelVal
	return b
}

// ConsoleLevel sets the console threshold.
func (b *Builder) ConsoleLevel(level int64) *Builder {
	b.cfg.ConsoleLevel = level
	return b
}

// ConsoleLevelString sets the console threshold from a string.
func (b *Builder) ConsoleLevelString(level string) *Builder {
	if b.err != nil {
		return b
	}
	levelVal, err := Level(level)
	if err != nil {
		b.err = err
		return b
	}
	b.cfg.ConsoleLevel = levelVal
	return b
}

// Prefix sets the text prepended to every logged message.
func (b *Builder) Prefix(prefix string) *Builder {
	b.cfg.Prefix = prefix
	return b
}

// Sanitize toggles rewriting of message text with the configured policy.
func (b *Builder) Sanitize(enable bool) *Builder {
	b.cfg.Sanitize = enable
	return b
}

// BufferSize sets the per-stream ring capacity in bytes.
func (b *Builder) BufferSize(size int64) *Builder {
	b.cfg.BufferSize = size
	return b
}

// ReportDiscards toggles the discard notice.
func (b *Builder) ReportDiscards(enable bool) *Builder {
	b.cfg.ReportDiscards = enable
	return b
}

// Example usage:
// mux, err := svclog.NewBuilder().
//
//	Reactor(loop).
//	Console(reactor.Stdout).
//	Main(logFD).
//	LevelString("info").
//	ConsoleQueue(queue).
//	Build()
//
// if err == nil {
//
//	mux.LogServiceStarted("network")
//
// }
