package svclog

// Log level constants
const (
	LevelDebug int64 = -4
	LevelInfo  int64 = 0
	LevelWarn  int64 = 4
	LevelError int64 = 8
)

// Dest identifies one of the two output streams
type Dest int

// Destinations
const (
	Main    Dest = iota // persistent log facility
	Console             // shared console, subject to arbitration
	numDests
)

// String returns the destination name
func (d Dest) String() string {
	switch d {
	case Main:
		return "main"
	case Console:
		return "console"
	default:
		return "unknown"
	}
}

// Fixed-format status tags
const (
	tagStarted = "[  OK  ] "
	tagFailed  = "[FAILED] "
	tagStopped = "[STOPPD] "
)

// Buffer limits
const (
	minBufferSize int64 = 64
	maxBufferSize int64 = 16 * 1024 * 1024
)
