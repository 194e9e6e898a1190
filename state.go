package svclog

import (
	"io"

	"github.com/davecgh/go-spew/spew"
)

// StreamStats is a snapshot of one stream
type StreamStats struct {
	Name          string `json:"name"`
	HasDest       bool   `json:"has_dest"`
	Capacity      int    `json:"capacity"`
	Pending       int    `json:"pending"`
	Free          int    `json:"free"`
	Partway       bool   `json:"partway"`
	Special       bool   `json:"special"`
	WatcherActive bool   `json:"watcher_active"`
	Impaired      bool   `json:"impaired"`
	LastError     string `json:"last_error,omitempty"`

	Discarded          bool   `json:"discarded"`
	DiscardedMessages  uint64 `json:"discarded_messages"`
	UnreportedDiscards uint64 `json:"unreported_discards"`
	BytesWritten       uint64 `json:"bytes_written"`
	MessagesWritten    uint64 `json:"messages_written"`
}

// Stats is a snapshot of the multiplexer
type Stats struct {
	ConsoleEnabled   bool        `json:"console_enabled"`
	ConsoleHandedOff bool        `json:"console_handed_off"`
	Level            string      `json:"level"`
	ConsoleLevel     string      `json:"console_level"`
	Main             StreamStats `json:"main"`
	Console          StreamStats `json:"console"`
}

// Stats returns a snapshot of the multiplexer state
func (m *Multiplexer) Stats() Stats {
	return Stats{
		ConsoleEnabled:   m.consoleEnabled,
		ConsoleHandedOff: m.consoleHandedOff,
		Level:            LevelName(m.cfg.Level),
		ConsoleLevel:     LevelName(m.cfg.ConsoleLevel),
		Main:             m.streams[Main].stats(),
		Console:          m.streams[Console].stats(),
	}
}

func (s *Stream) stats() StreamStats {
	st := StreamStats{
		Name:               s.dest.String(),
		HasDest:            s.desc != nil,
		Capacity:           s.buf.Cap(),
		Pending:            s.pending,
		Free:               s.buf.Free(),
		Partway:            s.partway,
		Special:            s.special || s.queuedSpecial != nil,
		WatcherActive:      s.watcherActive,
		Impaired:           s.impaired,
		Discarded:          s.discarded,
		DiscardedMessages:  s.totalDiscarded,
		UnreportedDiscards: s.discardCount,
		BytesWritten:       s.bytesWritten,
		MessagesWritten:    s.messagesWritten,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// dumpConfig prints stats without addresses so dumps are comparable
var dumpConfig = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// Dump writes a human-readable rendering of Stats to w
func (m *Multiplexer) Dump(w io.Writer) {
	dumpConfig.Fdump(w, m.Stats())
}
