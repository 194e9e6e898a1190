package svclog

import (
	"bytes"

	"github.com/lixenwraith/svclog/ringbuf"
)

// Stream is one output destination: a ring buffer of complete messages, the
// accounting of what is still owed to the descriptor, and the state of the
// write in progress. All methods run on the reactor goroutine.
//
// A Stream is idle while its watcher is inactive. Once active it drains
// either a special message (special is set) or the ring buffer, one write
// per readiness notification.
type Stream struct {
	mux  *Multiplexer
	dest Dest
	desc Descriptor
	buf  *ringbuf.Buffer

	pending int  // enqueued bytes not yet written, always buf.Used()
	partway bool // a message has been started but its newline not yet written

	discarded      bool   // at least one message was dropped
	discardCount   uint64 // drops not yet reported
	totalDiscarded uint64

	special         bool // draining specialBuf instead of the ring
	specialBuf      []byte
	specialCursor   int
	specialIsReport bool
	queuedSpecial   []byte // waits for the next message boundary
	reportBuf       []byte

	watcherActive bool
	impaired      bool
	lastErr       error

	bytesWritten    uint64
	messagesWritten uint64
}

func newStream(m *Multiplexer, dest Dest, desc Descriptor, capacity int) *Stream {
	return &Stream{
		mux:  m,
		dest: dest,
		desc: desc,
		buf:  ringbuf.New(capacity),
	}
}

// OnWritable is the write-readiness callback. It performs at most one write
// and then yields back to the reactor.
func (s *Stream) OnWritable() {
	if s.impaired || s.desc == nil {
		s.deactivateWatcher()
		return
	}

	if !s.special && !s.partway {
		s.promoteSpecial()
	}

	if s.special {
		s.writeSpecial()
		return
	}
	s.writeRegular()
}

// writeSpecial drains the out-of-band message up to and including its newline
func (s *Stream) writeSpecial() {
	start := s.specialCursor
	end := start + bytes.IndexByte(s.specialBuf[start:], '\n')

	n, err := s.desc.Write(s.specialBuf[start : end+1])
	if err != nil {
		if !isWouldBlock(err) {
			s.impair(err)
		}
		return
	}
	s.bytesWritten += uint64(n)

	if start+n > end {
		s.special = false
		s.partway = false
		s.specialCursor = 0
		s.specialBuf = nil
		s.specialIsReport = false
		s.messagesWritten++
		s.afterMessage()
		return
	}

	s.specialCursor += n
	if n > 0 {
		s.partway = true
	}
}

// writeRegular drains the ring buffer, stopping at the first message boundary
// or at the physical end of storage, whichever comes first
func (s *Stream) writeRegular() {
	if s.pending == 0 {
		s.mux.release(s)
		return
	}

	span := s.buf.ContiguousSpan(0)
	length := len(span)
	boundary := false
	if i := bytes.IndexByte(span, '\n'); i >= 0 {
		length = i + 1
		boundary = true
	}

	n, err := s.desc.Write(span[:length])
	if err != nil {
		if !isWouldBlock(err) {
			s.impair(err)
		}
		return
	}

	s.buf.Consume(n)
	s.pending -= n
	s.bytesWritten += uint64(n)

	if n == length && boundary {
		s.partway = false
		s.messagesWritten++
		s.afterMessage()
		return
	}
	if n > 0 {
		s.partway = true
	}
}

// afterMessage runs at every message boundary reached by a write
func (s *Stream) afterMessage() {
	if (s.pending == 0 && !s.hasOwedSpecial()) || !s.mux.destActive(s.dest) {
		s.mux.release(s)
	}
}

// promoteSpecial starts a queued special message, or an owed discard report,
// in place of regular data. Callers ensure no message is partway.
func (s *Stream) promoteSpecial() {
	if s.queuedSpecial != nil {
		s.startSpecial(s.queuedSpecial, false)
		s.queuedSpecial = nil
		return
	}
	if s.discardCount > 0 && s.mux.cfg.ReportDiscards {
		s.reportBuf = s.mux.appendDiscardReport(s.reportBuf[:0], s.discardCount)
		s.discardCount = 0
		s.startSpecial(s.reportBuf, true)
	}
}

func (s *Stream) startSpecial(msg []byte, isReport bool) {
	s.special = true
	s.specialBuf = msg
	s.specialCursor = 0
	s.specialIsReport = isReport
}

// hasOwedSpecial reports whether a special message is waiting for a boundary
func (s *Stream) hasOwedSpecial() bool {
	return s.queuedSpecial != nil || (s.discardCount > 0 && s.mux.cfg.ReportDiscards)
}

// enqueue appends parts as one message, or drops the whole message when it
// does not fit. Returns whether the message was accepted.
func (s *Stream) enqueue(parts ...string) bool {
	if s.desc == nil {
		return false
	}
	if s.impaired {
		s.noteDiscard()
		return false
	}

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	if total > s.buf.Free() {
		s.noteDiscard()
		return false
	}

	for _, p := range parts {
		s.buf.AppendString(p)
	}

	wasEmpty := s.pending == 0
	s.pending += total
	if wasEmpty && s.mux.destActive(s.dest) {
		s.activateWatcher()
	}
	return true
}

// noteDiscard records a dropped message
func (s *Stream) noteDiscard() {
	s.discarded = true
	s.discardCount++
	s.totalDiscarded++

	// An oversized message can be dropped with nothing buffered; the report
	// still needs a notification to go out
	if !s.impaired && s.mux.cfg.ReportDiscards && s.mux.destActive(s.dest) {
		s.activateWatcher()
	}
}

// postSpecial queues an out-of-band message for delivery at the next boundary.
// msg is not copied and must stay unmodified until written.
func (s *Stream) postSpecial(msg []byte) error {
	if s.desc == nil {
		return ErrNoDestination
	}
	if s.impaired {
		return ErrStreamImpaired
	}
	if len(msg) == 0 || bytes.IndexByte(msg, '\n') != len(msg)-1 {
		return ErrMalformedSpecial
	}
	if s.queuedSpecial != nil || (s.special && !s.specialIsReport) {
		return ErrSpecialBusy
	}

	s.queuedSpecial = msg
	if s.mux.destActive(s.dest) {
		s.activateWatcher()
	}
	return nil
}

// writeDirect writes p immediately, bypassing the ring buffer. It never
// blocks: whatever the descriptor will not take right now is dropped.
func (s *Stream) writeDirect(p []byte) {
	if s.impaired || s.desc == nil {
		return
	}
	for len(p) > 0 {
		n, err := s.desc.Write(p)
		if err != nil {
			if !isWouldBlock(err) {
				s.impair(err)
			}
			return
		}
		if n <= 0 {
			return
		}
		s.bytesWritten += uint64(n)
		p = p[n:]
	}
}

// impair takes the stream out of service after a fatal write error
func (s *Stream) impair(err error) {
	s.impaired = true
	s.lastErr = err
	s.partway = false
	s.special = false
	s.queuedSpecial = nil
	s.mux.internalLog("%s stream impaired, writes stopped: %v\n", s.dest, err)
	s.mux.release(s)
}

func (s *Stream) activateWatcher() {
	if s.watcherActive || s.impaired || s.desc == nil {
		return
	}
	s.mux.reactor.ActivateWatcher(s.desc.Fd(), s.OnWritable)
	s.watcherActive = true
}

func (s *Stream) deactivateWatcher() {
	if !s.watcherActive {
		return
	}
	s.mux.reactor.DeactivateWatcher(s.desc.Fd())
	s.watcherActive = false
}
