package svclog

// EnableConsoleLog gives the console to the multiplexer or takes it away.
//
// Enabling switches the console to non-blocking mode and resumes draining
// anything buffered. Disabling flushes what it can without blocking and then
// releases the console, unless a message was left partway: in that case the
// release happens once that message has been written out.
func (m *Multiplexer) EnableConsoleLog(enable bool) {
	cons := m.streams[Console]

	if enable {
		if m.consoleEnabled || m.closed {
			return
		}
		if err := cons.desc.SetNonblock(true); err != nil {
			m.internalLog("failed to set console non-blocking: %v\n", err)
		}
		m.consoleEnabled = true
		m.consoleHandedOff = false
		if cons.pending > 0 || cons.hasOwedSpecial() || cons.special {
			cons.activateWatcher()
		}
		return
	}

	if !m.consoleEnabled {
		return
	}
	m.consoleEnabled = false

	if cons.partway {
		// The watcher keeps running and releases at the next boundary
		return
	}
	if cons.pending > 0 || cons.hasOwedSpecial() {
		cons.OnWritable()
	}
	// The queue may have handed the console straight back during the flush
	if !cons.partway && !m.consoleEnabled {
		m.release(cons)
	}
}

// ConsoleEnabled reports whether console logging is enabled
func (m *Multiplexer) ConsoleEnabled() bool {
	return m.consoleEnabled
}

// release stops draining s. Releasing the console while logging to it is
// disabled also restores blocking mode and hands the console to the queue,
// once per disable.
func (m *Multiplexer) release(s *Stream) {
	s.deactivateWatcher()

	if s.dest != Console || m.consoleEnabled || m.consoleHandedOff {
		return
	}

	if err := s.desc.SetNonblock(false); err != nil {
		m.internalLog("failed to restore console blocking mode: %v\n", err)
	}
	m.consoleHandedOff = true
	if m.queue != nil {
		m.queue.PullConsoleQueue()
	}
}
