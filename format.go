package svclog

import (
	"strconv"

	"github.com/lixenwraith/svclog/sanitizer"
)

// formatMessage assembles head, the sanitized parts and the terminating
// newline into the scratch part list handed to Stream.enqueue. The returned
// slice is only valid until the next call.
func (m *Multiplexer) formatMessage(head string, parts ...string) []string {
	m.parts = m.parts[:0]
	m.parts = append(m.parts, head)
	for _, p := range parts {
		m.parts = append(m.parts, m.sanitize(p))
	}
	m.parts = append(m.parts, "\n")
	return m.parts
}

// sanitize keeps caller text on one line when sanitization is enabled
func (m *Multiplexer) sanitize(text string) string {
	if m.sanitizer == nil {
		return text
	}
	return m.sanitizer.Sanitize(text)
}

// rebuildSanitizer follows the Sanitize and SanitizePolicy settings
func (m *Multiplexer) rebuildSanitizer() {
	policy := sanitizer.PolicyPreset(m.cfg.SanitizePolicy)
	if !m.cfg.Sanitize || policy == sanitizer.PolicyRaw {
		m.sanitizer = nil
		return
	}
	m.sanitizer = sanitizer.New().Policy(policy)
}

// appendDiscardReport appends the discard notice for count dropped messages
func (m *Multiplexer) appendDiscardReport(buf []byte, count uint64) []byte {
	buf = append(buf, m.cfg.Prefix...)
	buf = strconv.AppendUint(buf, count, 10)
	if count == 1 {
		buf = append(buf, " log message discarded\n"...)
	} else {
		buf = append(buf, " log messages discarded\n"...)
	}
	return buf
}
