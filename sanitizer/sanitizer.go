// Package sanitizer provides a fluent and composable interface for sanitizing
// log text based on configurable rules using bitwise filter flags and
// transforms. The multiplexer uses it to keep every buffered message on a
// single line, so that a newline inside caller text can never create a
// message boundary of its own.
//
// Input that is not valid UTF-8 is never rewritten: invalid bytes are copied
// through unchanged under every policy.
package sanitizer

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"unicode"
	"unicode/utf8"
)

// Filter flags for character matching
const (
	FilterNonPrintable uint64 = 1 << iota // Matches runes not classified as printable by strconv.IsPrint
	FilterControl                         // Matches control characters (unicode.IsControl)
	FilterLineBreak                       // Matches '\n' and '\r'
)

// Transform flags for character transformation
const (
	TransformStrip     uint64 = 1 << iota // Removes the character
	TransformHexEncode                    // Encodes the character's UTF-8 bytes as "<XXYY>"
	TransformEscape                       // Escapes the character C-style (e.g., '\n', '\x00')
)

// PolicyPreset defines pre-configured sanitization policies
type PolicyPreset string

const (
	PolicyRaw    PolicyPreset = "raw"    // Raw is a no-op (passthrough)
	PolicyLines  PolicyPreset = "lines"  // Backslash-escape line breaks only, the default
	PolicyTxt    PolicyPreset = "txt"    // Hex-encode anything unprintable
	PolicyEscape PolicyPreset = "escape" // Backslash-escape control characters
	PolicyStrip  PolicyPreset = "strip"  // Drop control characters entirely
)

// rule represents a single sanitization rule
type rule struct {
	filter    uint64
	transform uint64
}

// policyRules contains pre-configured rules for each policy
var policyRules = map[PolicyPreset][]rule{
	PolicyRaw:    {},
	PolicyLines:  {{filter: FilterLineBreak, transform: TransformEscape}},
	PolicyTxt:    {{filter: FilterNonPrintable, transform: TransformHexEncode}},
	PolicyEscape: {{filter: FilterControl, transform: TransformEscape}},
	PolicyStrip:  {{filter: FilterControl, transform: TransformStrip}},
}

// filterOrder fixes the evaluation order of individual filter flags
var filterOrder = []uint64{FilterNonPrintable, FilterControl, FilterLineBreak}

// filterCheckers maps individual filter flags to their check functions
var filterCheckers = map[uint64]func(rune) bool{
	FilterNonPrintable: func(r rune) bool { return !strconv.IsPrint(r) },
	FilterControl:      unicode.IsControl,
	FilterLineBreak:    func(r rune) bool { return r == '\n' || r == '\r' },
}

// Valid reports whether p names a known policy
func (p PolicyPreset) Valid() bool {
	_, ok := policyRules[p]
	return ok
}

// Sanitizer provides chainable text sanitization. A Sanitizer reuses an
// internal buffer and is not safe for concurrent use.
type Sanitizer struct {
	rules []rule
	buf   []byte
}

// New creates a new Sanitizer instance
func New() *Sanitizer {
	return &Sanitizer{
		rules: []rule{},
		buf:   make([]byte, 0, 256),
	}
}

// Policy applies a pre-configured policy to the sanitizer (appended, rules
// of earlier policies apply first)
func (s *Sanitizer) Policy(preset PolicyPreset) *Sanitizer {
	if rules, ok := policyRules[preset]; ok {
		s.rules = append(s.rules, rules...)
	}
	return s
}

// Sanitize applies all configured rules to the input string. Input that no
// rule touches is returned as is without copying.
func (s *Sanitizer) Sanitize(data string) string {
	if !s.needsWork(data) {
		return data
	}

	s.buf = s.buf[:0]

	for i, r := range data {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(data[i:]); size == 1 {
				s.buf = append(s.buf, data[i])
				continue
			}
		}
		matched := false
		// First match wins
		for _, rl := range s.rules {
			if matchesFilter(r, rl.filter) {
				applyTransform(&s.buf, r, rl.transform)
				matched = true
				break
			}
		}
		if !matched {
			s.buf = utf8.AppendRune(s.buf, r)
		}
	}

	return string(s.buf)
}

// needsWork reports whether any rune of data matches any rule
func (s *Sanitizer) needsWork(data string) bool {
	if len(s.rules) == 0 {
		return false
	}
	for i, r := range data {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(data[i:]); size == 1 {
				continue
			}
		}
		for _, rl := range s.rules {
			if matchesFilter(r, rl.filter) {
				return true
			}
		}
	}
	return false
}

// matchesFilter checks if a rune matches any filter in the mask
func matchesFilter(r rune, filterMask uint64) bool {
	for _, flag := range filterOrder {
		if (filterMask&flag) != 0 && filterCheckers[flag](r) {
			return true
		}
	}
	return false
}

// applyTransform applies the specified transform to the buffer
func applyTransform(buf *[]byte, r rune, transformMask uint64) {
	switch {
	case (transformMask & TransformStrip) != 0:
		// Do nothing (strip)

	case (transformMask & TransformHexEncode) != 0:
		var runeBytes [utf8.UTFMax]byte
		n := utf8.EncodeRune(runeBytes[:], r)
		*buf = append(*buf, '<')
		*buf = append(*buf, hex.EncodeToString(runeBytes[:n])...)
		*buf = append(*buf, '>')

	case (transformMask & TransformEscape) != 0:
		switch r {
		case '\n':
			*buf = append(*buf, '\\', 'n')
		case '\r':
			*buf = append(*buf, '\\', 'r')
		case '\t':
			*buf = append(*buf, '\\', 't')
		case '\b':
			*buf = append(*buf, '\\', 'b')
		case '\f':
			*buf = append(*buf, '\\', 'f')
		default:
			if r < 0x100 {
				*buf = append(*buf, fmt.Sprintf("\\x%02x", r)...)
			} else {
				*buf = append(*buf, fmt.Sprintf("\\u%04x", r)...)
			}
		}

	default:
		*buf = utf8.AppendRune(*buf, r)
	}
}
