// Package control exposes a running multiplexer to operators: a line
// protocol served over TCP or a unix socket, and a small HTTP status API.
// Both run on their own goroutines and reach the multiplexer only by posting
// to its reactor.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lixenwraith/svclog"
)

// ErrDropped reports a command whose reactor closed before running it
var ErrDropped = errors.New("control: reactor closed before the command ran")

// doner is implemented by posters that can say they will run nothing more,
// such as reactor.Loop
type doner interface {
	Done() <-chan struct{}
}

// Dispatcher parses and executes control commands
type Dispatcher struct {
	mux    *svclog.Multiplexer
	poster svclog.Poster
}

// NewDispatcher creates a dispatcher for mux, reached through poster
func NewDispatcher(mux *svclog.Multiplexer, poster svclog.Poster) *Dispatcher {
	return &Dispatcher{mux: mux, poster: poster}
}

const helpText = `commands:
  console on|off
  log <debug|info|warn|error> <text>
  started|failed|stopped <name>
  special <text>
  level <main|console> <level>
  stats
  dump
  help
  quit (socket only)
`

// Submit runs line on the reactor goroutine and passes the reply to done,
// also on the reactor goroutine
func (d *Dispatcher) Submit(line string, done func(reply string)) error {
	return d.poster.Post(func() {
		done(d.Execute(line))
	})
}

// Call runs line on the reactor goroutine and waits for the reply, until ctx
// is done or the poster reports that it closed
func (d *Dispatcher) Call(ctx context.Context, line string) (string, error) {
	replyCh := make(chan string, 1)
	if err := d.Submit(line, func(reply string) { replyCh <- reply }); err != nil {
		return "", err
	}

	var closed <-chan struct{}
	if dn, ok := d.poster.(doner); ok {
		closed = dn.Done()
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-closed:
		// The closure may have run just before the close
		select {
		case reply := <-replyCh:
			return reply, nil
		default:
			return "", ErrDropped
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Execute runs one command. Must be called on the reactor goroutine.
// Every reply ends with a newline.
func (d *Dispatcher) Execute(line string) string {
	cmd, rest := splitWord(strings.TrimSpace(line))

	switch strings.ToLower(cmd) {
	case "":
		return ""

	case "help":
		return helpText

	case "console":
		switch strings.ToLower(rest) {
		case "on":
			d.mux.EnableConsoleLog(true)
		case "off":
			d.mux.EnableConsoleLog(false)
		default:
			return replyError("usage: console on|off")
		}
		return replyOK

	case "log":
		levelStr, text := splitWord(rest)
		level, err := svclog.Level(levelStr)
		if err != nil {
			return replyError(err.Error())
		}
		if text == "" {
			return replyError("usage: log <level> <text>")
		}
		d.mux.Log(level, text)
		return replyOK

	case "started", "failed", "stopped":
		if rest == "" {
			return replyError("usage: " + cmd + " <name>")
		}
		switch strings.ToLower(cmd) {
		case "started":
			d.mux.LogServiceStarted(rest)
		case "failed":
			d.mux.LogServiceFailed(rest)
		default:
			d.mux.LogServiceStopped(rest)
		}
		return replyOK

	case "special":
		if rest == "" {
			return replyError("usage: special <text>")
		}
		// The multiplexer keeps the slice until written, so it must be our own
		msg := []byte(rest + "\n")
		if err := d.mux.PostSpecial(svclog.Console, msg); err != nil {
			return replyError(err.Error())
		}
		return replyOK

	case "level":
		dest, levelStr := splitWord(rest)
		var key string
		switch strings.ToLower(dest) {
		case "main":
			key = "level"
		case "console":
			key = "console_level"
		default:
			return replyError("usage: level <main|console> <level>")
		}
		if err := d.mux.ApplyOverride(key + "=" + levelStr); err != nil {
			return replyError(err.Error())
		}
		return replyOK

	case "stats":
		data, err := json.Marshal(d.mux.Stats())
		if err != nil {
			return replyError(err.Error())
		}
		return string(data) + "\n"

	case "dump":
		var buf bytes.Buffer
		d.mux.Dump(&buf)
		return buf.String()

	default:
		return replyError(fmt.Sprintf("unknown command %q, try help", cmd))
	}
}

const replyOK = "ok\n"

// replyError formats a single-line error reply
func replyError(msg string) string {
	msg = strings.TrimPrefix(msg, "svclog: ")
	return "error: " + strings.ReplaceAll(msg, "\n", " ") + "\n"
}

// splitWord splits off the first space-separated word
func splitWord(s string) (string, string) {
	word, rest, _ := strings.Cut(s, " ")
	return word, strings.TrimSpace(rest)
}
