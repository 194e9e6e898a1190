// svcd is a small supervisor front end around the log multiplexer. It owns
// the console and a persistent log, accepts control commands over a gnet
// socket and optionally serves a fasthttp status API.
//
// Try it:
//
//	svcd --main-log /tmp/svcd.log --http 127.0.0.1:7071 &
//	printf 'started network\nconsole off\n' | nc 127.0.0.1 7070
//	curl -X POST '127.0.0.1:7071/console?enable=true'
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/lixenwraith/svclog"
	"github.com/lixenwraith/svclog/compat"
	"github.com/lixenwraith/svclog/control"
	"github.com/lixenwraith/svclog/reactor"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "svcd: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	controlAddr string
	httpAddr    string
	consoleHold time.Duration
	drainWait   time.Duration
}

func run() error {
	var opts options

	flagSet := pflag.NewFlagSet("svcd", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "TOML config file ([log] section)")
	flagSet.StringVar(&opts.controlAddr, "control", "tcp://127.0.0.1:7070", "control socket, gnet protocol address")
	flagSet.StringVar(&opts.httpAddr, "http", "", "status API listen address (disabled when empty)")
	flagSet.DurationVar(&opts.consoleHold, "console-hold", 0, "give the console back this long after releasing it (0 keeps it released)")
	flagSet.DurationVar(&opts.drainWait, "drain-wait", 500*time.Millisecond, "how long to keep flushing buffered logs on exit")
	flagSet.String("level", "", "main log level (debug, info, warn, error)")
	flagSet.String("console-level", "", "console level (debug, info, warn, error)")
	flagSet.String("prefix", "", "text prepended to every message")
	flagSet.String("main-log", "", "persistent log file (disabled when empty)")
	flagSet.String("console", "", "console target: stdout or stderr")
	flagSet.Int64("buffer-size", 0, "per-stream buffer size in bytes")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := loadConfig(opts.configPath, flagSet)
	if err != nil {
		return err
	}

	loop, err := reactor.New()
	if err != nil {
		return err
	}
	defer loop.Close()

	console := reactor.Stdout
	if cfg.ConsoleTarget == "stderr" {
		console = reactor.Stderr
	}

	builder := svclog.NewBuilder().Config(cfg).Reactor(loop).Console(console)
	if cfg.MainLog != "" {
		mainLog, err := reactor.OpenAppend(cfg.MainLog)
		if err != nil {
			return err
		}
		defer mainLog.Close()
		builder.Main(mainLog)
	}

	queue := &consoleQueue{loop: loop, hold: opts.consoleHold}
	mux, err := builder.ConsoleQueue(queue).Build()
	if err != nil {
		return err
	}
	queue.mux = mux

	adapters := compat.NewBuilder().WithMultiplexer(mux).WithPoster(loop)
	gnetLogger, err := adapters.BuildGnet(compat.WithFatalHandler(func(msg string) {
		_ = loop.Stop()
	}))
	if err != nil {
		return err
	}

	dispatcher := control.NewDispatcher(mux, loop)
	ctlServer := control.NewServer(opts.controlAddr, dispatcher, control.WithLogger(gnetLogger))
	ctlDone := make(chan error, 1)
	go func() { ctlDone <- ctlServer.Serve() }()

	var httpServer *control.HTTPServer
	httpDone := make(chan error, 1)
	if opts.httpAddr != "" {
		httpLogger, err := adapters.BuildFastHTTP()
		if err != nil {
			return err
		}
		httpServer = control.NewHTTPServer(dispatcher, httpLogger)
		go func() { httpDone <- httpServer.ListenAndServe(opts.httpAddr) }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux.LogServiceStarted("svcd")
	mux.Logf(svclog.LevelInfo, "control on %s", opts.controlAddr)

	// A server that fails to start ends the loop
	go func() {
		var err error
		select {
		case err = <-ctlDone:
		case err = <-httpDone:
		case <-ctx.Done():
			return
		}
		if err != nil {
			_ = loop.Post(func() { mux.Logf(svclog.LevelError, "server stopped: %v", err) })
		}
		_ = loop.Stop()
	}()

	if err := loop.Run(ctx); err != nil {
		return err
	}

	// Handlers may be waiting on posted commands, so keep the loop turning
	// until both servers are down
	stopped := make(chan error, 1)
	go func() { stopped <- stopServers(ctlServer, httpServer) }()
	stopErr := pump(loop, stopped)
	if stopErr != nil {
		mux.Logf(svclog.LevelError, "shutdown: %v", stopErr)
	}

	mux.LogServiceStopped("svcd")
	drain(loop, mux, opts.drainWait)

	// Leave the terminal the way a shell expects it
	return mux.Close()
}

// stopServers stops the control socket and the HTTP server, if running
func stopServers(ctl *control.Server, httpServer *control.HTTPServer) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var err error
	select {
	case <-ctl.Ready():
		err = ctl.Stop(ctx)
	default:
	}
	if httpServer != nil {
		err = errors.Join(err, httpServer.Shutdown())
	}
	return err
}

// pump runs posted closures until done delivers
func pump(loop *reactor.Loop, done <-chan error) error {
	for {
		select {
		case err := <-done:
			return err
		default:
		}
		if err := loop.RunOnce(10 * time.Millisecond); err != nil {
			// Calls give up on their own timeout
			return errors.Join(err, <-done)
		}
	}
}

// loadConfig reads the config file, then applies flags given on the command line
func loadConfig(path string, flagSet *pflag.FlagSet) (*svclog.Config, error) {
	cfg := svclog.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = svclog.NewConfigFromFile(path); err != nil {
			return nil, err
		}
	}

	var flagErr error
	flagSet.Visit(func(f *pflag.Flag) {
		if err := applyFlag(cfg, f.Name, f.Value.String()); err != nil && flagErr == nil {
			flagErr = fmt.Errorf("--%s: %w", f.Name, err)
		}
	})
	if flagErr != nil {
		return nil, flagErr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlag maps a config flag onto cfg, ignoring flags that are not config
func applyFlag(cfg *svclog.Config, name, value string) error {
	switch name {
	case "level", "console-level":
		level, err := svclog.Level(value)
		if err != nil {
			return err
		}
		if name == "level" {
			cfg.Level = level
		} else {
			cfg.ConsoleLevel = level
		}
	case "prefix":
		cfg.Prefix = value
	case "main-log":
		cfg.MainLog = value
	case "console":
		cfg.ConsoleTarget = value
	case "buffer-size":
		size, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.BufferSize = size
	}
	return nil
}

// consoleQueue stands in for the supervisor's queue of services waiting for
// the console. With a hold time it gives the console back after that long.
type consoleQueue struct {
	loop *reactor.Loop
	mux  *svclog.Multiplexer
	hold time.Duration
}

func (q *consoleQueue) PullConsoleQueue() {
	if q.hold <= 0 {
		return
	}
	time.AfterFunc(q.hold, func() {
		_ = q.loop.Post(func() { q.mux.EnableConsoleLog(true) })
	})
}

// drain keeps dispatching until nothing is buffered or wait elapses
func drain(loop *reactor.Loop, mux *svclog.Multiplexer, wait time.Duration) {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		st := mux.Stats()
		if !st.Main.WatcherActive && !st.Console.WatcherActive {
			return
		}
		if err := loop.RunOnce(10 * time.Millisecond); err != nil {
			return
		}
	}
}
