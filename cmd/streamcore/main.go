// Package main implements the streamcore reference runtime: a resilient
// frame transport wired to a background compute worker, a shared frame
// segment, and a consumer-side scheduler.
package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/streamcore/command"
	"github.com/c360/streamcore/config"
	"github.com/c360/streamcore/engine"
	"github.com/c360/streamcore/errors"
	"github.com/c360/streamcore/metric"
	"github.com/c360/streamcore/pipeline"
	"github.com/c360/streamcore/scheduler"
	"github.com/c360/streamcore/sharedframe"
	"github.com/c360/streamcore/worker"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "streamcore"
)

// responseMagic marks a binary frame as a correlated command response:
// one magic byte followed by a little-endian uint64 correlation id.
const responseMagic = 0xC3

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML configuration")
	showVersion := flag.Bool("version", false, "print version and exit")
	validate := flag.Bool("validate", false, "validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		cfg = loaded
	}
	if *validate {
		slog.Info("Configuration is valid")
		return nil
	}

	slog.Info("Starting streamcore",
		"version", Version,
		"endpoint", cfg.Pipeline.URL,
		"config_path", *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsRegistry := metric.NewMetricsRegistry()

	// Background worker running the built-in relay engine.
	modules := engine.NewRegistry()
	modules.Register("builtin", &engine.StaticModule{
		Constructors: map[string]engine.Factory{
			"relay": func() (engine.Engine, error) { return &relayEngine{}, nil },
		},
	})

	coordinator, err := worker.NewCoordinator(cfg.Worker, modules, sharedframe.VariableLength,
		worker.WithLogger(componentLogger("worker")))
	if err != nil {
		return fmt.Errorf("create worker coordinator: %w", err)
	}
	defer coordinator.Dispose()

	if err := coordinator.Init(ctx, "builtin", "relay"); err != nil {
		return fmt.Errorf("worker handshake: %w", err)
	}
	if err := coordinator.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	// Response correlation over the binary frame stream.
	responses, err := command.NewRegistry(extractResponseID,
		command.WithTimeout(cfg.Response.Timeout()),
		command.WithRegistryLogger(componentLogger("command")))
	if err != nil {
		return fmt.Errorf("create response registry: %w", err)
	}

	// Transport.
	pipe, err := pipeline.New(cfg.Pipeline,
		pipeline.WithLogger(componentLogger("pipeline")),
		pipeline.WithMetrics(metricsRegistry))
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	pipe.UseBinary(responses.Middleware())
	pipe.SetBinaryHandler(coordinator.PostBinary)
	pipe.OnError(func(ce *errors.ConnectionError) {
		slog.Warn("Connection error", "type", ce.Type, "attempt", ce.Attempt, "cause", ce.Err)
	})
	pipe.OnDisconnect(func() {
		responses.RejectAll(fmt.Errorf("connection dropped"))
	})

	commands, err := command.NewChannel(pipe.Send,
		command.WithChannelLogger(componentLogger("command")))
	if err != nil {
		return fmt.Errorf("create command channel: %w", err)
	}

	// Frame subscription, re-issued after every reconnect.
	subscriptions := command.NewReplay(command.WithReplayLogger(componentLogger("command")))
	subscriptions.Add("frames", func() {
		if _, err := commands.Send(buildSubscribe("frames")); err != nil {
			slog.Warn("Subscribe failed", "error", err)
		}
	})
	detach := subscriptions.Attach(pipe)
	defer detach()

	// Consumer side: poll the shared segment on the scheduler cadence.
	sched, err := scheduler.New(cfg.Scheduler,
		scheduler.WithLogger(componentLogger("scheduler")),
		scheduler.WithMetrics(metricsRegistry))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	frames := sched.AddEngine(newSegmentPoller(coordinator))
	frames.AddConsumer(0, func(v any) {
		if sample, ok := v.(sharedframe.Sample); ok && sample.NewFrame {
			slog.Debug("Frame published",
				"sequence", sample.Sequence, "bytes", sample.Length)
		}
	})

	sched.Start()
	defer sched.Stop()

	pipe.Connect()
	defer pipe.Disconnect()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:              cfg.Metrics.ListenAddr,
			Handler:           metricsRegistry.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("Metrics endpoint listening", "addr", cfg.Metrics.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down")
		return nil
	})

	return g.Wait()
}

// extractResponseID recognizes correlated response frames
func extractResponseID(frame []byte) (uint64, bool) {
	if len(frame) < 9 || frame[0] != responseMagic {
		return 0, false
	}
	return binary.LittleEndian.Uint64(frame[1:]), true
}

// buildSubscribe encodes a subscribe command: magic, correlation id, topic
func buildSubscribe(topic string) command.BuildFunc {
	return func(id uint64, buf *bytes.Buffer) error {
		buf.WriteByte(responseMagic)
		var idBytes [8]byte
		binary.LittleEndian.PutUint64(idBytes[:], id)
		buf.Write(idBytes[:])
		buf.WriteString(topic)
		return nil
	}
}

// relayEngine republishes the most recently ingested binary frame every
// tick. It stands in for real compute modules registered by embedders.
type relayEngine struct {
	mu      sync.Mutex
	last    []byte
	dirty   bool
	configs map[string]any
}

func (e *relayEngine) Call(method string, _ []any) (any, error) {
	switch method {
	case "status":
		e.mu.Lock()
		defer e.mu.Unlock()
		return map[string]any{"buffered_bytes": len(e.last)}, nil
	default:
		return nil, fmt.Errorf("method %q not supported", method)
	}
}

func (e *relayEngine) HandleInput(string, map[string]any) {}

func (e *relayEngine) HandleData(payload []byte) { e.HandleBinary(payload) }

func (e *relayEngine) HandleBinary(payload []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last = payload
	e.dirty = true
}

func (e *relayEngine) Configure(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.configs == nil {
		e.configs = make(map[string]any)
	}
	e.configs[key] = value
}

func (e *relayEngine) TickFrame(_ time.Time, dst []byte) (int, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dirty || len(e.last) > len(dst) {
		return 0, false, nil
	}
	e.dirty = false
	return copy(dst, e.last), true, nil
}

// segmentPoller adapts a worker's shared segment cursor to the scheduler's
// tick interface.
type segmentPoller struct {
	cursor *sharedframe.Cursor
}

func newSegmentPoller(c *worker.Coordinator) *segmentPoller {
	return &segmentPoller{cursor: c.Cursor()}
}

func (p *segmentPoller) Tick(time.Time) any {
	return p.cursor.Sample()
}

// componentLogger adapts slog to the component logger surface
func componentLogger(name string) *slogAdapter {
	return &slogAdapter{logger: slog.Default().With("component", name)}
}

type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Printf(format string, v ...any) {
	a.logger.Info(fmt.Sprintf(format, v...))
}

func (a *slogAdapter) Errorf(format string, v ...any) {
	a.logger.Error(fmt.Sprintf(format, v...))
}

func (a *slogAdapter) Debugf(format string, v ...any) {
	a.logger.Debug(fmt.Sprintf(format, v...))
}
