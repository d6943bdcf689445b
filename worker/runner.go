package worker

import (
	"context"
	"time"

	"github.com/c360/streamcore/engine"
	"github.com/c360/streamcore/sharedframe"
)

// runner is the background half of the worker. It owns the engine instance
// and the segment's single Writer; nothing else touches either.
type runner struct {
	ctrl    <-chan any
	replies chan<- any

	loader       engine.Loader
	writer       *sharedframe.Writer
	tickInterval time.Duration
	logger       Logger
}

func (r *runner) run(ctx context.Context) {
	var eng engine.Engine
	var ticker *time.Ticker
	var tickC <-chan time.Time

	scratch := make([]byte, r.writer.Capacity())

	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-r.ctrl:
			switch m := msg.(type) {
			case ctrlInit:
				loaded, msgText := r.initEngine(m)
				if loaded == nil {
					r.send(ctx, replyInitError{Message: msgText})
					continue
				}
				eng = loaded
				r.send(ctx, replyReady{})

			case ctrlStart:
				if eng == nil {
					r.logger.Errorf("start before init ignored")
					continue
				}
				if ticker == nil {
					ticker = time.NewTicker(r.tickInterval)
					tickC = ticker.C
				}
				r.send(ctx, replyStarted{})

			case ctrlStop:
				if ticker != nil {
					ticker.Stop()
					ticker = nil
					tickC = nil
				}
				r.send(ctx, replyStopped{})

			case ctrlCall:
				if eng == nil {
					r.send(ctx, replyError{ID: m.ID, Message: "engine not initialized"})
					continue
				}
				value, err := eng.Call(m.Method, m.Args)
				if err != nil {
					r.send(ctx, replyError{ID: m.ID, Message: err.Error()})
					continue
				}
				r.send(ctx, replyResult{ID: m.ID, Value: value})

			case ctrlInput:
				if eng != nil {
					eng.HandleInput(m.Action, m.Params)
				}

			case ctrlData:
				if eng != nil {
					eng.HandleData(m.Payload)
				}

			case ctrlBinary:
				if eng != nil {
					eng.HandleBinary(m.Payload)
				}

			case ctrlConfigure:
				if eng != nil {
					eng.Configure(m.Key, m.Value)
				}

			default:
				r.logger.Errorf("unknown control message %T dropped", msg)
			}

		case now := <-tickC:
			r.tick(eng, now, scratch)
		}
	}
}

// initEngine resolves module, runs its init hook, and constructs the engine.
// Returns a nil engine and a message on any failure.
func (r *runner) initEngine(m ctrlInit) (engine.Engine, string) {
	module, err := r.loader.Load(m.ModuleRef)
	if err != nil {
		return nil, "load module: " + err.Error()
	}
	if err := module.Init(); err != nil {
		return nil, "module init: " + err.Error()
	}
	factory, err := module.Constructor(m.EngineName)
	if err != nil {
		return nil, "resolve constructor: " + err.Error()
	}
	eng, err := factory()
	if err != nil {
		return nil, "construct engine: " + err.Error()
	}
	return eng, ""
}

// tick runs one compute cycle and publishes the resulting frame, if any.
func (r *runner) tick(eng engine.Engine, now time.Time, scratch []byte) {
	n, ok, err := eng.TickFrame(now, scratch)
	if err != nil {
		r.logger.Errorf("tick failed: %v", err)
		return
	}
	if !ok {
		return
	}

	ts := float64(now.UnixNano()) / 1e6 // epoch milliseconds
	if err := r.writer.WriteFrame(ts, scratch[:n]); err != nil {
		r.logger.Errorf("publish frame: %v", err)
	}
}

// send delivers a reply unless the coordinator is gone.
func (r *runner) send(ctx context.Context, reply any) {
	select {
	case r.replies <- reply:
	case <-ctx.Done():
	}
}
