// Package bot wires inbound events through the flow engine and out to
// the delivery and persistence layers.
package bot

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/innovaedu/wabot/core/flow"
	"github.com/innovaedu/wabot/core/logger"
	"github.com/innovaedu/wabot/core/recorder"
	"github.com/innovaedu/wabot/core/session"
	"github.com/innovaedu/wabot/core/whatsapp"
)

// Enqueuer delivers an ordered outbound sequence, usually the sharded
// sender dispatcher.
type Enqueuer interface {
	EnqueueSequence(ctx context.Context, to string, msgs []whatsapp.Message) error
}

// Processor serializes events per identity and runs each through the
// transition table. Delivery and persistence failures are logged and
// swallowed; they never corrupt session state.
type Processor struct {
	store   session.Store
	engine  *flow.Engine
	sender  Enqueuer
	records recorder.Sink

	limiter *rateLimiter

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs a processor.
func New(store session.Store, engine *flow.Engine, snd Enqueuer, records recorder.Sink) *Processor {
	return &Processor{
		store:   store,
		engine:  engine,
		sender:  snd,
		records: records,
		locks:   make(map[string]*sync.Mutex),
	}
}

// WithRateLimit enforces a minimum interval between events from one
// identity; events arriving faster are dropped with a log line. A zero
// interval leaves limiting off.
func (p *Processor) WithRateLimit(minInterval time.Duration) *Processor {
	if minInterval > 0 {
		p.limiter = newRateLimiter(minInterval, time.Now)
	}
	return p
}

// HandleEvent processes one inbound event to completion. Events for the
// same identity block each other so a session is never read and written
// by two transitions at once; different identities proceed in parallel.
func (p *Processor) HandleEvent(ctx context.Context, ev whatsapp.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "flow", "transition.panic",
				slog.String("status", "fail"),
				slog.String("wa_id", ev.WaID),
				slog.Any("cause", r),
			)
		}
	}()

	ctx = logger.WithEventMeta(ctx, ev.WaID, ev.MessageID)

	if !p.limiter.allow(ev.WaID) {
		logger.Warn(ctx, "flow", "rate_limit",
			slog.String("status", "dropped"),
			slog.String("wa_id", ev.WaID),
		)
		return
	}

	lock := p.lockFor(ev.WaID)
	lock.Lock()
	sess := p.store.Get(ev.WaID)
	prev := sess.Step
	res := p.engine.Transition(sess, ev.Input(), ev.MessageID)
	next := sess.Step
	// The sequence is committed to the sender's FIFO shard before the
	// identity lock is released. The enqueue is a non-blocking hand-off,
	// and without it here a later event for the same identity could slip
	// its reply in ahead of this one.
	enqueueErr := p.sender.EnqueueSequence(ctx, ev.WaID, res.Messages)
	lock.Unlock()

	logger.Info(ctx, "flow", "transition",
		slog.String("status", "ok"),
		slog.String("step", string(prev)),
		slog.String("next_step", string(next)),
		slog.String("kind", string(ev.Kind)),
		slog.Int("parts", len(res.Messages)),
	)

	if enqueueErr != nil {
		logger.Error(ctx, "flow", "send.enqueue.fail",
			slog.String("status", "fail"),
			slog.String("err", enqueueErr.Error()),
		)
	}

	// Persistence runs after the reply is committed, so a failing record
	// store can never hold up the user-visible reply.
	if res.Record != nil {
		if err := p.records.Record(ctx, *res.Record); err != nil {
			logger.Error(ctx, "recorder", "record.fail",
				slog.String("status", "fail"),
				slog.String("record_id", res.Record.ID),
				slog.String("record_kind", string(res.Record.Kind)),
				slog.String("err", err.Error()),
			)
		} else {
			logger.Info(ctx, "recorder", "record.stored",
				slog.String("status", "ok"),
				slog.String("record_id", res.Record.ID),
				slog.String("record_kind", string(res.Record.Kind)),
			)
		}
	}
}

func (p *Processor) lockFor(waID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[waID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[waID] = lock
	}
	return lock
}
