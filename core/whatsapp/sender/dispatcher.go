package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"hash/fnv"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/innovaedu/wabot/core/logger"
	"github.com/innovaedu/wabot/core/whatsapp"
	"github.com/innovaedu/wabot/core/whatsapp/netutil"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("wa sender: queue closed")
	// ErrQueueFull indicates the shard queue is saturated and the sequence was not accepted.
	ErrQueueFull = errors.New("wa sender: queue full")
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	// Shards is the number of worker queues. Sequences for one identity
	// always land on the same shard, which keeps delivery order per
	// recipient without serializing unrelated recipients.
	Shards     int
	QueueSize  int
	MaxRetries int
	// RetryBackoff grows linearly with the attempt number.
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent delivering a single sequence.
	MaxDuration time.Duration
	// PartDelay spaces consecutive parts of one sequence so they arrive
	// in readable order on the user's device.
	PartDelay time.Duration
}

type job struct {
	ctx  context.Context
	to   string
	msgs []whatsapp.Message
}

// Dispatcher delivers outbound message sequences asynchronously.
// Each sequence is sent part by part on a shard chosen by recipient
// identity, so two sequences to the same user never interleave.
type Dispatcher struct {
	opts   Options
	client whatsapp.Sender
	shards []chan job
	stop   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	errs   atomic.Uint64
}

// NewDispatcher starts a dispatcher with sane defaults if options are zeroed.
func NewDispatcher(client whatsapp.Sender, opts Options) *Dispatcher {
	if opts.Shards <= 0 {
		opts.Shards = 8
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 30 * time.Second
	}
	if opts.PartDelay < 0 {
		opts.PartDelay = 0
	}

	d := &Dispatcher{
		opts:   opts,
		client: client,
		shards: make([]chan job, opts.Shards),
		stop:   make(chan struct{}),
	}

	d.wg.Add(opts.Shards)
	for i := range d.shards {
		d.shards[i] = make(chan job, opts.QueueSize)
		go d.worker(d.shards[i])
	}

	return d
}

// EnqueueSequence schedules an ordered message sequence for delivery.
// Parts are sent in slice order with the configured delay between them.
func (d *Dispatcher) EnqueueSequence(ctx context.Context, to string, msgs []whatsapp.Message) error {
	if to == "" {
		return errors.New("wa sender: empty recipient")
	}
	if len(msgs) == 0 {
		return nil
	}
	select {
	case <-d.stop:
		return ErrQueueClosed
	default:
	}

	j := job{ctx: ctx, to: to, msgs: msgs}
	shard := d.shards[shardFor(to, len(d.shards))]

	select {
	case shard <- j:
		return nil
	default:
		logger.Warn(ctx, "wa.sender", "enqueue.drop",
			slog.String("status", "dropped"),
			slog.String("wa_id", to),
			slog.Int("parts", len(msgs)),
		)
		return ErrQueueFull
	}
}

// ErrorCount returns the number of sequences that ultimately failed.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops workers and waits for them to finish processing queued jobs.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.stop)
		for _, shard := range d.shards {
			close(shard)
		}
		d.wg.Wait()
	})
}

func shardFor(identity string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	return int(h.Sum32() % uint32(n))
}

func (d *Dispatcher) worker(jobs <-chan job) {
	defer d.wg.Done()
	for j := range jobs {
		d.handleJob(j)
	}
}

func (d *Dispatcher) handleJob(j job) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	deadlineCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	logger.Debug(ctx, "wa.sender", "send.start", sendLogAttrs(ctx, j)...)

	for i, msg := range j.msgs {
		if i > 0 && d.opts.PartDelay > 0 {
			timer := time.NewTimer(d.opts.PartDelay)
			select {
			case <-deadlineCtx.Done():
				timer.Stop()
				d.errs.Add(1)
				logSendFailure(ctx, j, i, deadlineCtx.Err(), time.Since(start))
				return
			case <-timer.C:
			}
		}
		if err := d.sendPart(deadlineCtx, ctx, j, i, msg); err != nil {
			d.errs.Add(1)
			logSendFailure(ctx, j, i, err, time.Since(start))
			return
		}
	}

	logger.Debug(ctx, "wa.sender", "send.success",
		append(sendLogAttrs(ctx, j),
			slog.Int("elapsed_ms", durationToMS(time.Since(start))),
		)...,
	)
}

func (d *Dispatcher) sendPart(deadlineCtx, ctx context.Context, j job, part int, msg whatsapp.Message) error {
	attempts := d.opts.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := deadlineCtx.Err(); err != nil {
			return err
		}

		err := d.client.Send(deadlineCtx, j.to, msg)
		if err == nil {
			if attempt > 1 {
				logger.Info(ctx, "wa.sender", "send.retry.success",
					append(sendLogAttrs(ctx, j),
						slog.Int("part", part),
						slog.Int("attempt", attempt),
					)...,
				)
			}
			return nil
		}

		lastErr = err
		if !retryable(err) || attempt == attempts {
			return lastErr
		}

		delay := d.opts.RetryBackoff * time.Duration(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-deadlineCtx.Done():
			timer.Stop()
			return deadlineCtx.Err()
		case <-timer.C:
		}
		logger.Debug(ctx, "wa.sender", "send.retry.backoff",
			append(sendLogAttrs(ctx, j),
				slog.Int("part", part),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)...,
		)
	}
	return lastErr
}

func retryable(err error) bool {
	var apiErr *whatsapp.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return netutil.ShouldRetry(err)
}

func sendLogAttrs(ctx context.Context, j job) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("wa_id", j.to),
		slog.Int("parts", len(j.msgs)),
	}
	if rid := logger.RIDFrom(ctx); rid != "" {
		attrs = append(attrs, slog.String("rid", rid))
	}
	if msgID := logger.MessageIDFrom(ctx); msgID != "" {
		attrs = append(attrs, slog.String("message_id", msgID))
	}
	return attrs
}

func logSendFailure(ctx context.Context, j job, part int, err error, elapsed time.Duration) {
	logger.Error(ctx, "wa.sender", "send.fail",
		append(sendLogAttrs(ctx, j),
			slog.Int("part", part),
			slog.String("err", whatsapp.RedactToken(err.Error())),
			slog.String("err_code", classifyError(err)),
			slog.Int("elapsed_ms", durationToMS(elapsed)),
		)...,
	)
}

func durationToMS(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(logger.RoundMS(d) / time.Millisecond)
}

func classifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return "timeout"
		}
		if opErr.Op == "dial" {
			return "dial"
		}
		if opErr.Op == "read" || opErr.Op == "write" {
			if kind := classifyError(opErr.Err); kind != "" && kind != "unknown" {
				return kind
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return "timeout"
		}
		if urlErr.Err != nil && !errors.Is(urlErr.Err, err) {
			if kind := classifyError(urlErr.Err); kind != "" && kind != "unknown" {
				return kind
			}
		}
	}

	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return "tls"
	}

	var apiErr *whatsapp.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatus >= 500:
			return "http_5xx"
		case apiErr.HTTPStatus >= 400:
			return "http_4xx"
		}
	}

	return "unknown"
}
