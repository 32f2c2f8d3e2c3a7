// Package pipeline implements the ingestion fan-in: many producer spouts
// feeding bounded lock-free queues, drained by a single storage-writing
// worker with a poison-pill shutdown protocol.
//
// Ordering: writes from one spout are FIFO into its queue and thus FIFO into
// storage relative to that spout. Writes across spouts have no global
// ordering guarantee; that is the price of producer independence.
package pipeline

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/arloliu/axon/errs"
	"github.com/arloliu/axon/internal/options"
	"github.com/arloliu/axon/storage"
)

const (
	// DefaultQueueCount is the number of consumer-side lanes the worker
	// round-robins over.
	DefaultQueueCount = 8
	// DefaultQueueCapacity is the per-queue slot capacity.
	DefaultQueueCapacity = 1024

	// idleThreshold is how many consecutive empty pops the worker tolerates
	// before it starts sleeping between scan rounds.
	idleThreshold = 0x10000

	// stopTimeout is reserved for a future bounded Stop; Stop currently
	// waits for the worker without a deadline.
	stopTimeout = 15 * time.Second
)

// Pipeline owns the queues and the single writer worker. Spouts are created
// with MakeSpout and distributed across queues round-robin.
type Pipeline struct {
	conn    storage.Connection
	queues  []*Queue
	backoff BackoffPolicy

	queueCount    int
	queueCapacity int
	poolSize      int

	ixmake  atomic.Uint64
	started chan struct{}
	stopped chan struct{}

	stopOnce sync.Once
	halted   atomic.Bool

	poison *Slot

	logger  *zap.Logger
	clock   clock.Clock
	metrics *Metrics
}

// Option configures a Pipeline.
type Option = options.Option[*Pipeline]

// WithBackoff selects the backoff policy spouts apply when saturated.
func WithBackoff(policy BackoffPolicy) Option {
	return options.NoError(func(p *Pipeline) { p.backoff = policy })
}

// WithQueueCount sets the number of queues (consumer-side lanes).
func WithQueueCount(n int) Option {
	return options.New(func(p *Pipeline) error {
		if n <= 0 {
			return fmt.Errorf("queue count %d must be positive", n)
		}
		p.queueCount = n

		return nil
	})
}

// WithQueueCapacity sets the per-queue capacity; it must be a power of two.
func WithQueueCapacity(n int) Option {
	return options.NoError(func(p *Pipeline) { p.queueCapacity = n })
}

// WithPoolSize sets the per-spout slot pool size.
func WithPoolSize(n int) Option {
	return options.New(func(p *Pipeline) error {
		if n <= 0 {
			return fmt.Errorf("pool size %d must be positive", n)
		}
		p.poolSize = n

		return nil
	})
}

// WithLogger sets the pipeline logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return options.NoError(func(p *Pipeline) { p.logger = logger })
}

// WithClock injects the clock used for throttle and idle sleeps. Tests pass
// a mock.
func WithClock(clk clock.Clock) Option {
	return options.NoError(func(p *Pipeline) { p.clock = clk })
}

// WithMetrics shares a Metrics instance; by default each pipeline creates
// its own unregistered counters.
func WithMetrics(m *Metrics) Option {
	return options.NoError(func(p *Pipeline) { p.metrics = m })
}

// New creates a pipeline over the given storage connection. Start must be
// called before samples flow.
func New(conn storage.Connection, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		conn:          conn,
		backoff:       LinearBackoff,
		queueCount:    DefaultQueueCount,
		queueCapacity: DefaultQueueCapacity,
		poolSize:      DefaultPoolSize,
		started:       make(chan struct{}),
		stopped:       make(chan struct{}),
		logger:        zap.NewNop(),
		clock:         clock.New(),
	}
	if err := options.Apply(p, opts...); err != nil {
		return nil, err
	}
	if p.metrics == nil {
		p.metrics = NewMetrics()
	}

	p.queues = make([]*Queue, p.queueCount)
	for i := range p.queues {
		q, err := NewQueue(p.queueCapacity)
		if err != nil {
			return nil, err
		}
		p.queues[i] = q
	}

	// The poison sentinel: its nil release counter distinguishes it from
	// every real slot.
	p.poison = &Slot{}

	return p, nil
}

// MakeSpout returns a new spout bound to the next queue in round-robin
// order, distributing producer load across lanes. It fails with
// errs.ErrPipelineStopped once Stop has begun: a slot published after the
// poison pills would never be released.
func (p *Pipeline) MakeSpout() (*Spout, error) {
	if p.halted.Load() {
		return nil, errs.ErrPipelineStopped
	}
	ix := p.ixmake.Add(1)
	q := p.queues[ix%uint64(len(p.queues))]

	return newSpout(q, p.backoff, p.conn, p.poolSize, p.clock, p.metrics), nil
}

// Metrics returns the pipeline's ingest counters.
func (p *Pipeline) Metrics() *Metrics {
	return p.metrics
}

// Start launches the worker and returns once it is live: the worker and the
// caller cross a rendezvous barrier, so on return the worker is guaranteed
// to be draining queues.
func (p *Pipeline) Start() {
	go p.worker()

	p.logger.Info("starting pipeline")
	<-p.started
	p.logger.Info("pipeline started")
}

// Stop drains and terminates the worker: a poison pill is pushed onto every
// queue, and Stop returns once the worker has seen them all and crossed the
// stop barrier. Samples still queued behind the poison at that point are
// counted as lost and logged; Stop does not prevent that loss.
//
// Stop is idempotent. It must be called before any spout is discarded, since
// slots borrow the spout's release counter.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.halted.Store(true)
		p.logger.Info("stopping pipeline, pushing poison to queues")
		for _, q := range p.queues {
			for !q.Push(p.poison) {
				runtime.Gosched()
			}
		}
		p.logger.Info("waiting for pipeline worker to stop")
		<-p.stopped
		p.logger.Info("pipeline stopped")
	})
}

// worker is the single consumer loop. It round-robins over the queues,
// writes every popped sample to storage, and acknowledges the slot by
// incrementing its spout's release counter. Failures are routed to the
// spout's error callback together with the release count.
//
// A panic is logged with its stack and re-raised; the pipeline does not
// attempt to recover a crashed worker. The stop barrier is signalled from a
// defer, so even a crashing worker releases a pending Stop.
func (p *Pipeline) worker() {
	defer close(p.stopped)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("fatal error in pipeline worker",
				zap.Any("panic", r),
				zap.Stack("stack"))
			panic(r)
		}
	}()

	p.logger.Info("starting pipeline worker")
	p.started <- struct{}{}
	p.logger.Info("pipeline worker started")

	n := len(p.queues)
	poisonCnt := 0
	idle := 0

	for ix := 0; ; ix++ {
		slot, ok := p.queues[ix%n].Pop()
		if !ok {
			idle++
			if idle > idleThreshold && idle%n == 0 {
				// Quiescent; stop burning CPU between scan rounds.
				p.clock.Sleep(time.Millisecond)
			}
			continue
		}
		idle = 0

		if slot.release == nil { // poisoned
			poisonCnt++
			if poisonCnt < n {
				continue
			}
			for i, q := range p.queues {
				if !q.Empty() {
					p.logger.Warn("queue not empty at drain, some data will be lost",
						zap.Int("queue", i))
				}
			}
			p.logger.Info("stopping pipeline worker")

			return
		}

		err := p.conn.Write(slot.sample)
		released := slot.release.Add(1)
		if err != nil {
			p.metrics.WriteErrors.Inc()
			if cb := *slot.onError; cb != nil {
				cb(err, released)
			}
			continue
		}
		p.metrics.SamplesWritten.Inc()
	}
}
