package poll

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vogiaan1904/clinic-queueboard/internal/clock"
	"github.com/vogiaan1904/clinic-queueboard/internal/errors"
	"github.com/vogiaan1904/clinic-queueboard/internal/repository"
	"github.com/vogiaan1904/clinic-queueboard/pkg/logger"
)

// DefaultFloor is the shortest polling interval a caller can ask for.
const DefaultFloor = 5 * time.Second

type FetchFunc[T any] func(ctx context.Context) (T, error)

// Result is what a poll tick emits. Exactly one of three cases holds:
// a fresh value, a stale value read back from cache, or nothing available.
type Result[T any] struct {
	Resource    string
	Value       T
	Stale       bool
	Unavailable bool
	StoredAt    time.Time
}

type Options struct {
	Cache          repository.CacheStore
	Clock          clock.Clock
	Logger         logger.Logger
	Floor          time.Duration
	CachePrefix    string
	RequestTimeout time.Duration
}

type Poller[T any] struct {
	topicKey string
	resource string
	cacheKey string
	interval time.Duration
	fetch    FetchFunc[T]
	emit     func(Result[T])
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	timer    clock.Timer
	inFlight bool
	stopped  bool
}

// Start schedules the first fetch immediately and then one every interval,
// never faster than the configured floor. Ticks are not delayed by slow fetches;
// a tick that finds the previous fetch still running is skipped.
func Start[T any](topicKey, resource string, fetch FetchFunc[T], interval time.Duration, emit func(Result[T]), opts Options) (*Poller[T], error) {
	if strings.TrimSpace(topicKey) == "" {
		return nil, errors.ErrEmptyTopic
	}

	floor := opts.Floor
	if floor <= 0 {
		floor = DefaultFloor
	}
	if interval < floor {
		interval = floor
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.CachePrefix == "" {
		opts.CachePrefix = "boardCache"
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller[T]{
		topicKey: topicKey,
		resource: resource,
		cacheKey: repository.Key(opts.CachePrefix, topicKey, resource),
		interval: interval,
		fetch:    fetch,
		emit:     emit,
		opts:     opts,
		ctx:      logger.ContextWith(ctx, opts.Logger, "topic", topicKey, "resource", resource),
		cancel:   cancel,
	}

	p.mu.Lock()
	p.timer = opts.Clock.AfterFunc(0, p.tick)
	p.mu.Unlock()

	return p, nil
}

func (p *Poller[T]) Interval() time.Duration {
	return p.interval
}

// Stop cancels the timer and any in-flight fetch, then waits for it to return.
// Nothing is emitted once Stop has returned.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

func (p *Poller[T]) tick() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}
	p.timer = p.opts.Clock.AfterFunc(p.interval, p.tick)

	if p.inFlight {
		p.opts.Logger.Debugf(p.ctx, "poll.tick: previous fetch still running, skipping")
		return
	}
	p.inFlight = true
	p.wg.Add(1)
	go p.run()
}

func (p *Poller[T]) run() {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	ctx := p.ctx
	if p.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.RequestTimeout)
		defer cancel()
	}

	value, err := p.fetch(ctx)
	if p.isStopped() {
		return
	}

	if err == nil {
		if p.opts.Cache != nil {
			if err := repository.PutJSON(p.ctx, p.opts.Cache, p.cacheKey, value, p.opts.Clock.Now()); err != nil {
				p.opts.Logger.Warnf(p.ctx, "poll.run.PutJSON: %v", err)
			}
		}
		p.emit(Result[T]{Resource: p.resource, Value: value})
		return
	}

	p.opts.Logger.Warnf(p.ctx, "poll.run.fetch: %v", err)

	if p.opts.Cache != nil {
		var cached T
		storedAt, cacheErr := repository.GetJSON(p.ctx, p.opts.Cache, p.cacheKey, &cached)
		if cacheErr == nil {
			p.emit(Result[T]{Resource: p.resource, Value: cached, Stale: true, StoredAt: storedAt})
			return
		}
		p.opts.Logger.Debugf(p.ctx, "poll.run.GetJSON: %v", cacheErr)
	}

	p.emit(Result[T]{Resource: p.resource, Unavailable: true})
}

func (p *Poller[T]) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}
