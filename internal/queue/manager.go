package queue

import (
	"context"
	"strings"
	"sync"

	"github.com/vogiaan1904/clinic-queueboard/internal/clock"
	"github.com/vogiaan1904/clinic-queueboard/internal/errors"
	"github.com/vogiaan1904/clinic-queueboard/internal/models"
	"github.com/vogiaan1904/clinic-queueboard/internal/repository"
	"github.com/vogiaan1904/clinic-queueboard/pkg/logger"
)

const defaultBufferSize = 64

type ManagerConfig struct {
	CachePrefix string
	RingSize    int
	BufferSize  int
}

// Manager is the per-topic context: it owns the reducer, applies events from
// every source on a single goroutine, writes the board through to the cache
// and fans changes out to subscribers.
type Manager struct {
	topic   string
	reducer *Reducer
	cache   repository.CacheStore
	clock   clock.Clock
	config  ManagerConfig
	logger  logger.Logger

	events   chan models.Envelope
	requests chan func()

	mu          sync.RWMutex
	subscribers []Subscriber

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewManager(
	topic string,
	cache repository.CacheStore,
	clk clock.Clock,
	config ManagerConfig,
	logger logger.Logger,
) (*Manager, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, errors.ErrEmptyTopic
	}
	if config.CachePrefix == "" {
		config.CachePrefix = "boardCache"
	}
	if config.BufferSize <= 0 {
		config.BufferSize = defaultBufferSize
	}
	if clk == nil {
		clk = clock.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		topic:    topic,
		reducer:  NewReducer(topic, config.RingSize, logger),
		cache:    cache,
		clock:    clk,
		config:   config,
		logger:   logger,
		events:   make(chan models.Envelope, config.BufferSize),
		requests: make(chan func()),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

func (m *Manager) Topic() string {
	return m.topic
}

// Subscribe registers s for every change committed after it is added.
// Subscribers added before Start also see the hydrated change.
func (m *Manager) Subscribe(s Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, s)
}

// Start hydrates from the cache and begins applying events.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.hydrate(ctx)
		go m.loop()
	})
}

// Submit queues an event for the topic. It blocks while the buffer is full.
func (m *Manager) Submit(env models.Envelope) error {
	select {
	case <-m.ctx.Done():
		return errors.ErrManagerDisposed
	default:
	}

	select {
	case m.events <- env:
		return nil
	case <-m.ctx.Done():
		return errors.ErrManagerDisposed
	}
}

// Board returns a copy of the current state, read on the manager goroutine.
func (m *Manager) Board(ctx context.Context) (Board, error) {
	result := make(chan Board, 1)
	req := func() { result <- m.reducer.Board() }

	select {
	case m.requests <- req:
	case <-m.ctx.Done():
		return Board{}, errors.ErrManagerDisposed
	case <-ctx.Done():
		return Board{}, ctx.Err()
	}

	select {
	case b := <-result:
		return b, nil
	case <-ctx.Done():
		return Board{}, ctx.Err()
	}
}

// Dispose stops the loop and waits for it to exit. Queued events are dropped.
func (m *Manager) Dispose() {
	m.stopOnce.Do(func() {
		m.cancel()
		// A manager that never started has no loop to wait for.
		m.startOnce.Do(func() { close(m.done) })
		<-m.done
		m.logger.Infof(context.Background(), "queue.Manager.Dispose: topic %s disposed", m.topic)
	})
}

func (m *Manager) loop() {
	defer close(m.done)

	for {
		select {
		case env := <-m.events:
			m.apply(env)
		case req := <-m.requests:
			req()
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) apply(env models.Envelope) {
	changes := m.reducer.Apply(m.ctx, env)
	if len(changes) == 0 {
		return
	}

	m.persist()
	m.publish(changes)
}

func (m *Manager) hydrate(ctx context.Context) {
	if m.cache == nil {
		return
	}

	var board Board
	storedAt, err := repository.GetJSON(ctx, m.cache, m.boardKey(), &board)
	if err != nil {
		m.logger.Debugf(ctx, "queue.Manager.hydrate: topic %s: %v", m.topic, err)
		return
	}

	m.logger.Infof(ctx, "queue.Manager.hydrate: topic %s restored %d entries cached at %s", m.topic, len(board.Entries), storedAt.Format("2006-01-02 15:04:05"))
	m.publish(m.reducer.Restore(board))
}

func (m *Manager) persist() {
	if m.cache == nil {
		return
	}
	if err := repository.PutJSON(m.ctx, m.cache, m.boardKey(), m.reducer.Board(), m.clock.Now()); err != nil {
		m.logger.Warnf(m.ctx, "queue.Manager.persist: %v", err)
	}
}

func (m *Manager) publish(changes []models.Change) {
	m.mu.RLock()
	subscribers := append([]Subscriber(nil), m.subscribers...)
	m.mu.RUnlock()

	for _, s := range subscribers {
		m.deliver(s, changes)
	}
}

// deliver isolates the loop from a misbehaving subscriber.
func (m *Manager) deliver(s Subscriber, changes []models.Change) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorf(m.ctx, "queue.Manager.deliver: subscriber %T panicked: %v", s, r)
		}
	}()

	out := make([]models.Change, len(changes))
	copy(out, changes)
	s.HandleChanges(m.ctx, out)
}

func (m *Manager) boardKey() string {
	return repository.Key(m.config.CachePrefix, m.topic, repository.ResourceBoard)
}
