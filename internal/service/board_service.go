package service

import (
	"context"
	"sync"

	"github.com/vogiaan1904/clinic-queueboard/internal/models"
	"github.com/vogiaan1904/clinic-queueboard/internal/poll"
	"github.com/vogiaan1904/clinic-queueboard/internal/queue"
	"github.com/vogiaan1904/clinic-queueboard/internal/repository"
	"github.com/vogiaan1904/clinic-queueboard/internal/transport"
	"github.com/vogiaan1904/clinic-queueboard/pkg/logger"
)

type boardService struct {
	scope     BoardScope
	manager   *queue.Manager
	channel   *transport.Channel
	fetcher   Fetcher
	pollOpts  poll.Options
	listeners []ConnectionListener
	logger    logger.Logger

	mu      sync.RWMutex
	started bool
	stopped bool
	handle  *transport.Handle
	pollers []func()
	state   models.ConnectionState
}

// NewBoardService wires the push channel and the pollers of one board into its manager.
// fetcher may be nil, in which case the board relies on push alone.
func NewBoardService(
	scope BoardScope,
	manager *queue.Manager,
	channel *transport.Channel,
	fetcher Fetcher,
	pollOpts poll.Options,
	logger logger.Logger,
	listeners ...ConnectionListener,
) BoardService {
	if scope.Topic == "" {
		scope.Topic = manager.Topic()
	}
	pollOpts.Logger = logger
	return &boardService{
		scope:     scope,
		manager:   manager,
		channel:   channel,
		fetcher:   fetcher,
		pollOpts:  pollOpts,
		listeners: listeners,
		logger:    logger,
		state:     models.ConnectionState{State: models.ChannelIdle},
	}
}

func (s *boardService) Topic() string {
	return s.scope.Topic
}

func (s *boardService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrBoardAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	s.manager.Start(ctx)

	pollers, err := s.startPollers()
	s.mu.Lock()
	s.pollers = pollers
	if err != nil {
		s.stopPollersLocked()
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	if s.channel == nil {
		return nil
	}

	// Open reports CONNECTING through onState, so it runs without s.mu held.
	h, err := s.channel.Open(s.scope.Topic, transport.Handlers{
		OnMessage: s.onMessage,
		OnOpen: func() {
			s.logger.Infof(context.Background(), "service.boardService: push channel open for %s", s.scope.Topic)
		},
		OnClose: func(code int) {
			s.logger.Infof(context.Background(), "service.boardService: push channel closed for %s with code %d", s.scope.Topic, code)
		},
		OnState: s.onState,
	})
	if err != nil {
		s.mu.Lock()
		s.stopPollersLocked()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	stopped := s.stopped
	s.handle = h
	if h.State().State == models.ChannelClosed {
		s.state = h.State()
	}
	s.mu.Unlock()
	if stopped {
		h.Close()
	}

	s.logger.Infof(ctx, "service.boardService.Start: board %s started with %d pollers", s.scope.Topic, len(pollers))
	return nil
}

// Stop tears down in order: pollers, push channel, manager.
func (s *boardService) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.stopPollersLocked()
	h := s.handle
	s.mu.Unlock()

	if h != nil {
		h.Close()
	}
	s.manager.Dispose()
	s.logger.Infof(context.Background(), "service.boardService.Stop: board %s stopped", s.scope.Topic)
}

func (s *boardService) Submit(env models.Envelope) error {
	return s.manager.Submit(env)
}

func (s *boardService) Board(ctx context.Context) (queue.Board, error) {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return queue.Board{}, ErrBoardNotStarted
	}
	return s.manager.Board(ctx)
}

func (s *boardService) Connection() models.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *boardService) onMessage(env models.Envelope) {
	if err := s.manager.Submit(env); err != nil {
		s.logger.Debugf(context.Background(), "service.boardService.onMessage: %v", err)
	}
}

func (s *boardService) onState(state models.ConnectionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	for _, l := range s.listeners {
		l(state)
	}
}

func (s *boardService) startPollers() ([]func(), error) {
	if s.fetcher == nil {
		return nil, nil
	}

	var stops []func()
	if s.scope.Department != "" {
		p, err := poll.Start(s.scope.Topic, repository.ResourceStats, s.fetcher.Stats(s.scope.Department, s.scope.Date),
			s.scope.StatsInterval, submitResult(s, func(v models.QueueSnapshot, stale bool) models.Event {
				return models.StatsReceived{Snapshot: v, Stale: stale}
			}), s.pollOpts)
		if err != nil {
			return stops, err
		}
		stops = append(stops, p.Stop)
	}

	if s.scope.BoardID != "" {
		p, err := poll.Start(s.scope.Topic, repository.ResourceState, s.fetcher.BoardState(s.scope.BoardID),
			s.scope.BoardInterval, submitResult(s, func(v models.BoardState, stale bool) models.Event {
				return models.BoardStateReceived{State: v, Stale: stale}
			}), s.pollOpts)
		if err != nil {
			return stops, err
		}
		stops = append(stops, p.Stop)

		w, err := poll.Start(s.scope.Topic, repository.ResourceWindows, s.fetcher.Windows(s.scope.BoardID),
			s.scope.WindowsInterval, submitResult(s, func(v []models.Window, stale bool) models.Event {
				return models.WindowsReceived{Windows: v, Stale: stale}
			}), s.pollOpts)
		if err != nil {
			return stops, err
		}
		stops = append(stops, w.Stop)
	}

	return stops, nil
}

func (s *boardService) stopPollersLocked() {
	for _, stop := range s.pollers {
		stop()
	}
	s.pollers = nil
}

// submitResult converts a poll result into a reducer event.
func submitResult[T any](s *boardService, toEvent func(v T, stale bool) models.Event) func(poll.Result[T]) {
	return func(r poll.Result[T]) {
		var ev models.Event
		if r.Unavailable {
			ev = models.Availability{Resource: r.Resource, Unavailable: true}
		} else {
			ev = toEvent(r.Value, r.Stale)
		}
		if err := s.manager.Submit(models.Envelope{Event: ev}); err != nil {
			s.logger.Debugf(context.Background(), "service.boardService.submitResult: %s: %v", r.Resource, err)
		}
	}
}
