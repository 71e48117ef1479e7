package explore

import (
	"context"
	"log/slog"
	"sync"
)

// Dispatcher is the write side of a Store as seen by workflows and effects.
type Dispatcher interface {
	Dispatch(action Action)
	State() State
}

// Effect reacts to a dispatched action after the state has been updated.
// Effects run synchronously on the dispatching goroutine and must hand
// blocking work to Store.Go.
type Effect func(ctx context.Context, action Action, s *Store)

// Store owns the explore State. Dispatch is the only writer.
type Store struct {
	mu    sync.RWMutex
	state State

	subsMu sync.Mutex
	subs   map[chan ExploreID]struct{}
	closed bool

	effects []Effect

	ctx     context.Context
	cancel  context.CancelFunc
	goMu    sync.Mutex
	stopped bool
	wg      sync.WaitGroup

	logger *slog.Logger
}

// NewStore creates a store holding initial. A nil logger discards output.
func NewStore(initial State, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if initial.Panes == nil {
		initial.Panes = map[ExploreID]PaneState{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		state:  initial,
		subs:   make(map[chan ExploreID]struct{}),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Use registers an effect. Effects must be registered before the first Dispatch.
func (s *Store) Use(e Effect) {
	s.effects = append(s.effects, e)
}

// Dispatch applies action, notifies subscribers of the affected pane and runs
// the registered effects.
func (s *Store) Dispatch(action Action) {
	s.mu.Lock()
	s.state = RootReducer(s.state, action)
	s.mu.Unlock()

	var id ExploreID
	if pa, ok := action.(PaneAction); ok {
		id = pa.Pane()
	}
	s.logger.Debug("dispatched", "action", action.Type(), "pane", id)
	s.publish(id)

	for _, e := range s.effects {
		e(s.ctx, action, s)
	}
}

// State returns the current state. The returned value must not be mutated.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Pane returns the current state of pane id.
func (s *Store) Pane(id ExploreID) (PaneState, bool) {
	return s.State().Pane(id)
}

// Subscribe returns a channel receiving the id of every changed pane.
// Root-level changes publish the empty id. Slow subscribers miss
// notifications rather than block Dispatch; they should re-read State.
func (s *Store) Subscribe() chan ExploreID {
	ch := make(chan ExploreID, 16)
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if s.closed {
		close(ch)
		return ch
	}
	s.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a subscription.
func (s *Store) Unsubscribe(ch chan ExploreID) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
}

func (s *Store) publish(id ExploreID) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- id:
		default:
		}
	}
}

// Go runs fn in a goroutine tracked by Wait and cancelled by Close.
// Calls after Close are ignored.
func (s *Store) Go(fn func(ctx context.Context)) {
	s.goMu.Lock()
	defer s.goMu.Unlock()
	if s.stopped {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// Wait blocks until all goroutines started with Go have returned.
func (s *Store) Wait() {
	s.wg.Wait()
}

// Close cancels running effects, waits for them and closes all subscriptions.
func (s *Store) Close() {
	s.goMu.Lock()
	s.stopped = true
	s.goMu.Unlock()
	s.cancel()
	s.wg.Wait()

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.closed = true
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
}
