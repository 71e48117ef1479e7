package explore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapexplore/internal/testutil"
)

func TestStore_DispatchNotifiesPane(t *testing.T) {
	s := NewStore(State{}, testutil.NewTestLogger(t))
	defer s.Close()

	ch := s.Subscribe()
	s.Dispatch(ChangeSize(Right, 800))

	select {
	case id := <-ch:
		assert.Equal(t, Right, id)
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}

	pane, ok := s.Pane(Right)
	require.True(t, ok)
	assert.Equal(t, 800, pane.ContainerWidth)

	s.Dispatch(SetUser(UserState{Login: "ana"}))
	assert.Equal(t, ExploreID(""), <-ch)
	assert.Equal(t, "ana", s.State().User.Login)
}

func TestStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	s := NewStore(State{}, nil)
	defer s.Close()

	ch := s.Subscribe()
	done := make(chan struct{})
	go func() {
		for i := range 100 {
			s.Dispatch(ChangeSize(Left, i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked on a full subscriber")
	}
	pane, _ := s.Pane(Left)
	assert.Equal(t, 99, pane.ContainerWidth)
	assert.NotEmpty(t, ch)
}

func TestStore_Unsubscribe(t *testing.T) {
	s := NewStore(State{}, nil)

	ch := s.Subscribe()
	s.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)

	// Unsubscribing twice and closing afterwards must not panic.
	s.Unsubscribe(ch)
	s.Close()

	late := s.Subscribe()
	_, open = <-late
	assert.False(t, open, "subscriptions after Close are closed")
}

func TestStore_ConcurrentDispatchIsSerialized(t *testing.T) {
	s := NewStore(State{}, nil)
	defer s.Close()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Dispatch(ChangePanelState(Left, string(rune('a'+i%26))+string(rune('a'+i/26)), PanelState{"n": i}))
		}()
	}
	wg.Wait()

	pane, _ := s.Pane(Left)
	assert.Len(t, pane.PanelsState, 50, "no update may be lost")
}

func TestStore_EffectsSeeNewState(t *testing.T) {
	s := NewStore(State{}, nil)
	defer s.Close()

	var seen []int
	s.Use(func(_ context.Context, action Action, st *Store) {
		if _, ok := action.(ChangeSizeAction); !ok {
			return
		}
		pane, _ := st.Pane(Left)
		seen = append(seen, pane.ContainerWidth)
	})

	s.Dispatch(ChangeSize(Left, 10))
	s.Dispatch(ClearCache(Left))
	s.Dispatch(ChangeSize(Left, 20))
	assert.Equal(t, []int{10, 20}, seen)
}

func TestStore_CloseCancelsGoroutines(t *testing.T) {
	s := NewStore(State{}, nil)

	started := make(chan struct{})
	s.Go(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	<-started
	s.Close()

	ran := false
	s.Go(func(context.Context) { ran = true })
	s.Wait()
	assert.False(t, ran, "Go after Close is a no-op")
}

func TestStore_GoRacingClose(t *testing.T) {
	for range 50 {
		s := NewStore(State{}, nil)

		var (
			mu      sync.Mutex
			running int
			closed  bool
			late    bool
		)
		var callers sync.WaitGroup
		for range 8 {
			callers.Add(1)
			go func() {
				defer callers.Done()
				s.Go(func(ctx context.Context) {
					mu.Lock()
					running++
					if closed {
						late = true
					}
					mu.Unlock()
					<-ctx.Done()
					mu.Lock()
					running--
					mu.Unlock()
				})
			}()
		}
		s.Close()
		mu.Lock()
		closed = true
		require.Zero(t, running, "Close returned while effect goroutines were running")
		mu.Unlock()
		callers.Wait()
		s.Wait()

		mu.Lock()
		assert.False(t, late, "goroutine started after Close")
		mu.Unlock()
	}
}
