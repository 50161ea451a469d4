package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
)

func fixedClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func TestSessionStore_AppendOrderAndReset(t *testing.T) {
	s := NewSessionStore(WithClock(fixedClock()))

	s.AppendTurn("s1", domain.RoleUser, "one")
	s.AppendTurn("s1", domain.RoleAssistant, "two")
	s.AppendTurn("s1", domain.RoleUser, "three")

	snap, ok := s.Snapshot("s1")
	require.True(t, ok)
	require.Len(t, snap.Turns, 3)
	for i, want := range []string{"one", "two", "three"} {
		assert.Equal(t, want, snap.Turns[i].Text)
	}
	assert.True(t, snap.Turns[0].At.Before(snap.Turns[2].At))
	assert.Equal(t, domain.StateGathering, snap.State)
	assert.True(t, s.ShouldTriggerAnalysis("s1"))

	s.Reset("s1")
	snap, ok = s.Snapshot("s1")
	assert.False(t, ok)
	assert.Empty(t, snap.Turns)
	assert.Equal(t, domain.StateGathering, snap.State)
	assert.False(t, s.ShouldTriggerAnalysis("s1"))

	// idempotent and safe for unknown ids
	s.Reset("s1")
	s.Reset("never-seen")
	assert.Empty(t, s.IDs())
}

func TestSessionStore_ShouldTrigger(t *testing.T) {
	s := NewSessionStore()
	assert.False(t, s.ShouldTriggerAnalysis("x"))

	s.AppendTurn("x", domain.RoleUser, "hi")
	assert.True(t, s.ShouldTriggerAnalysis("x"))

	s.AppendTurn("x", domain.RoleAssistant, "hello")
	assert.False(t, s.ShouldTriggerAnalysis("x"))
}

func TestSessionStore_StateCycle(t *testing.T) {
	s := NewSessionStore()
	lease, err := s.TryAcquire("x")
	require.NoError(t, err)

	lease.AppendTurn(domain.RoleUser, "gym")
	plan := &domain.AnalysisPlan{PlaylistTitle: "Lift"}
	lease.CompleteAnalysis(plan)
	lease.AppendTurn(domain.RoleAssistant, "here you go")
	assert.Equal(t, domain.StateAnalysisComplete, lease.State())
	lease.Release()
	lease.Release()

	snap, _ := s.Snapshot("x")
	assert.Equal(t, domain.StateAnalysisComplete, snap.State)
	assert.Same(t, plan, snap.LastAnalysis)

	s.AppendTurn("x", domain.RoleUser, "something calmer now")
	snap, _ = s.Snapshot("x")
	assert.Equal(t, domain.StateGathering, snap.State)
}

func TestSessionStore_TryAcquireBusy(t *testing.T) {
	s := NewSessionStore()
	lease, err := s.TryAcquire("a")
	require.NoError(t, err)

	_, err = s.TryAcquire("a")
	assert.True(t, errors.Is(err, domain.ErrSessionBusy))

	other, err := s.TryAcquire("b")
	require.NoError(t, err, "different sessions never block each other")
	other.Release()

	lease.Release()
	again, err := s.TryAcquire("a")
	require.NoError(t, err)
	again.Release()
}

func TestSessionStore_ResetWaitsForLease(t *testing.T) {
	s := NewSessionStore()
	lease, err := s.TryAcquire("a")
	require.NoError(t, err)
	lease.AppendTurn(domain.RoleUser, "hello")

	done := make(chan struct{})
	go func() {
		s.Reset("a")
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("reset must wait for the in-flight request")
	case <-time.After(20 * time.Millisecond):
	}

	lease.Release()
	<-done

	_, ok := s.Snapshot("a")
	assert.False(t, ok)

	fresh, err := s.TryAcquire("a")
	require.NoError(t, err)
	assert.Empty(t, fresh.Turns())
	fresh.Release()
}

func TestSessionStore_ConcurrentAppends(t *testing.T) {
	s := NewSessionStore()
	const sessions, perSession = 8, 50

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		id := fmt.Sprintf("s%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSession; j++ {
				s.AppendTurn(id, domain.RoleUser, fmt.Sprintf("%d", j))
			}
		}()
	}
	wg.Wait()

	require.Len(t, s.IDs(), sessions)
	for _, id := range s.IDs() {
		snap, _ := s.Snapshot(id)
		require.Len(t, snap.Turns, perSession)
		for j, turn := range snap.Turns {
			assert.Equal(t, fmt.Sprintf("%d", j), turn.Text)
		}
	}
}
