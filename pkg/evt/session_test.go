package evt

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	got  []int
	done chan struct{}
	want int
}

func (r *recorder) OnEvent(event int) error {
	r.mu.Lock()
	r.got = append(r.got, event)
	n := len(r.got)
	r.mu.Unlock()
	if n == r.want {
		close(r.done)
	}
	return nil
}

func TestSessionDeliversSendEvents(t *testing.T) {
	rec := &recorder{want: 3, done: make(chan struct{})}
	s := NewSession[int](rec, 8)
	go s.Run()
	defer s.Close()

	require.NoError(t, s.Send(1))
	require.NoError(t, s.Send(2))
	require.NoError(t, s.Send(3))

	select {
	case <-rec.done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for events")
	}
	assert.Equal(t, []int{1, 2, 3}, rec.got)
}

func TestTimerFiresAfterDelay(t *testing.T) {
	rec := &recorder{want: 1, done: make(chan struct{})}
	s := NewSession[int](rec, 8)
	go s.Run()
	defer s.Close()

	_, err := s.Timer().Set(10*time.Millisecond, 42)
	require.NoError(t, err)

	select {
	case <-rec.done:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	assert.Equal(t, []int{42}, rec.got)
}

func TestUnsetPreventsDelivery(t *testing.T) {
	rec := &recorder{want: 1, done: make(chan struct{})}
	s := NewSession[int](rec, 8)
	go s.Run()
	defer s.Close()

	id, err := s.Timer().Set(20*time.Millisecond, 99)
	require.NoError(t, err)
	require.NoError(t, s.Timer().Unset(id))

	// Prove no event arrives by racing a second, later timer past the
	// unset one's deadline and observing only its payload.
	s2 := rec
	_, err = s.Timer().Set(40*time.Millisecond, 7)
	require.NoError(t, err)

	select {
	case <-s2.done:
	case <-time.After(time.Second):
		t.Fatal("expected timer never fired")
	}
	assert.Equal(t, []int{7}, s2.got)
}

func TestUnsetUnknownIDIsNotAnError(t *testing.T) {
	rec := &recorder{want: 1, done: make(chan struct{})}
	s := NewSession[int](rec, 8)
	go s.Run()
	defer s.Close()

	// Simulates the fire/unset race: the timer has already fired and
	// removed itself before Unset is called against its stale id.
	assert.NoError(t, s.Timer().Unset(TimerID(999)))
}

func TestCloseStopsOutstandingTimers(t *testing.T) {
	var fired int32
	owner := OnEventFunc[int](func(event int) error {
		atomic.AddInt32(&fired, 1)
		return nil
	})
	s := NewSession[int](owner, 8)
	go s.Run()

	_, err := s.Timer().Set(50*time.Millisecond, 1)
	require.NoError(t, err)
	s.Close()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}
