package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func TestKind_IsTerminal(t *testing.T) {
	assert.False(t, KindProgress.IsTerminal())
	assert.True(t, KindComplete.IsTerminal())
	assert.True(t, KindError.IsTerminal())
	assert.True(t, KindCancelled.IsTerminal())
}

func TestBus_PublishFansOutInOrder(t *testing.T) {
	bus := NewBus(nil)
	a, b := &recorder{}, &recorder{}
	bus.Subscribe(a)
	bus.Subscribe(b)

	bus.Publish(Progress("job-1", 10))
	bus.Publish(Progress("job-1", 55))
	bus.Publish(Complete("job-1", "/tmp/x.mp4"))

	want := []Kind{KindProgress, KindProgress, KindComplete}
	assert.Equal(t, want, a.kinds())
	assert.Equal(t, want, b.kinds())
	assert.Equal(t, "/tmp/x.mp4", a.events[2].Path)
	assert.Equal(t, float64(100), a.events[2].Percent)
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(nil)
	r := &recorder{}
	unsubscribe := bus.Subscribe(r)

	bus.Publish(Progress("job-1", 1))
	unsubscribe()
	unsubscribe() // idempotent
	bus.Publish(Cancelled("job-1"))

	assert.Equal(t, []Kind{KindProgress}, r.kinds())
	assert.Equal(t, 0, bus.Len())
}

func TestBus_NoReplayForLateSubscribers(t *testing.T) {
	bus := NewBus(nil)
	bus.Publish(Error("job-1", "boom"))

	late := &recorder{}
	bus.Subscribe(late)
	assert.Empty(t, late.kinds())
}

func TestBus_PanickingObserverDoesNotBreakOthers(t *testing.T) {
	bus := NewBus(nil)
	bus.Subscribe(ObserverFunc(func(Event) { panic("bad consumer") }))
	r := &recorder{}
	bus.Subscribe(r)

	require.NotPanics(t, func() { bus.Publish(Cancelled("job-1")) })
	assert.Equal(t, []Kind{KindCancelled}, r.kinds())
}

func TestSubscribeChan_DropsProgressKeepsTerminal(t *testing.T) {
	bus := NewBus(nil)
	ch, unsubscribe := bus.SubscribeChan(1)
	defer unsubscribe()

	// nobody reads while publishing; Publish must still return
	for i := 1; i <= 100; i++ {
		bus.Publish(Progress("job-1", float64(i)))
	}
	bus.Publish(Complete("job-1", "/out.mp4"))
	bus.Publish(Cancelled("job-2"))

	var got []Event
	timeout := time.After(2 * time.Second)
	for len(got) == 0 || got[len(got)-1].Kind != KindCancelled {
		select {
		case e := <-ch:
			got = append(got, e)
		case <-timeout:
			t.Fatalf("terminal events not delivered, got %d events", len(got))
		}
	}

	require.GreaterOrEqual(t, len(got), 3)
	assert.Equal(t, KindComplete, got[len(got)-2].Kind)
	progress := got[:len(got)-2]
	assert.LessOrEqual(t, len(progress), 3)
	for i := 1; i < len(progress); i++ {
		assert.Greater(t, progress[i].Percent, progress[i-1].Percent)
	}
}

func TestSubscribeChan_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(nil)
	ch, unsubscribe := bus.SubscribeChan(1)

	bus.Publish(Progress("job-1", 1))
	bus.Publish(Error("job-1", "failed"))

	unsubscribe()
	assert.Equal(t, 0, bus.Len())

	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("channel not closed after unsubscribe")
		}
	}
}

func TestChanObserver_NotifyAfterCloseIgnored(t *testing.T) {
	c := NewChanObserver(1)
	c.Close()
	c.Close()

	c.Notify(Complete("job-1", "/out.mp4"))
	_, ok := <-c.Events()
	assert.False(t, ok)
}
