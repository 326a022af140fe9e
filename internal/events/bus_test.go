package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanOut(t *testing.T) {
	b := New()
	a, cancelA := b.Subscribe(4)
	defer cancelA()
	c, cancelC := b.Subscribe(4)
	defer cancelC()

	b.Publish(Event{Type: TypeRecognition, Payload: "x"})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case ev := <-ch:
			assert.Equal(t, TypeRecognition, ev.Type)
			assert.Equal(t, "x", ev.Payload)
			assert.False(t, ev.At.IsZero())
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestTypeFilter(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe(4, TypeAttendance)
	defer cancel()

	b.Publish(Event{Type: TypeCapture})
	b.Publish(Event{Type: TypeAttendance, Payload: 1})

	ev := <-ch
	assert.Equal(t, TypeAttendance, ev.Type)
	assert.Empty(t, ch)
}

func TestFullSubscriberDrops(t *testing.T) {
	b := New()
	_, cancel := b.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			b.Publish(Event{Type: TypeCapture})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	published, dropped := b.Stats()
	assert.Equal(t, uint64(5), published)
	assert.Equal(t, uint64(4), dropped)
}

func TestCancelClosesChannel(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe(1)
	assert.Equal(t, 1, b.Subscribers())
	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, b.Subscribers())

	b.Publish(Event{Type: TypeCapture})
}

func TestClose(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe(1)
	b.Close()
	_, ok := <-ch
	assert.False(t, ok)
	cancel()

	late, _ := b.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok)
	b.Publish(Event{Type: TypeCapture})
}

func TestConcurrentPublishAndCancel(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		ch, cancel := b.Subscribe(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Publish(Event{Type: TypeRecognition})
			}
		}()
		go func() {
			defer wg.Done()
			<-ch
			cancel()
		}()
	}
	wg.Wait()
	require.Zero(t, b.Subscribers())
}
