package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_PublishOrder(t *testing.T) {
	b := NewBroker()
	defer b.Stop()

	w := b.Subscribe("ordered")

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, b.Publish(w, func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	w.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestBroker_TaskCanUnsubscribeItself(t *testing.T) {
	b := NewBroker()
	defer b.Stop()

	w := b.Subscribe("self")
	ran := make(chan int, 2)

	b.Publish(w, func() {
		ran <- 1
		b.Unsubscribe("self")
	})
	b.Publish(w, func() {
		ran <- 2
	})

	select {
	case v := <-ran:
		assert.Equal(t, 1, v)
	case <-time.After(2 * time.Second):
		t.Fatal("first task did not run")
	}

	w.Wait()
	select {
	case v := <-ran:
		t.Fatalf("task %d ran after unsubscribe", v)
	case <-time.After(50 * time.Millisecond):
	}

	assert.False(t, b.Publish(w, func() {}), "publish to a stopped worker must fail")
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBroker_ResubscribeStopsOldWorker(t *testing.T) {
	b := NewBroker()
	defer b.Stop()

	old := b.Subscribe("name")
	fresh := b.Subscribe("name")

	assert.False(t, b.Publish(old, func() {}))
	assert.True(t, b.Publish(fresh, func() {}))
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestBroker_PanicIsRecovered(t *testing.T) {
	b := NewBroker()
	defer b.Stop()

	w := b.Subscribe("panicky")
	done := make(chan struct{})

	b.Publish(w, func() { panic("boom") })
	b.Publish(w, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker stopped after a panicking task")
	}
}

func TestBroker_UnsubscribeUnknown(t *testing.T) {
	b := NewBroker()
	b.Unsubscribe("missing")
	assert.False(t, b.Publish(nil, func() {}))
	b.Stop()
	assert.Equal(t, 0, b.SubscriberCount())
}
