package watch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/cplane-io/tinyxs/kv/transaction"
)

func collect(t *testing.T, sub *Subscription, n int) []transaction.WatchEvent {
	var out []transaction.WatchEvent
	for i := 0; i < n; i++ {
		select {
		case ev := <-sub.Events():
			out = append(out, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
	return out
}

func TestDeliverToMatchingSubscriber(t *testing.T) {
	d := NewDispatcher()
	d.Start()
	defer d.Stop()

	sub := d.Subscribe("/a", 16, rate.Limit(1000), 1000)
	d.Deliver([]transaction.WatchEvent{
		{Op: transaction.WatchOpWrite, Path: "/a/b"},
		{Op: transaction.WatchOpWrite, Path: "/other"},
		{Op: transaction.WatchOpMkdir, Path: "/a"},
	})

	events := collect(t, sub, 2)
	assert.Equal(t, "/a/b", events[0].Path)
	assert.Equal(t, "/a", events[1].Path)
}

func TestRootSubscriberSeesEverything(t *testing.T) {
	d := NewDispatcher()
	d.Start()
	defer d.Stop()

	sub := d.Subscribe("/", 16, rate.Limit(1000), 1000)
	d.Deliver([]transaction.WatchEvent{
		{Op: transaction.WatchOpWrite, Path: "/x"},
		{Op: transaction.WatchOpRm, Path: "/y/z"},
	})

	events := collect(t, sub, 2)
	require.Len(t, events, 2)
}

func TestPrefixIsPathwise(t *testing.T) {
	d := NewDispatcher()
	d.Start()
	defer d.Stop()

	sub := d.Subscribe("/a", 16, rate.Limit(1000), 1000)
	// "/ab" shares a string prefix with "/a" but is a sibling, not a child.
	d.Deliver([]transaction.WatchEvent{
		{Op: transaction.WatchOpWrite, Path: "/ab"},
		{Op: transaction.WatchOpWrite, Path: "/a/ok"},
	})

	events := collect(t, sub, 1)
	assert.Equal(t, "/a/ok", events[0].Path)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	d := NewDispatcher()
	d.Start()
	defer d.Stop()

	sub := d.Subscribe("/", 16, rate.Limit(1000), 1000)
	d.Unsubscribe(sub)

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	d := NewDispatcher()
	d.Start()
	defer d.Stop()

	// Queue of one, generous rate: the second event must be dropped, not
	// stall the dispatcher.
	sub := d.Subscribe("/", 1, rate.Limit(1000), 1000)
	d.Deliver([]transaction.WatchEvent{
		{Op: transaction.WatchOpWrite, Path: "/1"},
		{Op: transaction.WatchOpWrite, Path: "/2"},
	})

	events := collect(t, sub, 1)
	assert.Equal(t, "/1", events[0].Path)
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCallsAfterStopReturn(t *testing.T) {
	d := NewDispatcher()
	d.Start()
	sub := d.Subscribe("/", 1, rate.Limit(1000), 1000)
	d.Stop()

	// Enough events to overflow the task queue many times over; none of
	// these calls may park on the dead loop.
	ev := []transaction.WatchEvent{{Op: transaction.WatchOpWrite, Path: "/x"}}
	for i := 0; i < defaultTaskCapacity*4; i++ {
		d.Deliver(ev)
	}
	d.Unsubscribe(sub)
	d.Stop()

	late := d.Subscribe("/", 1, rate.Limit(1000), 1000)
	select {
	case _, ok := <-late.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription opened after stop not closed")
	}
}
