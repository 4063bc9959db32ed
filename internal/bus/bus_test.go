package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("conversation.", 10)
	defer unsub()

	b.Emit(ConversationUpdated, "s1:l1:p1")

	select {
	case evt := <-ch:
		if evt.Kind != ConversationUpdated {
			t.Errorf("got kind %q, want %s", evt.Kind, ConversationUpdated)
		}
		if evt.ID == "" {
			t.Error("event id is empty")
		}
		if evt.Payload != "s1:l1:p1" {
			t.Errorf("payload = %v, want s1:l1:p1", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPrefixFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("activity.", 10)
	defer unsub()

	b.Emit(InboxUpdated, nil)
	b.Emit(ActivityChanged, nil)

	select {
	case evt := <-ch:
		if evt.Kind != ActivityChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, ActivityChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("conversation.", 10)
	unsub()
	unsub() // idempotent

	b.Emit(ConversationUpdated, nil)

	if _, ok := <-ch; ok {
		t.Error("received event after unsubscribe")
	}
	if n := b.Subscribers(); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("conversation.", 1)
	defer unsub()

	b.Emit(MessageSending, nil)
	// Dropped: the buffer is full and Publish must not block.
	b.Emit(MessageSent, nil)

	evt := <-ch
	if evt.Kind != MessageSending {
		t.Errorf("got %q, want %s", evt.Kind, MessageSending)
	}
}

func TestNilBusPublishIsNoop(t *testing.T) {
	var b *Bus
	b.Emit(ConversationUpdated, nil)
}
