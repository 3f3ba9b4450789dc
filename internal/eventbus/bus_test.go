package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSubscribePublishDeliversInOrder(t *testing.T) {
	b := NewBus(8)
	sub, err := b.Subscribe([]Topic{TopicVMStatus})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	b.Publish(TopicVMStatus, "one")
	b.Publish(TopicVMStatus, "two")
	b.Publish(TopicVMStatus, "three")

	for _, want := range []string{"one", "two", "three"} {
		select {
		case ev := <-sub.C:
			if ev.Payload != want {
				t.Fatalf("expected payload %q, got %v", want, ev.Payload)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestSubscribeRejectsUnknownTopic(t *testing.T) {
	b := NewBus(8)
	if _, err := b.Subscribe([]Topic{"not-a-real-topic"}); !errors.Is(err, ErrUnknownTopic) {
		t.Fatalf("expected ErrUnknownTopic, got %v", err)
	}
}

func TestPublishOnlyReachesSubscribedTopic(t *testing.T) {
	b := NewBus(8)
	sub, _ := b.Subscribe([]Topic{TopicAlerts})
	b.Publish(TopicBackups, "irrelevant")
	select {
	case ev := <-sub.C:
		t.Fatalf("did not expect delivery for unsubscribed topic, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFullBufferDropsSubscriber(t *testing.T) {
	b := NewBus(2)
	sub, _ := b.Subscribe([]Topic{TopicAlerts})
	for i := 0; i < 5; i++ {
		b.Publish(TopicAlerts, i)
	}
	if b.DroppedCount(sub.ID) == 0 {
		t.Fatal("expected subscriber to be recorded as dropped")
	}
	// channel must eventually close now that the subscriber was dropped
	drained := false
	for range sub.C {
		drained = true
	}
	_ = drained
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus(4)
	sub, _ := b.Subscribe([]Topic{TopicMigrations})
	sub.Close()
	if _, ok := <-sub.C; ok {
		t.Fatal("expected channel to be closed after Close")
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	b := NewBus(1)
	_, _ = b.Subscribe([]Topic{TopicNotifications})
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(TopicNotifications, i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish appears to have blocked on a full subscriber")
	}
}

func TestHeartbeatSentWhenIdle(t *testing.T) {
	b := NewBus(4)
	b.heartbeatInterval = 10 * time.Millisecond
	sub, _ := b.Subscribe([]Topic{TopicVMMetrics})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)

	select {
	case ev := <-sub.C:
		if ev.Kind != KindHeartbeat {
			t.Fatalf("expected heartbeat, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for heartbeat")
	}
}

func TestStopClosesAllSubscribers(t *testing.T) {
	b := NewBus(4)
	sub, _ := b.Subscribe([]Topic{TopicAlerts})
	b.Stop()
	if _, ok := <-sub.C; ok {
		t.Fatal("expected channel closed after Stop")
	}
}
