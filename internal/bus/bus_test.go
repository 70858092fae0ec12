package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/underwriter/internal/domain"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		received := make(chan *domain.Message, 1)
		_, err := bus.Subscribe(ctx, domain.TopicRequestScored, func(ctx context.Context, msg *domain.Message) error {
			received <- msg
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if err := bus.Publish(ctx, domain.TopicRequestScored, []byte("hello")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		select {
		case msg := <-received:
			if string(msg.Payload) != "hello" {
				t.Errorf("expected payload 'hello', got '%s'", msg.Payload)
			}
			if msg.ID == "" || msg.Timestamp == 0 {
				t.Error("expected message id and timestamp")
			}
			if msg.Topic != domain.TopicRequestScored {
				t.Errorf("unexpected topic %q", msg.Topic)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		var scored, eligible atomic.Int32

		bus.Subscribe(ctx, "isolation.scored", func(ctx context.Context, msg *domain.Message) error {
			scored.Add(1)
			return nil
		})
		bus.Subscribe(ctx, "isolation.eligible", func(ctx context.Context, msg *domain.Message) error {
			eligible.Add(1)
			return nil
		})

		bus.Publish(ctx, "isolation.scored", []byte("msg1"))

		waitFor(t, func() bool { return scored.Load() == 1 })
		time.Sleep(20 * time.Millisecond)
		if eligible.Load() != 0 {
			t.Errorf("other topic should receive 0 messages, got %d", eligible.Load())
		}
	})

	t.Run("RequiresTopic", func(t *testing.T) {
		if err := bus.Publish(ctx, "", []byte("data")); err == nil {
			t.Error("expected error for empty topic")
		}
		if _, err := bus.Subscribe(ctx, "", func(ctx context.Context, msg *domain.Message) error { return nil }); err == nil {
			t.Error("expected error for empty topic")
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32
		sub, _ := bus.Subscribe(ctx, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})

		bus.Publish(ctx, "unsub.topic", []byte("msg1"))
		waitFor(t, func() bool { return count.Load() == 1 })

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("unsubscribe: %v", err)
		}
		bus.Publish(ctx, "unsub.topic", []byte("msg2"))
		time.Sleep(20 * time.Millisecond)

		if count.Load() != 1 {
			t.Errorf("expected 1 message after unsubscribe, got %d", count.Load())
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(2)

		for range 2 {
			bus.Subscribe(ctx, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
				wg.Done()
				return nil
			})
		}

		bus.Publish(ctx, "multi.topic", []byte("broadcast"))

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("not all subscribers received the message")
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, _ := bus.Subscribe(ctx, "my.topic", func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		if sub.Topic() != "my.topic" {
			t.Errorf("expected topic 'my.topic', got '%s'", sub.Topic())
		}
	})

	t.Run("RequestReply", func(t *testing.T) {
		bus.Subscribe(ctx, "echo", func(ctx context.Context, msg *domain.Message) error {
			return bus.Publish(ctx, ReplyTopic(msg), append([]byte("re: "), msg.Payload...))
		})

		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()

		reply, err := bus.Request(reqCtx, "echo", []byte("ping"))
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		if string(reply) != "re: ping" {
			t.Errorf("unexpected reply %q", reply)
		}
	})

	t.Run("RequestTimeout", func(t *testing.T) {
		reqCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		if _, err := bus.Request(reqCtx, "nobody.listens", nil); err == nil {
			t.Error("expected timeout error")
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)
	ctx := context.Background()

	bus.Subscribe(ctx, "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	})

	if err := bus.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}

	if err := bus.Publish(ctx, "close.topic", []byte("data")); err == nil {
		t.Error("expected error after close")
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}
}

func TestChannelBusQueueGroup(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()
	ctx := context.Background()

	var a, b, plain atomic.Int64
	if _, err := bus.QueueSubscribe(ctx, "queue.topic", "workers", func(ctx context.Context, msg *domain.Message) error {
		a.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("queue subscribe: %v", err)
	}
	if _, err := bus.QueueSubscribe(ctx, "queue.topic", "workers", func(ctx context.Context, msg *domain.Message) error {
		b.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("queue subscribe: %v", err)
	}
	bus.Subscribe(ctx, "queue.topic", func(ctx context.Context, msg *domain.Message) error {
		plain.Add(1)
		return nil
	})

	const n = 20
	for i := 0; i < n; i++ {
		if err := bus.Publish(ctx, "queue.topic", []byte("x")); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	waitFor(t, func() bool { return a.Load()+b.Load() == n && plain.Load() == n })
	if a.Load() == 0 || b.Load() == 0 {
		t.Errorf("expected both members to receive work, got %d and %d", a.Load(), b.Load())
	}

	if _, err := bus.QueueSubscribe(ctx, "queue.topic", "", func(context.Context, *domain.Message) error { return nil }); err == nil {
		t.Error("expected error for empty queue group")
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		bus, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer bus.Close()

		if _, ok := bus.(*ChannelBus); !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()

	var received atomic.Int32
	const messageCount = 100

	bus.Subscribe(ctx, "load.topic", func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		return nil
	})

	for range messageCount {
		bus.Publish(ctx, "load.topic", []byte("msg"))
	}

	deadline := time.Now().Add(5 * time.Second)
	for received.Load() != messageCount {
		if time.Now().After(deadline) {
			t.Fatalf("timeout: received %d/%d messages", received.Load(), messageCount)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
