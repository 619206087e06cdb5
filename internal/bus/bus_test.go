package bus

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func waitFor(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		var received atomic.Pointer[domain.Message]

		var wg sync.WaitGroup
		wg.Add(1)

		_, err := bus.Subscribe(ctx, tenantID, domain.TopicRulesetPublished, func(ctx context.Context, msg *domain.Message) error {
			received.Store(msg)
			wg.Done()
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		// Allow subscription to be active
		time.Sleep(10 * time.Millisecond)

		event := domain.RulesetPublishedEvent{
			TenantID:       tenantID,
			Domain:         "icc.ucp600",
			Jurisdiction:   "global",
			RulesetVersion: "4",
		}
		payload, _ := json.Marshal(event)

		if err := bus.Publish(ctx, tenantID, domain.TopicRulesetPublished, payload); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		waitFor(t, &wg)

		msg := received.Load()
		if msg == nil {
			t.Fatal("message not received")
		}
		if msg.Topic != domain.TopicRulesetPublished {
			t.Errorf("expected topic %s, got %s", domain.TopicRulesetPublished, msg.Topic)
		}

		var got domain.RulesetPublishedEvent
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatalf("payload decode failed: %v", err)
		}
		if got.RulesetVersion != "4" {
			t.Errorf("expected version 4 in event, got %s", got.RulesetVersion)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		var otherTenantGot atomic.Bool

		_, err := bus.Subscribe(ctx, "tenant-002", domain.TopicReportSaved, func(ctx context.Context, msg *domain.Message) error {
			otherTenantGot.Store(true)
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		time.Sleep(10 * time.Millisecond)

		if err := bus.Publish(ctx, tenantID, domain.TopicReportSaved, []byte("{}")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		time.Sleep(50 * time.Millisecond)

		if otherTenantGot.Load() {
			t.Error("subscriber received a message from another tenant")
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var count atomic.Int32
		var wg sync.WaitGroup
		wg.Add(2)

		for i := 0; i < 2; i++ {
			_, err := bus.Subscribe(ctx, tenantID, "fanout.topic", func(ctx context.Context, msg *domain.Message) error {
				count.Add(1)
				wg.Done()
				return nil
			})
			if err != nil {
				t.Fatalf("subscribe failed: %v", err)
			}
		}

		time.Sleep(10 * time.Millisecond)

		if err := bus.Publish(ctx, tenantID, "fanout.topic", []byte("{}")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		waitFor(t, &wg)

		if count.Load() != 2 {
			t.Errorf("expected 2 deliveries, got %d", count.Load())
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var got atomic.Bool

		sub, err := bus.Subscribe(ctx, tenantID, "short.lived", func(ctx context.Context, msg *domain.Message) error {
			got.Store(true)
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("unsubscribe failed: %v", err)
		}

		if err := bus.Publish(ctx, tenantID, "short.lived", []byte("{}")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		time.Sleep(50 * time.Millisecond)

		if got.Load() {
			t.Error("unsubscribed handler still received a message")
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := bus.Publish(ctx, "", "topic", []byte("{}")); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := bus.Subscribe(ctx, "", "topic", nil); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestChannelBusClosed(t *testing.T) {
	bus := NewChannelBus(10)
	ctx := context.Background()

	if err := bus.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := bus.Publish(ctx, "tenant-001", "topic", []byte("{}")); err == nil {
		t.Error("expected error publishing to closed bus")
	}
	if _, err := bus.Subscribe(ctx, "tenant-001", "topic", nil); err == nil {
		t.Error("expected error subscribing to closed bus")
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping to fail on closed bus")
	}

	// Closing twice is a no-op
	if err := bus.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 10})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer b.Close()

		if _, ok := b.(*ChannelBus); !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
