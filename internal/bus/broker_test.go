package bus_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"sbomflow/internal/bus"
	"sbomflow/internal/logging"
	"sbomflow/internal/testsupport"
)

func newTestBroker(t *testing.T, opts ...testsupport.ConfigOption) *bus.Broker {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	broker := bus.NewBroker(cfg, logging.NewNop())
	t.Cleanup(broker.Close)
	return broker
}

func TestBrokerDeliversToSubscriber(t *testing.T) {
	broker := newTestBroker(t)

	got := make(chan bus.Delivery, 1)
	broker.Subscribe(bus.TopicBomNotification, func(_ context.Context, d bus.Delivery) error {
		got <- d
		return nil
	})

	msg := bus.BomConsumed{Token: "tok", Format: "CycloneDX"}
	if err := broker.Publish(context.Background(), bus.TopicBomNotification, "project-1", msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case d := <-got:
		consumed, ok := d.Message.(bus.BomConsumed)
		if !ok {
			t.Fatalf("message type = %T, want BomConsumed", d.Message)
		}
		if consumed.Token != "tok" || d.Key != "project-1" || d.Attempt != 1 {
			t.Fatalf("delivery = %+v", d)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("delivery timed out")
	}
}

func TestBrokerPreservesPerKeyOrder(t *testing.T) {
	broker := newTestBroker(t, testsupport.WithBusPartitions(4))

	const perKey = 50
	keys := []string{"project-a", "project-b", "project-c"}

	var mu sync.Mutex
	seen := make(map[string][]string)
	done := make(chan struct{})
	total := 0
	broker.Subscribe(bus.TopicBomNotification, func(_ context.Context, d bus.Delivery) error {
		consumed := d.Message.(bus.BomConsumed)
		mu.Lock()
		seen[d.Key] = append(seen[d.Key], consumed.Token)
		total++
		if total == perKey*len(keys) {
			close(done)
		}
		mu.Unlock()
		return nil
	})

	ctx := context.Background()
	for i := 0; i < perKey; i++ {
		for _, key := range keys {
			msg := bus.BomConsumed{Token: fmt.Sprintf("%s-%d", key, i)}
			if err := broker.Publish(ctx, bus.TopicBomNotification, key, msg); err != nil {
				t.Fatalf("Publish: %v", err)
			}
		}
	}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("deliveries timed out")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, key := range keys {
		tokens := seen[key]
		if len(tokens) != perKey {
			t.Fatalf("key %s received %d messages, want %d", key, len(tokens), perKey)
		}
		for i, token := range tokens {
			if want := fmt.Sprintf("%s-%d", key, i); token != want {
				t.Fatalf("key %s out of order at %d: %s != %s", key, i, token, want)
			}
		}
	}
}

func TestBrokerRedeliversOnHandlerError(t *testing.T) {
	broker := newTestBroker(t, testsupport.WithDeliveryAttempts(3))

	var mu sync.Mutex
	var attempts []int
	done := make(chan struct{})
	broker.Subscribe(bus.TopicIngestionRequest, func(_ context.Context, d bus.Delivery) error {
		mu.Lock()
		attempts = append(attempts, d.Attempt)
		mu.Unlock()
		if d.Attempt < 2 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})

	msg := bus.IngestionRequest{Token: "tok"}
	if err := broker.Publish(context.Background(), bus.TopicIngestionRequest, "tok", msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("redelivery timed out")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Fatalf("attempts = %v, want [1 2]", attempts)
	}
}

func TestBrokerGivesUpAfterAttemptBudget(t *testing.T) {
	broker := newTestBroker(t, testsupport.WithDeliveryAttempts(2))

	var mu sync.Mutex
	calls := 0
	broker.Subscribe(bus.TopicIngestionRequest, func(_ context.Context, _ bus.Delivery) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("poison")
	})

	if err := broker.Publish(context.Background(), bus.TopicIngestionRequest, "tok", bus.IngestionRequest{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	broker.Close()

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("handler called %d times, want 2", calls)
	}
}

func TestBrokerPublishAfterClose(t *testing.T) {
	broker := newTestBroker(t)
	broker.Close()

	err := broker.Publish(context.Background(), bus.TopicBomNotification, "k", bus.BomConsumed{})
	if !errors.Is(err, bus.ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestNotificationGroupsAndLevels(t *testing.T) {
	cases := []struct {
		msg   bus.Message
		group bus.Group
		level bus.Level
	}{
		{bus.ProjectCreated{}, bus.GroupProjectCreated, bus.LevelInformational},
		{bus.BomConsumed{}, bus.GroupBomConsumed, bus.LevelInformational},
		{bus.BomProcessed{}, bus.GroupBomProcessed, bus.LevelInformational},
		{bus.BomProcessingFailed{}, bus.GroupBomProcessingFailed, bus.LevelError},
		{bus.VulnAnalysisCommand{}, "", bus.LevelInformational},
	}
	for _, tc := range cases {
		if got := bus.NotificationGroup(tc.msg); got != tc.group {
			t.Fatalf("group(%T) = %q, want %q", tc.msg, got, tc.group)
		}
		if got := bus.NotificationLevel(tc.msg); got != tc.level {
			t.Fatalf("level(%T) = %q, want %q", tc.msg, got, tc.level)
		}
	}
}
