package events

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func testBus() *Bus {
	return NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	bus := testBus()

	var first, second []Event
	bus.Subscribe(MatchResultSubmitted, func(ctx context.Context, event Event) {
		first = append(first, event)
	})
	bus.Subscribe(MatchResultSubmitted, func(ctx context.Context, event Event) {
		second = append(second, event)
	})
	bus.Subscribe(MatchResultFinalized, func(ctx context.Context, event Event) {
		t.Error("subscriber of another event name was invoked")
	})

	bus.Publish(context.Background(), MatchResultSubmitted,
		map[string]interface{}{"submission_id": 42},
		map[string]string{"game_slug": "cs2"})

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("deliveries = %d/%d, want 1/1", len(first), len(second))
	}

	event := first[0]
	if event.ID == "" {
		t.Error("event id not populated")
	}
	if event.OccurredAt.IsZero() {
		t.Error("occurred_at not populated")
	}
	if event.Name != MatchResultSubmitted {
		t.Errorf("name = %q, want %q", event.Name, MatchResultSubmitted)
	}
	if event.Payload["submission_id"] != 42 {
		t.Errorf("payload = %v, want submission_id 42", event.Payload)
	}
	if event.Metadata["game_slug"] != "cs2" {
		t.Errorf("metadata = %v, want game_slug cs2", event.Metadata)
	}
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := testBus()
	// Не должно ни паниковать, ни блокироваться.
	bus.Publish(context.Background(), DisputeResolved, map[string]interface{}{"dispute_id": 1}, nil)
}

func TestPanickingHandlerDoesNotStopOthers(t *testing.T) {
	bus := testBus()

	delivered := 0
	bus.Subscribe(DisputeEscalated, func(ctx context.Context, event Event) {
		panic("broken subscriber")
	})
	bus.Subscribe(DisputeEscalated, func(ctx context.Context, event Event) {
		delivered++
	})

	bus.Publish(context.Background(), DisputeEscalated, nil, nil)

	if delivered != 1 {
		t.Errorf("deliveries after panic = %d, want 1", delivered)
	}
}

func TestSubscribeDuringPublishDoesNotAffectCurrentDelivery(t *testing.T) {
	bus := testBus()

	lateDelivered := false
	bus.Subscribe(MatchResultConfirmed, func(ctx context.Context, event Event) {
		// Подписка из обработчика не должна ни дедлочить шину, ни получить
		// уже разосланное событие.
		bus.Subscribe(MatchResultConfirmed, func(ctx context.Context, event Event) {
			lateDelivered = true
		})
	})

	bus.Publish(context.Background(), MatchResultConfirmed, nil, nil)

	if lateDelivered {
		t.Error("late subscriber received the event that triggered its registration")
	}
}
