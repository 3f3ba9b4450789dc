package drivers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/horcrux-project/horcrux/internal/eventbus"
)

func TestAlertEvaluatorFiresAndResolvesOnce(t *testing.T) {
	bus := eventbus.NewBus(16)
	bus.Start(context.Background())
	defer bus.Stop()

	sub, err := bus.Subscribe([]eventbus.Topic{eventbus.TopicAlerts})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	value := 0.0
	rule := AlertRule{
		ID:         "rule-1",
		Resource:   "vm-1",
		Field:      "cpu_pct",
		Comparator: Above,
		Threshold:  90,
		Sample:     func(ctx context.Context) (float64, bool) { return value, true },
	}
	eval := NewAlertEvaluator([]AlertRule{rule}, bus, slog.Default())

	value = 95
	eval.evaluateAll(context.Background())
	eval.evaluateAll(context.Background()) // same state: must not republish

	value = 10
	eval.evaluateAll(context.Background())

	var statuses []string
	for i := 0; i < 2; i++ {
		select {
		case ev := <-sub.C:
			statuses = append(statuses, ev.Payload.(map[string]any)["status"].(string))
		case <-time.After(time.Second):
			t.Fatalf("expected 2 events, got %d", len(statuses))
		}
	}
	if statuses[0] != "firing" || statuses[1] != "resolved" {
		t.Fatalf("expected [firing resolved], got %v", statuses)
	}

	select {
	case ev := <-sub.C:
		t.Fatalf("expected no further events, got %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
