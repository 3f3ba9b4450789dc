package drivers

import (
	"context"
	"log/slog"
	"time"

	"github.com/horcrux-project/horcrux/internal/eventbus"
)

// Comparator is how an AlertRule's threshold is compared against the
// latest sample.
type Comparator string

const (
	Above Comparator = "above"
	Below Comparator = "below"
)

// AlertRule is one threshold check evaluated on every tick (§4.K).
// Sample resolves the current value for the rule's resource/field (a
// thin seam over internal/metrics' cached rate-engine values, so the
// evaluator never re-derives rates itself).
type AlertRule struct {
	ID         string
	Resource   string
	Field      string
	Comparator Comparator
	Threshold  float64
	Sample     func(ctx context.Context) (value float64, ok bool)
}

const alertEvalInterval = 15 * time.Second

// AlertEvaluator re-checks every AlertRule on a fixed cadence and
// publishes a firing/resolved transition to the "alerts" topic whenever a
// rule's state changes — it never republishes while a rule stays in the
// same state, so subscribers see edges, not a steady stream of repeats.
type AlertEvaluator struct {
	rules  []AlertRule
	bus    *eventbus.Bus
	log    *slog.Logger
	firing map[string]bool
}

func NewAlertEvaluator(rules []AlertRule, bus *eventbus.Bus, log *slog.Logger) *AlertEvaluator {
	return &AlertEvaluator{rules: rules, bus: bus, log: log, firing: make(map[string]bool)}
}

func (a *AlertEvaluator) Name() string { return "alert-evaluator" }

func (a *AlertEvaluator) Run(ctx context.Context) error {
	ticker := time.NewTicker(alertEvalInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.evaluateAll(ctx)
		}
	}
}

func (a *AlertEvaluator) evaluateAll(ctx context.Context) {
	for _, rule := range a.rules {
		value, ok := rule.Sample(ctx)
		if !ok {
			continue
		}
		breached := (rule.Comparator == Above && value > rule.Threshold) ||
			(rule.Comparator == Below && value < rule.Threshold)

		wasFiring := a.firing[rule.ID]
		if breached == wasFiring {
			continue
		}
		a.firing[rule.ID] = breached
		status := "resolved"
		if breached {
			status = "firing"
		}
		a.log.InfoContext(ctx, "alert transition", "rule_id", rule.ID, "status", status, "value", value)
		a.bus.Publish(eventbus.TopicAlerts, map[string]any{
			"rule_id":  rule.ID,
			"resource": rule.Resource,
			"field":    rule.Field,
			"status":   status,
			"value":    value,
		})
	}
}
