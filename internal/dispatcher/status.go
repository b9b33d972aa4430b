package dispatcher

import (
	"context"

	"github.com/kaisan-axrail/mbppchatbot-sub000/health"
)

// NewHealthStatusFn adapts a health.Aggregator into the statusFn the
// dispatcher calls for the system "status" command (spec.md §4.12,
// SPEC_FULL.md's status_response supplement).
func NewHealthStatusFn(aggregator *health.Aggregator) func(ctx context.Context) map[string]any {
	return func(ctx context.Context) map[string]any {
		results := aggregator.CheckAll(ctx)
		checks := make(map[string]any, len(results))
		for name, res := range results {
			checks[name] = map[string]any{
				"status":  res.Status.String(),
				"message": res.Message,
			}
		}
		return map[string]any{
			"overall": aggregator.OverallStatus(results).String(),
			"checks":  checks,
		}
	}
}
