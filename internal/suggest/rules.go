package suggest

import "fmt"

// Built-in rule IDs. IDs are stable identifiers; dedup and persistence key
// on them.
const (
	RuleHighLatency   = "high-latency"
	RuleRateLimitHits = "rate-limit-hits"
	RuleHighErrorRate = "high-error-rate"
	RuleProviderDown  = "provider-down"
	RuleQueueBacklog  = "queue-backlog"
)

// BuiltinRules materializes the standard rule set with the given thresholds
// baked into the conditions.
func BuiltinRules(th Thresholds) []Rule {
	return []Rule{
		{
			ID:          RuleHighLatency,
			Category:    CategoryPerformance,
			Priority:    PriorityHigh,
			Title:       "High average analysis latency",
			Description: fmt.Sprintf("Global average latency exceeds %.0fms. Consider faster models, smaller payloads, or more providers.", th.HighLatencyMs),
			Condition:   fmt.Sprintf("AverageLatencyMs > %f", th.HighLatencyMs),
		},
		{
			ID:          RuleRateLimitHits,
			Category:    CategoryReliability,
			Priority:    PriorityCritical,
			Title:       "Providers are rate limiting requests",
			Description: "At least one provider returned a rate-limit response. Review quota plans or spread load across more providers.",
			Condition:   "RateLimitHits > 0",
		},
		{
			ID:          RuleHighErrorRate,
			Category:    CategoryReliability,
			Priority:    PriorityHigh,
			Title:       "Elevated request error rate",
			Description: fmt.Sprintf("More than %.0f%% of requests are failing. Check provider credentials and upstream availability.", th.ErrorRate*100),
			Condition:   fmt.Sprintf("TotalRequests > 0 && ErrorRate > %f", th.ErrorRate),
		},
		{
			ID:          RuleProviderDown,
			Category:    CategoryReliability,
			Priority:    PriorityHigh,
			Title:       "One or more providers are down",
			Description: "A provider crossed the consecutive-failure threshold and is excluded from primary routing until a probe succeeds.",
			Condition:   "DownProviders > 0",
		},
		{
			ID:          RuleQueueBacklog,
			Category:    CategoryCapacity,
			Priority:    PriorityMedium,
			Title:       "Analysis queue is backing up",
			Description: fmt.Sprintf("Queue depth reached %d. Submissions will start failing fast once capacity is exhausted; consider more workers.", th.QueueBacklog),
			Condition:   fmt.Sprintf("QueueDepth >= %d", th.QueueBacklog),
		},
	}
}
