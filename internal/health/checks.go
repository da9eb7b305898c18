package health

import (
	"context"
)

// PingCheck reports a store as unhealthy when ping fails.
func PingCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) CheckResult {
		if err := ping(ctx); err != nil {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: "settings store unreachable",
				Error:   err.Error(),
			}
		}
		return CheckResult{Status: StatusHealthy, Message: "settings store ok"}
	}
}

// QueueCheck degrades once the share of dropped hits exceeds maxDropRatio.
func QueueCheck(stats func() (sent, dropped int64), maxDropRatio float64) Check {
	return func(context.Context) CheckResult {
		sent, dropped := stats()
		details := map[string]any{"sent": sent, "dropped": dropped}

		total := sent + dropped
		if total == 0 {
			return CheckResult{Status: StatusHealthy, Message: "no hits yet", Details: details}
		}
		ratio := float64(dropped) / float64(total)
		details["drop_ratio"] = ratio
		if ratio > maxDropRatio {
			return CheckResult{Status: StatusDegraded, Message: "analytics hits are being dropped", Details: details}
		}
		return CheckResult{Status: StatusHealthy, Message: "analytics queue ok", Details: details}
	}
}

// ConsentCheck always passes and reports the current consent flags.
func ConsentCheck(flags func() (internal, thirdParty bool)) Check {
	return func(context.Context) CheckResult {
		internal, thirdParty := flags()
		return CheckResult{
			Status: StatusHealthy,
			Details: map[string]any{
				"internal":    internal,
				"third_party": thirdParty,
			},
		}
	}
}
