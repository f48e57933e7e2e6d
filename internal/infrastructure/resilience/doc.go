/*
Package resilience provides the circuit breaker used in front of remote
module hosts and entry pages.

A tournament may fetch the same game module for hundreds of execution
contexts. When the host is down, the breaker fails those loads fast instead
of letting every context wait out its own retries.

# Usage

	breaker := resilience.New("modules", resilience.Settings{
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	code, err := resilience.Call(ctx, breaker, func(ctx context.Context) (string, error) {
		return fetch(ctx, path)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           v
	                                         Open
*/
package resilience
