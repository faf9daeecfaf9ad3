/*
Package resilience provides the circuit breaker that guards page-boundary calls.

# Overview

A page whose target crashed or whose CDP session was detached keeps failing
every call, and each failure may first wait out a long context deadline.
The breaker notices the streak and fails later calls immediately with
ErrCircuitOpen. It never retries and never reconnects; errors surface to the
caller either way.

Caller cancellation (context.Canceled, context.DeadlineExceeded) is not
counted as a failure by default. Page adapters additionally exclude in-page
JavaScript exceptions, which say nothing about the page's health.

# Usage

	breaker := resilience.New("chrome-page", resilience.Settings{
		Cooldown: 10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	err := breaker.Do("evaluate", func() error {
		return chromedp.Run(ctx, action)
	})

# States

	Closed --[failures]-> Open --[cooldown]-> Half-Open --[probes succeed]-> Closed
	                                             |
	                                        [failure]
	                                             v
	                                           Open
*/
package resilience
