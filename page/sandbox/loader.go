package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/GriffinCanCode/AgentOS/browserworker/internal/infrastructure/resilience"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// loader fetches documents and scripts over http(s) with retries, rate
// limiting and a circuit breaker
type loader struct {
	client  *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

func newLoader(config Config) *loader {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = config.FetchRetries
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil // Disable logging

	client := resty.NewWithClient(retryClient.StandardClient())
	client.
		SetTimeout(config.FetchTimeout).
		SetHeader("User-Agent", config.UserAgent)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.FetchRPS > 0 {
		burst := int(config.FetchRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.FetchRPS), burst)
	}

	breaker := resilience.New("sandbox-loader", resilience.Settings{
		Interval: 60 * time.Second,
		Cooldown: 30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 10
		},
	})

	return &loader{
		client:  client,
		limiter: limiter,
		breaker: breaker,
	}
}

// fetch returns the body at rawURL
func (l *loader) fetch(ctx context.Context, rawURL string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit error: %w", err)
	}

	var resp *resty.Response
	err := l.breaker.Do("fetch", func() error {
		var err error
		resp, err = l.client.R().SetContext(ctx).Get(rawURL)
		if err != nil {
			return err
		}
		if resp.StatusCode() >= 500 {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode(), resp.Status())
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("request failed (url: %s): %w", rawURL, err)
	}

	if code := resp.StatusCode(); code < 200 || code >= 400 {
		return "", fmt.Errorf("HTTP %d: %s (url: %s)", code, resp.Status(), rawURL)
	}
	return resp.String(), nil
}
