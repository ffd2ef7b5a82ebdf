// Package retry provides exponential backoff and retry logic for handling
// transient failures in network operations against the course platform.
//
// Features:
//   - Exponential and constant backoff strategies
//   - Jitter to avoid thundering herd problems
//   - Context support for cancellation
//   - Error-type specific backoff strategies
//   - Configurable retry predicates
//
// Basic usage:
//
//	// Simple retry with defaults
//	err := retry.Do(func() error {
//		return fetcher.Download(url, dest)
//	}, nil)
//
//	// Custom configuration
//	cfg := &retry.Config{
//		MaxAttempts: 5,
//		Backoff: &retry.ExponentialBackoff{
//			BaseDelay:    2 * time.Second,
//			MaxDelay:     30 * time.Second,
//			Multiplier:   2.0,
//			JitterFactor: 0.1,
//		},
//		RetryIf: retry.DefaultRetryIf,
//		Logger:  logger.GetLogger(),
//	}
//	err := retry.Do(operation, cfg)
//
//	// HTTP-specific retrier with error-type backoff
//	retrier := retry.NewHTTPRetrier(5, logger.GetLogger())
//	err := retrier.DoWithErrorType(func() error {
//		return fetcher.Download(url, dest)
//	})
//
// Error Type Handling:
//
// The package provides different backoff strategies for different error types:
//   - Network errors: Quick retries with exponential backoff
//   - Rate limit errors: Much longer delays, backing off hard on throttling
//   - Server errors: Moderate delays with exponential backoff
//   - Auth/Forbidden/NotFound errors: No retry (non-retryable)
//
// A Forbidden failure is deliberately non-retryable here: the media pipeline
// treats it as the signal to switch acquisition strategy instead.
package retry
