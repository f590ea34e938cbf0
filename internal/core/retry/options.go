package retry

import "time"

// Option overrides a single Policy field for one call.
type Option func(p *Policy)

// WithPolicy replaces every setting with the ones in p, allowing a policy
// loaded from configuration to be reused across call sites.
func WithPolicy(p Policy) Option {
	return func(o *Policy) {
		*o = p
	}
}

// MaxRetries sets the number of retries after the first try. 0 disables retrying.
func MaxRetries(n int) Option {
	return func(o *Policy) {
		o.MaxRetries = n
	}
}

// BaseDelay sets the wait before the first retry.
func BaseDelay(d time.Duration) Option {
	return func(o *Policy) {
		o.BaseDelay = d
	}
}

// Classifier sets the function used to decide if an error is retryable.
// A nil fn restores IsTransient.
func Classifier(fn func(error) bool) Option {
	return func(o *Policy) {
		o.Retryable = fn
	}
}

// OnRetry sets a function called before each wait, typically for logging
// and metrics. The executor itself never logs.
func OnRetry(fn func(Attempt)) Option {
	return func(o *Policy) {
		o.OnRetry = fn
	}
}
