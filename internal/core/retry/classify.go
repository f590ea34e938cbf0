package retry

import "regexp"

// transientPatterns match messages of network and connection failures.
var transientPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ECONNRESET`),
	regexp.MustCompile(`(?i)ETIMEDOUT`),
	regexp.MustCompile(`(?i)ECONNREFUSED`),
	regexp.MustCompile(`(?i)connection\s+(closed|reset|refused)`),
	regexp.MustCompile(`(?i)timeout`),
	regexp.MustCompile(`(?i)fetch failed`),
	regexp.MustCompile(`(?i)network`),
}

// IsTransient reports whether err looks like a temporary network or
// connection failure, based on its message. A nil error is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, re := range transientPatterns {
		if re.MatchString(msg) {
			return true
		}
	}
	return false
}
