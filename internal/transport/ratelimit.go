package transport

import "golang.org/x/time/rate"

// sessionLimiter throttles the rate of one session's inbound text
// frames, whatever request they carry. Generalized from the teacher's per-client
// golang.org/x/time/rate limiter, which gated its own per-connection
// message flow the same way.
type sessionLimiter struct {
	limiter *rate.Limiter
}

// newSessionLimiter allows up to burst requests immediately, refilling
// at perSecond requests/sec thereafter.
func newSessionLimiter(perSecond float64, burst int) *sessionLimiter {
	return &sessionLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow reports whether the caller may proceed with one request now.
func (l *sessionLimiter) Allow() bool {
	return l.limiter.Allow()
}
