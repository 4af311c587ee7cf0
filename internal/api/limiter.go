package api

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"skolar/internal/config"

	"golang.org/x/time/rate"
)

const (
	defaultBurst     = 5
	clientIdleTTL    = 10 * time.Minute
	clientKeyUnknown = "unknown"
)

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per API client. Buckets not used for
// clientIdleTTL are dropped on the next sweep.
type rateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*clientBucket
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newRateLimiter(cfg config.APIRateLimitConfig) *rateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &rateLimiter{
		buckets: make(map[string]*clientBucket),
		limit:   rate.Limit(cfg.RPS),
		burst:   burst,
		idleTTL: clientIdleTTL,
		now:     time.Now,
	}
}

func (l *rateLimiter) enabled() bool {
	return l.limit > 0
}

// allow spends one token from the client's bucket.
func (l *rateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *rateLimiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.idleTTL {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

func (l *rateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// limiterKey names the bucket for a request: a digest of the API key when
// one is sent, the remote host otherwise. Raw keys are never held in memory
// longer than the request.
func limiterKey(r *http.Request, header string) string {
	if apiKey := strings.TrimSpace(r.Header.Get(header)); apiKey != "" {
		sum := sha256.Sum256([]byte(apiKey))
		return "key:" + hex.EncodeToString(sum[:8])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return "ip:" + host
	}
	return clientKeyUnknown
}
