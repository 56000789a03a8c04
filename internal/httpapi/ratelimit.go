package httpapi

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/erauner12/journalsync/internal/auth"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// RateLimiter manages per-user token buckets.
// Refill rate is MaxRequests/WindowSeconds tokens per second with Burst capacity.
type RateLimiter struct {
	config  RateLimitInfo
	limit   rate.Limit
	mu      sync.Mutex
	buckets map[string]*userBucket
	stop    chan struct{}
	once    sync.Once
}

type userBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration // time until the next token; zero when allowed
	FullReset  time.Time     // when the bucket will be full again
}

// NewRateLimiter creates a new rate limiter with the given configuration
func NewRateLimiter(config RateLimitInfo) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		limit:   rate.Limit(float64(config.MaxRequests) / float64(config.WindowSeconds)),
		buckets: make(map[string]*userBucket),
		stop:    make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow consumes one token for userID if available
func (rl *RateLimiter) Allow(userID string, now time.Time) Decision {
	rl.mu.Lock()
	b, ok := rl.buckets[userID]
	if !ok {
		b = &userBucket{lim: rate.NewLimiter(rl.limit, rl.config.Burst)}
		rl.buckets[userID] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	res := b.lim.ReserveN(now, 1)
	if delay := res.DelayFrom(now); !res.OK() || delay > 0 {
		res.CancelAt(now)
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: delay,
			FullReset:  rl.fullReset(b.lim, now),
		}
	}

	return Decision{
		Allowed:   true,
		Remaining: int(math.Max(0, b.lim.TokensAt(now))),
		FullReset: rl.fullReset(b.lim, now),
	}
}

func (rl *RateLimiter) fullReset(lim *rate.Limiter, now time.Time) time.Time {
	missing := float64(rl.config.Burst) - lim.TokensAt(now)
	if missing <= 0 || rl.limit <= 0 {
		return now
	}
	return now.Add(time.Duration(missing / float64(rl.limit) * float64(time.Second)))
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

// cleanupLoop periodically removes inactive buckets to prevent memory leaks
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for userID, b := range rl.buckets {
				if now.Sub(b.lastSeen) > time.Hour {
					delete(rl.buckets, userID)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// RateLimitMiddleware returns a middleware that enforces limiter per user.
// The caller owns limiter and must Close it once the handler is retired.
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	config := limiter.config

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := auth.UserID(r.Context())
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			d := limiter.Allow(userID, time.Now())

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.FullReset.Unix(), 10))
			w.Header().Set("X-RateLimit-Burst", strconv.Itoa(config.Burst))

			if !d.Allowed {
				retryAfter := int(math.Ceil(d.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				log.Ctx(r.Context()).Warn().
					Str("path", r.URL.Path).
					Int("retryAfter", retryAfter).
					Msg("Rate limit exceeded")

				writeError(w, r, http.StatusTooManyRequests,
					"Rate limit exceeded. Please retry after "+strconv.Itoa(retryAfter)+" seconds.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
