package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-client token bucket. A client may burst
// up to Max requests and regains one request every Window/Max.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// KeyFunc identifies the client. Defaults to the client IP.
	KeyFunc func(*http.Request) string
}

type visitor struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type limiterStore struct {
	cfg   RateLimitConfig
	every rate.Limit

	mu       sync.Mutex
	visitors map[string]*visitor
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	if cfg.Max <= 0 {
		cfg.Max = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	return &limiterStore{
		cfg:      cfg,
		every:    rate.Every(cfg.Window / time.Duration(cfg.Max)),
		visitors: make(map[string]*visitor),
	}
}

func (s *limiterStore) limiter(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.visitors[key]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(s.every, s.cfg.Max)}
		s.visitors[key] = v
	}
	v.lastSeen = now
	return v.lim
}

// evict drops clients idle for longer than a full window; their bucket is
// full again by then.
func (s *limiterStore) evict(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, v := range s.visitors {
		if now.Sub(v.lastSeen) > s.cfg.Window {
			delete(s.visitors, key)
		}
	}
}

func (s *limiterStore) runEviction(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.evict(now)
		}
	}
}

// RateLimit rejects clients over their budget with 429 and a JSON body. Every
// response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiterStore(cfg).middleware
}

// RateLimitWithCleanup is RateLimit plus a goroutine that forgets idle
// clients until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	s := newLimiterStore(cfg)
	go s.runEviction(ctx)
	return s.middleware
}

func (s *limiterStore) middleware(next http.Handler) http.Handler {
	interval := s.cfg.Window / time.Duration(s.cfg.Max)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		lim := s.limiter(s.cfg.KeyFunc(r), now)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(s.cfg.Max))

		if !lim.AllowN(now, 1) {
			// Time until the next token.
			wait := time.Duration((1 - lim.TokensAt(now)) * float64(interval))
			h.Set("X-RateLimit-Remaining", "0")
			h.Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(wait).Unix(), 10))
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		tokens := lim.TokensAt(now)
		untilFull := time.Duration((float64(s.cfg.Max) - tokens) * float64(interval))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(int(tokens)))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(untilFull).Unix(), 10))

		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
