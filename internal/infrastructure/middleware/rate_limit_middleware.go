package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"carebridge/pkg/config"
	"carebridge/pkg/errors"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiterStore keeps one limiter per client key. Keys idle longer than
// idleTTL are swept on access, at most once per idleTTL.
type rateLimiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	rate      rate.Limit
	burstSize int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newRateLimiterStore(r rate.Limit, burst int, idleTTL time.Duration) *rateLimiterStore {
	return &rateLimiterStore{
		limiters:  make(map[string]*limiterEntry),
		rate:      r,
		burstSize: burst,
		idleTTL:   idleTTL,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (s *rateLimiterStore) getLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.idleTTL > 0 && now.Sub(s.lastSweep) >= s.idleTTL {
		s.sweepLocked(now)
	}

	entry, exists := s.limiters[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(s.rate, s.burstSize)}
		s.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

func (s *rateLimiterStore) sweepLocked(now time.Time) {
	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > s.idleTTL {
			delete(s.limiters, key)
		}
	}
	s.lastSweep = now
}

func (s *rateLimiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// proxySet holds the peers allowed to report the client address in X-Forwarded-For.
type proxySet []*net.IPNet

func parseProxies(entries []string) proxySet {
	var set proxySet
	for _, e := range entries {
		if _, n, err := net.ParseCIDR(e); err == nil {
			set = append(set, n)
			continue
		}
		if ip := net.ParseIP(e); ip != nil {
			bits := 8 * net.IPv6len
			if ip.To4() != nil {
				ip, bits = ip.To4(), 8*net.IPv4len
			}
			set = append(set, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
		}
	}
	return set
}

func (p proxySet) contains(ip net.IP) bool {
	for _, n := range p {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// clientIP returns the socket peer unless that peer is a trusted proxy, in
// which case X-Forwarded-For is walked right to left and the first hop that
// is not itself a trusted proxy wins.
func clientIP(r *http.Request, trusted proxySet) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer := net.ParseIP(host)
	if peer == nil || !trusted.contains(peer) {
		return host
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		ip := net.ParseIP(strings.TrimSpace(hops[i]))
		if ip == nil {
			break
		}
		if !trusted.contains(ip) {
			return ip.String()
		}
		peer = ip
	}
	return peer.String()
}

// NewHTTPRateLimitMiddleware applies per-IP rate limiting and a global concurrency cap.
func NewHTTPRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	if !cfg.RateLimiting.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	store := newRateLimiterStore(
		rate.Limit(cfg.RateLimiting.HTTP.RequestsPerSecond),
		cfg.RateLimiting.HTTP.Burst,
		cfg.RateLimiting.HTTP.IdleTimeout,
	)
	trusted := parseProxies(cfg.RateLimiting.HTTP.TrustedProxies)

	var globalSem chan struct{}
	if cfg.RateLimiting.HTTP.MaxConcurrent > 0 {
		globalSem = make(chan struct{}, cfg.RateLimiting.HTTP.MaxConcurrent)
	}

	return func(c *gin.Context) {
		if globalSem != nil {
			select {
			case globalSem <- struct{}{}:
				defer func() { <-globalSem }()
			default:
				abortWith(c, errors.NewServiceUnavailableError("too many concurrent requests"))
				return
			}
		}

		if !store.getLimiter(clientIP(c.Request, trusted)).Allow() {
			c.Header("Retry-After", "1")
			abortWith(c, errors.NewRateLimitError())
			return
		}
		c.Next()
	}
}

// NewMessageLimiter returns the per-connection limiter for signaling messages,
// or nil when rate limiting is off.
func NewMessageLimiter(cfg *config.Config) *rate.Limiter {
	if !cfg.RateLimiting.Enabled {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimiting.WebSocket.MessagesPerSecond), cfg.RateLimiting.WebSocket.Burst)
}
