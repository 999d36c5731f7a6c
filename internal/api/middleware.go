package api

import (
    "crypto/subtle"
    "net"
    "net/http"
    "strconv"
    "strings"
    "sync"
    "time"

    "golang.org/x/time/rate"

    "github.com/CielmobilityWorks/route-optimization-tools/internal/config"
    "github.com/CielmobilityWorks/route-optimization-tools/internal/metrics"
)

// projectLocks allows one solve per project at a time.
type projectLocks struct {
    mu   sync.Mutex
    busy map[string]bool
}

func newProjectLocks() *projectLocks { return &projectLocks{busy: map[string]bool{}} }

// tryLock returns a release func, or nil when the project is already solving.
func (l *projectLocks) tryLock(projectID string) func() {
    l.mu.Lock()
    defer l.mu.Unlock()
    if l.busy[projectID] { return nil }
    l.busy[projectID] = true
    return func() {
        l.mu.Lock()
        delete(l.busy, projectID)
        l.mu.Unlock()
    }
}

// minLimiterIdle is how long an untouched client bucket is kept.
const minLimiterIdle = 10 * time.Minute

// rateLimiter is a token bucket per client address. A zero rate disables it.
// Buckets idle longer than they need to refill completely are dropped.
type rateLimiter struct {
    mu         sync.Mutex
    rps        rate.Limit
    burst      int
    trustProxy bool
    idle       time.Duration
    now        func() time.Time
    lastSweep  time.Time
    clients    map[string]*clientBucket
}

type clientBucket struct {
    lim  *rate.Limiter
    seen time.Time
}

func newRateLimiter(cfg config.RateLimit) *rateLimiter {
    burst := cfg.Burst
    if burst < 1 { burst = 1 }
    idle := minLimiterIdle
    if cfg.RPS > 0 {
        if refill := time.Duration(float64(burst) / cfg.RPS * float64(time.Second)); refill > idle { idle = refill }
    }
    return &rateLimiter{
        rps: rate.Limit(cfg.RPS), burst: burst, trustProxy: cfg.TrustProxy,
        idle: idle, now: time.Now, clients: map[string]*clientBucket{},
    }
}

func (l *rateLimiter) allow(key string) bool {
    if l == nil || l.rps <= 0 { return true }
    l.mu.Lock()
    now := l.now()
    l.sweep(now)
    b, ok := l.clients[key]
    if !ok {
        b = &clientBucket{lim: rate.NewLimiter(l.rps, l.burst)}
        l.clients[key] = b
    }
    b.seen = now
    l.mu.Unlock()
    return b.lim.AllowN(now, 1)
}

// sweep drops idle buckets at most once per idle period. Callers hold mu.
func (l *rateLimiter) sweep(now time.Time) {
    if now.Sub(l.lastSweep) < l.idle { return }
    l.lastSweep = now
    for k, b := range l.clients {
        if now.Sub(b.seen) >= l.idle { delete(l.clients, k) }
    }
}

func (l *rateLimiter) size() int {
    l.mu.Lock()
    defer l.mu.Unlock()
    return len(l.clients)
}

func (l *rateLimiter) wrap(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if !l.allow(clientIP(r, l.trustProxy)) {
            w.Header().Set("Retry-After", "1")
            writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded", r.URL.Path)
            return
        }
        next.ServeHTTP(w, r)
    })
}

// clientIP is the peer address, or the first X-Forwarded-For hop when the
// proxy in front is trusted.
func clientIP(r *http.Request, trustProxy bool) string {
    if trustProxy {
        if f := r.Header.Get("X-Forwarded-For"); f != "" {
            if ip := strings.TrimSpace(strings.Split(f, ",")[0]); ip != "" { return ip }
        }
    }
    host, _, err := net.SplitHostPort(r.RemoteAddr)
    if err != nil { return r.RemoteAddr }
    return host
}

// isAdmin accepts a bearer ADMIN_TOKEN when one is configured, otherwise
// the X-Role header.
func (s *Server) isAdmin(r *http.Request) bool {
    if tok := s.Config.AdminToken; tok != "" {
        h := r.Header.Get("Authorization")
        if !strings.HasPrefix(h, "Bearer ") { return false }
        got := strings.TrimPrefix(h, "Bearer ")
        return subtle.ConstantTimeCompare([]byte(got), []byte(tok)) == 1
    }
    return strings.EqualFold(r.Header.Get("X-Role"), "admin")
}

type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (r *statusRecorder) WriteHeader(code int) {
    r.status = code
    r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE working through the middleware.
func (r *statusRecorder) Flush() {
    if f, ok := r.ResponseWriter.(http.Flusher); ok { f.Flush() }
}

// Unwrap lets http.ResponseController and the websocket upgrader reach the
// underlying connection.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// instrument records request counts and latencies per normalized path.
func instrument(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path == "/v1/ws" {
            // hijacked connections cannot be wrapped
            next.ServeHTTP(w, r)
            metrics.HTTPRequests.WithLabelValues(r.Method, "/v1/ws", "101").Inc()
            return
        }
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        next.ServeHTTP(rec, r)
        path := normalizePath(r.URL.Path)
        code := strconv.Itoa(rec.status)
        metrics.HTTPRequests.WithLabelValues(r.Method, path, code).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, path, code).Observe(time.Since(start).Seconds())
    })
}

// normalizePath replaces ids so label cardinality stays bounded.
func normalizePath(p string) string {
    for _, prefix := range []string{"/v1/runs/", "/v1/subscriptions/"} {
        if !strings.HasPrefix(p, prefix) { continue }
        rest := strings.TrimPrefix(p, prefix)
        if rest == "" { return p }
        parts := strings.SplitN(rest, "/", 2)
        if len(parts) == 1 { return prefix + "{id}" }
        return prefix + "{id}/" + parts[1]
    }
    return p
}
