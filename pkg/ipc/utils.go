package ipc

import (
	"encoding/json"
	stdliberrors "errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	bcerrors "github.com/odvcencio/browsercast/pkg/errors"
)

// keyedLimiter keeps one token bucket per key.
type keyedLimiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

func newKeyedLimiter(perSecond float64, burst int) *keyedLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &keyedLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		ttl:     10 * time.Minute,
		buckets: make(map[string]*bucket),
	}
}

func (k *keyedLimiter) Allow(key string) bool {
	if k == nil {
		return true
	}
	now := time.Now()
	k.mu.Lock()
	defer k.mu.Unlock()
	b, ok := k.buckets[key]
	if !ok {
		if len(k.buckets) > 1024 {
			k.evict(now)
		}
		b = &bucket{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.buckets[key] = b
	}
	b.seen = now
	return b.limiter.AllowN(now, 1)
}

func (k *keyedLimiter) evict(now time.Time) {
	for key, b := range k.buckets {
		if now.Sub(b.seen) > k.ttl {
			delete(k.buckets, key)
		}
	}
}

// clientIP returns the host part of the request's remote address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// respondJSON sends a 200 JSON response with appropriate headers.
func respondJSON(w http.ResponseWriter, payload any) {
	respondJSONStatus(w, http.StatusOK, payload)
}

func respondJSONStatus(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError sends a structured JSON error response. The error field
// carries the client-facing message.
func respondError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	response := struct {
		Error       string   `json:"error"`
		Status      int      `json:"status"`
		Code        string   `json:"code,omitempty"`
		Details     string   `json:"details,omitempty"`
		Remediation []string `json:"remediation,omitempty"`
		Retryable   bool     `json:"retryable,omitempty"`
		Timestamp   string   `json:"timestamp"`
	}{
		Error:     http.StatusText(status),
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	var bcErr *bcerrors.Error
	if stdliberrors.As(err, &bcErr) {
		response.Code = string(bcErr.Code)
		response.Error = bcErr.PublicMessage()
		response.Remediation = append([]string(nil), bcErr.Remediation...)
		response.Retryable = bcErr.Retryable
		if bcErr.Underlying != nil {
			response.Details = bcErr.Underlying.Error()
		}
	} else if err != nil {
		response.Error = err.Error()
	}
	if response.Details == "" && err != nil && response.Error != err.Error() {
		response.Details = fmt.Sprintf("%v", err)
	}
	if len(response.Remediation) == 0 {
		response.Remediation = defaultRemediation(response.Code, status)
	}

	_ = json.NewEncoder(w).Encode(response)
}

// defaultRemediation provides remediation steps for common errors.
func defaultRemediation(code string, status int) []string {
	switch bcerrors.ErrorCode(code) {
	case bcerrors.ErrCodePlatformNotAllowed:
		return []string{"Pick one of the configured platforms."}
	case bcerrors.ErrCodeNavigationFailed:
		return []string{"Retry shortly; the target site may be slow or unreachable."}
	case bcerrors.ErrCodeHandleStale:
		return []string{"The browser is restarting. Retry in a few seconds."}
	}

	switch status {
	case http.StatusTooManyRequests:
		return []string{"Wait a few seconds for the rate limiter to reset."}
	case http.StatusServiceUnavailable:
		return []string{"Retry after the server has capacity."}
	default:
		return nil
	}
}
