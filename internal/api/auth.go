package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"skolar/internal/config"
)

const (
	apiKeyHeaderDefault = "x-api-key"
	permWriteBookings   = "write:bookings"
	permReadPending     = "read:pending"
	permReadRemote      = "read:remote"
	permSync            = "sync"
)

var (
	errMissingAPIKey    = errors.New("missing api key header")
	errInvalidAPIKey    = errors.New("invalid api key")
	errPermissionDenied = errors.New("permission denied")
	errRateLimited      = errors.New("rate limit exceeded")
)

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	cfg     config.APIConfig
	clients map[string]config.APIClientKey
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	a := &HTTPAuth{cfg: cfg, clients: m}
	a.limiter = newRateLimiter(cfg.RateLimit)
	return a
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				statusCode := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) headerName() string {
	h := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if h == "" {
		return apiKeyHeaderDefault
	}
	return h
}

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	apiKey := strings.TrimSpace(r.Header.Get(a.headerName()))
	if apiKey == "" {
		return errMissingAPIKey
	}

	var client config.APIClientKey
	found := false
	for key, c := range a.clients {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			client, found = c, true
			break
		}
	}
	if !found {
		return errInvalidAPIKey
	}

	return a.checkPermissions(client, r)
}

func (a *HTTPAuth) checkPermissions(client config.APIClientKey, r *http.Request) error {
	required := requiredPermissionHTTP(r)
	if required == "" {
		return nil
	}
	// If permissions list is empty, treat as allow-all.
	if len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func requiredPermissionHTTP(r *http.Request) string {
	path := r.URL.Path
	switch {
	case path == "/api/v1/bookings" && r.Method == http.MethodPost:
		return permWriteBookings
	case strings.HasPrefix(path, "/api/v1/pending"):
		return permReadPending
	case path == "/api/v1/sync":
		return permSync
	case path == "/api/v1/tutors", path == "/api/v1/bookings/mine":
		return permReadRemote
	}
	return ""
}

func (a *HTTPAuth) checkRateLimit(r *http.Request) error {
	if !a.limiter.enabled() {
		return nil
	}
	if !a.limiter.allow(limiterKey(r, a.headerName())) {
		return errRateLimited
	}
	return nil
}
