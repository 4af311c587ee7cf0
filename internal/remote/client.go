package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"skolar/internal/config"
	"skolar/internal/metrics"
	"skolar/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	tutorsCacheKey  = "skolar:tutors"
	maxErrorMessage = 512
)

// Client calls the remote booking API (the system of record).
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

type createBookingResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewClient constructs a client from config. RPS of zero disables throttling.
func NewClient(cfg config.RemoteConfig, logger *zerolog.Logger) *Client {
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = models.DefaultRemoteTimeoutSeconds
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "remote").Logger()

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: time.Duration(timeout) * time.Second},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     &l,
	}
}

// UseRedisCache configures optional Redis caching for the tutor list.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	if ttl <= 0 {
		ttl = models.DefaultTutorsCacheTTLSeconds * time.Second
	}
	c.redis = redisClient
	c.cacheTTL = ttl
}

// CreateBooking creates the booking remotely and returns its remote id.
// The idempotency key lets the server collapse repeated attempts.
func (c *Client) CreateBooking(ctx context.Context, booking models.NewBooking, idempotencyKey, token string) (string, error) {
	endpoint := c.baseURL + "/v1/bookings"
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}

	var resp createBookingResponse
	if err := c.doPost(ctx, "create_booking", endpoint, token, headers, booking, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", &RemoteError{Operation: "create_booking", StatusCode: http.StatusOK, Message: "response has no booking id"}
	}
	return resp.ID, nil
}

// FetchTutors returns all tutors, served from Redis when cached.
func (c *Client) FetchTutors(ctx context.Context) ([]models.Tutor, error) {
	endpoint := c.baseURL + "/v1/tutors"
	var wrap struct {
		Tutors []models.Tutor `json:"tutors"`
	}

	if c.readCache(ctx, tutorsCacheKey, &wrap) {
		return wrap.Tutors, nil
	}

	if err := c.doGet(ctx, "fetch_tutors", endpoint, "", &wrap); err != nil {
		return nil, err
	}
	c.writeCache(ctx, tutorsCacheKey, wrap)
	return wrap.Tutors, nil
}

// FetchBookingsForUser returns the remote bookings of one user.
func (c *Client) FetchBookingsForUser(ctx context.Context, userID, token string) ([]models.Booking, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s/bookings", c.baseURL, url.PathEscape(userID))
	var wrap struct {
		Bookings []models.Booking `json:"bookings"`
	}
	if err := c.doGet(ctx, "fetch_bookings", endpoint, token, &wrap); err != nil {
		return nil, err
	}
	if wrap.Bookings == nil {
		wrap.Bookings = []models.Booking{}
	}
	return wrap.Bookings, nil
}

// InvalidateTutors drops the cached tutor list.
func (c *Client) InvalidateTutors(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Del(ctx, tutorsCacheKey).Err()
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug().Err(err).Str("key", key).Msg("cache read failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func (c *Client) doGet(ctx context.Context, op, endpoint, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	c.addHeaders(req, token, nil)
	return c.do(op, req, out)
}

func (c *Client) doPost(ctx context.Context, op, endpoint, token string, headers map[string]string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req, token, headers)
	return c.do(op, req, out)
}

func (c *Client) do(op string, req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		metrics.IncRemote(op, "throttled")
		return fmt.Errorf("%w: %s: %w", ErrNetworkUnavailable, op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.IncRemote(op, "network_error")
		return fmt.Errorf("%w: %s: %w", ErrNetworkUnavailable, op, err)
	}
	defer resp.Body.Close()

	metrics.IncRemote(op, fmt.Sprintf("%dxx", resp.StatusCode/100))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RemoteError{Operation: op, StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RemoteError{Operation: op, StatusCode: resp.StatusCode, Message: "decode response: " + err.Error()}
	}
	return nil
}

func (c *Client) addHeaders(req *http.Request, token string, extra map[string]string) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}
}

func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorMessage))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var er errorResponse
	if json.Unmarshal(raw, &er) == nil && er.Error != "" {
		return er.Error
	}
	return strings.TrimSpace(string(raw))
}
