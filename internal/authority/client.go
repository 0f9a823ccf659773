// Package authority talks to the barbershop backend that owns appointment records.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"barberbook/internal/domain"
	"barberbook/internal/metrics"
	"barberbook/internal/models"
	"barberbook/internal/timeofday"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	RPS     float64 // zero disables throttling
	Burst   int
}

// Client implements domain.RemoteAuthority over the backend's REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

var _ domain.RemoteAuthority = (*Client)(nil)

func NewClient(opts Options, logger *zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "authority").Logger()

	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     &l,
	}
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return c
}

// UseRedisCache enables caching of booked slots for ttl.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

func (c *Client) ListForClient(ctx context.Context, clientID int64) ([]models.Appointment, error) {
	return c.list(ctx, "list_client", fmt.Sprintf("/api/appointments/client/%d", clientID))
}

func (c *Client) ListForShop(ctx context.Context, shopID int64) ([]models.Appointment, error) {
	return c.list(ctx, "list_shop", fmt.Sprintf("/api/appointments/barbershop/%d", shopID))
}

func (c *Client) Cancel(ctx context.Context, id int64) (*models.Appointment, error) {
	return c.transition(ctx, "cancel", id, nil)
}

func (c *Client) Confirm(ctx context.Context, id int64) (*models.Appointment, error) {
	return c.transition(ctx, "confirm", id, nil)
}

func (c *Client) Complete(ctx context.Context, id int64) (*models.Appointment, error) {
	return c.transition(ctx, "complete", id, nil)
}

func (c *Client) Reschedule(ctx context.Context, id int64, date models.Date, t timeofday.TimeOfDay) (*models.Appointment, error) {
	return c.transition(ctx, "reschedule", id, rescheduleRequest{Date: date.String(), Time: t.String()})
}

// Create books a new appointment. Each call carries a fresh Idempotency-Key.
func (c *Client) Create(ctx context.Context, req domain.CreateRequest) (*models.Appointment, error) {
	start := time.Now()
	body := createRequest{
		ClientID:     req.ClientID,
		BarbershopID: req.ShopID,
		BarberID:     req.BarberID,
		ServiceID:    req.ServiceID,
		Date:         req.Date.String(),
		Time:         req.Time.String(),
	}

	headers := map[string]string{"Idempotency-Key": uuid.NewString()}
	data, err := c.do(ctx, "create", 0, http.MethodPost, "/api/appointments", body, headers)
	if err == nil {
		var a *models.Appointment
		a, err = c.one(data, "create", 0)
		if err == nil {
			c.invalidateSlots(ctx, a.ShopID)
			metrics.ObserveAuthority("create", nil, start)
			return a, nil
		}
	}
	metrics.ObserveAuthority("create", err, start)
	return nil, err
}

// BookedSlots derives the taken start times from the shop's active appointments on date.
func (c *Client) BookedSlots(ctx context.Context, shopID int64, date models.Date) ([]timeofday.TimeOfDay, error) {
	key := slotsCacheKey(shopID, date)
	var cached []timeofday.TimeOfDay
	if c.readCache(ctx, key, &cached) {
		return cached, nil
	}

	list, err := c.ListForShop(ctx, shopID)
	if err != nil {
		return nil, err
	}

	seen := make(map[timeofday.TimeOfDay]struct{})
	booked := make([]timeofday.TimeOfDay, 0)
	for _, a := range list {
		if a.Date != date || !a.Status.IsActive() || a.Time == nil {
			continue
		}
		if _, ok := seen[*a.Time]; ok {
			continue
		}
		seen[*a.Time] = struct{}{}
		booked = append(booked, *a.Time)
	}
	sort.Slice(booked, func(i, j int) bool { return booked[i].Before(booked[j]) })

	c.writeCache(ctx, key, booked)
	return booked, nil
}

func (c *Client) list(ctx context.Context, op, path string) ([]models.Appointment, error) {
	start := time.Now()
	data, err := c.do(ctx, op, 0, http.MethodGet, path, nil, nil)
	metrics.ObserveAuthority(op, err, start)
	if err != nil {
		return nil, err
	}

	dtos, err := decodeList(data)
	if err != nil {
		return nil, &domain.RemoteError{Op: op, Message: "decode response", Err: err}
	}

	out := make([]models.Appointment, 0, len(dtos))
	for _, dto := range dtos {
		a, timeErr, err := dto.toModel()
		if err != nil {
			c.logger.Warn().Err(err).Str("op", op).Msg("skipping malformed appointment")
			continue
		}
		if timeErr != nil {
			c.logger.Warn().Err(timeErr).Int64("appointment_id", a.ID).Msg("appointment time kept raw")
		}
		out = append(out, a)
	}
	return out, nil
}

func (c *Client) transition(ctx context.Context, op string, id int64, body any) (*models.Appointment, error) {
	start := time.Now()
	path := fmt.Sprintf("/api/appointments/%d/%s", id, op)

	data, err := c.do(ctx, op, id, http.MethodPut, path, body, nil)
	if err != nil {
		metrics.ObserveAuthority(op, err, start)
		return nil, err
	}
	a, err := c.one(data, op, id)
	metrics.ObserveAuthority(op, err, start)
	if err != nil {
		return nil, err
	}
	c.invalidateSlots(ctx, a.ShopID)
	return a, nil
}

func (c *Client) one(data []byte, op string, id int64) (*models.Appointment, error) {
	dto, err := decodeOne(data)
	if err != nil {
		return nil, &domain.RemoteError{Op: op, ID: id, Message: "decode response", Err: err}
	}
	if dto == nil {
		return nil, &domain.RemoteError{Op: op, ID: id, Message: "empty response"}
	}
	a, timeErr, err := dto.toModel()
	if err != nil {
		return nil, &domain.RemoteError{Op: op, ID: id, Message: "malformed appointment", Err: err}
	}
	if timeErr != nil {
		c.logger.Warn().Err(timeErr).Int64("appointment_id", a.ID).Msg("appointment time kept raw")
	}
	return &a, nil
}

func (c *Client) do(ctx context.Context, op string, id int64, method, path string, body any, headers map[string]string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &domain.RemoteError{Op: op, ID: id, Message: "rate limit wait", Err: err}
		}
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.addHeaders(req)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.RemoteError{Op: op, ID: id, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, &domain.RemoteError{
			Op:         op,
			ID:         id,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Body),
			Err:        domain.StatusError(resp.StatusCode),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.RemoteError{Op: op, ID: id, StatusCode: resp.StatusCode, Message: "read body", Err: err}
	}
	return data, nil
}

func (c *Client) addHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func errorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body errorBody
	if json.Unmarshal(data, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(data))
}

// HealthCheck reports whether the backend answers at all.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.do(ctx, "health", 0, http.MethodGet, "/actuator/health", nil, nil)
	var rerr *domain.RemoteError
	if errors.As(err, &rerr) && rerr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}
