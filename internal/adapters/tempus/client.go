// Package tempus is the record fetcher for the Tempus time-tracking API.
//
// Every lookup goes through a Pacer, retries included, so consecutive
// requests never start closer than the configured interval.
package tempus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/tempusrecords/internal/domain/model"
	"github.com/okian/tempusrecords/pkg/logger"
	"github.com/okian/tempusrecords/pkg/metrics"
)

// Defaults.
const (
	DefaultBaseURL     = "https://tempus2.xyz/api/v0"
	DefaultMinInterval = 500 * time.Millisecond
	DefaultMaxAttempts = 5
	DefaultTimeout     = 15 * time.Second
	DefaultUserAgent   = "tempusrecords/1.0"

	maxBodyBytes = 1 << 20
)

// Client fetches one personal record per call.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	pacer       *Pacer
	maxAttempts int
	logger      logger.Logger
}

// NewClient builds a client. Without options it talks to the public API with
// the default pacing and retry bound.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		baseURL:     DefaultBaseURL,
		userAgent:   DefaultUserAgent,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pacer == nil {
		c.pacer = NewPacer(DefaultMinInterval)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("tempus")
	}
	return c
}

// MaxAttempts returns the retry bound.
func (c *Client) MaxAttempts() int { return c.maxAttempts }

// recordResult is the subset of the endpoint's "result" object we read.
type recordResult struct {
	Duration *float64 `json:"duration"`
	Rank     int      `json:"rank"`
}

// Fetch looks up the player's record on entry. It never returns an error:
// every failure is reported as a model.Failure.
func (c *Client) Fetch(ctx context.Context, player model.PlayerID, class model.Class, entry model.MapEntry) model.Outcome {
	u := c.recordURL(player, class, entry.Name)
	log := c.logger.With(logger.String("map", entry.Name))

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.RecordFetchRetry()
		}

		waited, err := c.pacer.Wait(ctx)
		if err != nil {
			return c.finish(model.Failure{Reason: model.ReasonCanceled, Err: err, Attempts: attempt - 1})
		}
		metrics.RecordPacingWait(float64(waited.Milliseconds()))

		rec, err := c.lookup(ctx, u)
		metrics.RecordFetchAttempt(resultLabel(err))
		switch {
		case err == nil:
			return c.finish(model.Success{Time: rec.time, Rank: rec.rank, Attempts: attempt})
		case errors.Is(err, ErrNoRecord):
			return c.finish(model.Failure{Reason: model.ReasonNoRecord, Err: err, Attempts: attempt})
		case errors.Is(err, ErrRejected):
			return c.finish(model.Failure{Reason: model.ReasonRejected, Err: err, Attempts: attempt})
		case ctx.Err() != nil:
			return c.finish(model.Failure{Reason: model.ReasonCanceled, Err: ctx.Err(), Attempts: attempt})
		}

		lastErr = err
		log.Warn(ctx, "lookup failed",
			logger.Int("attempt", attempt),
			logger.Int("maxAttempts", c.maxAttempts),
			logger.Error(err),
		)
	}

	return c.finish(model.Failure{
		Reason:   model.ReasonExhaustedRetries,
		Err:      fmt.Errorf("after %d attempts: %w", c.maxAttempts, lastErr),
		Attempts: c.maxAttempts,
	})
}

func (c *Client) finish(o model.Outcome) model.Outcome {
	switch v := o.(type) {
	case model.Success:
		metrics.RecordFetchOutcome("success")
	case model.Failure:
		metrics.RecordFetchOutcome(string(v.Reason))
	}
	return o
}

type record struct {
	time float64
	rank int
}

// lookup performs one HTTP request and classifies its result.
func (c *Client) lookup(ctx context.Context, u string) (record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return record{}, fmt.Errorf("%w: build request: %w", ErrRejected, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RecordRequestDuration(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return record{}, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return record{}, fmt.Errorf("%w: read body: %w", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return record{}, ErrNoRecord
	case resp.StatusCode == http.StatusTooManyRequests:
		return record{}, fmt.Errorf("%w: %w: status %d", ErrTransient, ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= http.StatusInternalServerError:
		return record{}, fmt.Errorf("%w: %w: status %d", ErrTransient, errServerStatus, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return record{}, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return record{}, fmt.Errorf("%w: %w: unexpected status %d", ErrTransient, ErrMalformed, resp.StatusCode)
	}

	return decodeRecord(body)
}

// decodeRecord maps a 200 body to a record. A JSON object whose "result" is
// null is the service's way of saying "no time on this map".
func decodeRecord(body []byte) (record, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return record{}, fmt.Errorf("%w: %w: empty body", ErrTransient, ErrMalformed)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return record{}, fmt.Errorf("%w: %w: %w", ErrTransient, ErrMalformed, err)
	}
	result, ok := raw["result"]
	if !ok {
		return record{}, fmt.Errorf("%w: %w: no result field", ErrTransient, ErrMalformed)
	}
	if string(result) == "null" {
		return record{}, ErrNoRecord
	}

	var res recordResult
	if err := json.Unmarshal(result, &res); err != nil {
		return record{}, fmt.Errorf("%w: %w: %w", ErrTransient, ErrMalformed, err)
	}
	if res.Duration == nil {
		return record{}, fmt.Errorf("%w: %w: result without duration", ErrTransient, ErrMalformed)
	}
	return record{time: *res.Duration, rank: res.Rank}, nil
}

func (c *Client) recordURL(player model.PlayerID, class model.Class, mapName string) string {
	return fmt.Sprintf("%s/maps/name/%s/zones/typeindex/map/1/records/player/%s/%d",
		strings.TrimRight(c.baseURL, "/"), url.PathEscape(mapName), player, class.ID())
}
