// Package prereq talks to the course service that decides whether a learner
// has completed the lesson an assessment is gated on.
package prereq

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

	"github.com/cenkalti/backoff/v4"
)

type Checker interface {
	IsPrerequisiteSatisfied(ctx context.Context, learnerID, lessonID string) (bool, error)
}

// AllowAll satisfies every gate; used when no course service is configured.
type AllowAll struct{}

func (AllowAll) IsPrerequisiteSatisfied(context.Context, string, string) (bool, error) {
	return true, nil
}

// ErrExhausted wraps the last failure once the retry budget is spent.
var ErrExhausted = errors.New("prerequisite service unavailable")

type Client struct {
	BaseURL     string
	HTTP        *http.Client
	MaxRetries  uint64
	InitialWait time.Duration
	MaxElapsed  time.Duration
}

func NewClient(baseURL string, timeout time.Duration, maxRetries uint64) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		HTTP:        &http.Client{Timeout: timeout},
		MaxRetries:  maxRetries,
		InitialWait: 100 * time.Millisecond,
		MaxElapsed:  10 * time.Second,
	}
}

type completionResp struct {
	Satisfied bool `json:"satisfied"`
}

// IsPrerequisiteSatisfied calls
// GET {base}/learners/{learner}/lessons/{lesson}/prerequisite.
// Network errors, 429 and 5xx are retried with exponential backoff; other
// statuses fail immediately.
func (c *Client) IsPrerequisiteSatisfied(ctx context.Context, learnerID, lessonID string) (bool, error) {
	u := fmt.Sprintf("%s/learners/%s/lessons/%s/prerequisite", c.BaseURL, url.PathEscape(learnerID), url.PathEscape(lessonID))

	var satisfied bool
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		res, err := c.HTTP.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		switch {
		case res.StatusCode == http.StatusOK:
		case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
			io.Copy(io.Discard, res.Body)
			return fmt.Errorf("course service: %s", res.Status)
		default:
			b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
			return backoff.Permanent(fmt.Errorf("course service: %s: %s", res.Status, strings.TrimSpace(string(b))))
		}
		var body completionResp
		if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
			return backoff.Permanent(fmt.Errorf("decode course service response: %w", err))
		}
		satisfied = body.Satisfied
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.InitialWait
	eb.MaxElapsedTime = c.MaxElapsed
	var b backoff.BackOff = eb
	if c.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, c.MaxRetries)
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return false, fmt.Errorf("%w: %v", ErrExhausted, err)
	}
	return satisfied, nil
}
