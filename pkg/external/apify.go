package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	maxRetries     = 5
	baseDelayMS    = 500 // Base delay in milliseconds
	defaultBaseURL = "https://api.apify.com/v2"
)

// APIError is a non-2xx response from the Apify API
type APIError struct {
	StatusCode int
	ActorID    string
	Message    string
}

func (e APIError) Error() string {
	return fmt.Sprintf("apify actor %s returned HTTP %d: %s", e.ActorID, e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed if repeated
func (e APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ApifyClient runs Apify actors synchronously and returns their dataset
type ApifyClient struct {
	client      *http.Client
	rateLimiter *rate.Limiter
	token       string
	baseURL     string
	baseDelay   time.Duration
}

// ApifyOptions configures an ApifyClient
type ApifyOptions struct {
	Token             string
	RequestsPerSecond int
	Timeout           time.Duration
	BaseURL           string
}

// NewApifyClient creates an Apify API client
func NewApifyClient(opts ApifyOptions) *ApifyClient {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if opts.Timeout <= 0 {
		// Actor runs are synchronous and can take minutes
		opts.Timeout = 5 * time.Minute
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}

	if opts.Token == "" {
		log.Warn().Msg("APIFY_TOKEN not set, scraping requests will be rejected")
	}

	return &ApifyClient{
		client:      &http.Client{Timeout: opts.Timeout},
		rateLimiter: rate.NewLimiter(rate.Every(time.Second/time.Duration(opts.RequestsPerSecond)), opts.RequestsPerSecond),
		token:       opts.Token,
		baseURL:     strings.TrimSuffix(opts.BaseURL, "/"),
		baseDelay:   baseDelayMS * time.Millisecond,
	}
}

// retryWithBackoff implements exponential backoff retry logic
func retryWithBackoff(ctx context.Context, baseDelay time.Duration, operation func() ([]json.RawMessage, error), operationName string) ([]json.RawMessage, error) {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		items, err := operation()
		if err == nil {
			return items, nil
		}

		// Client errors will not improve on retry
		var apiErr APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err

		if attempt == maxRetries-1 {
			break
		}

		// Calculate exponential backoff delay: baseDelay * 2^attempt
		delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt)))

		log.Warn().
			Err(err).
			Str("operation", operationName).
			Int("attempt", attempt+1).
			Dur("retry_delay", delay).
			Msg("operation failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	log.Error().Err(lastErr).Msgf("%s failed after %d attempts", operationName, maxRetries)
	return nil, lastErr
}

// RunActor starts actorID with input, waits for it to finish and returns
// the items of its default dataset.
func (a *ApifyClient) RunActor(ctx context.Context, actorID string, input any) ([]json.RawMessage, error) {
	if actorID == "" {
		return nil, errors.New("actor ID cannot be empty")
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode actor input: %w", err)
	}

	endpoint := fmt.Sprintf("%s/acts/%s/run-sync-get-dataset-items?format=json&clean=true",
		a.baseURL, url.PathEscape(actorID))

	operation := func() ([]json.RawMessage, error) {
		if err := a.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+a.token)

		res, err := a.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}
		defer res.Body.Close()

		raw, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		if res.StatusCode < 200 || res.StatusCode > 299 {
			return nil, APIError{StatusCode: res.StatusCode, ActorID: actorID, Message: apifyErrorMessage(raw)}
		}

		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("failed to parse dataset items: %w", err)
		}
		return items, nil
	}

	items, err := retryWithBackoff(ctx, a.baseDelay, operation, "RunActor:"+actorID)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("actor_id", actorID).Int("items", len(items)).Msg("actor run completed")
	return items, nil
}

func apifyErrorMessage(body []byte) string {
	var wrapper struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error.Message != "" {
		return wrapper.Error.Message
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
