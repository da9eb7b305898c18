// Package eventapi calls the platform's first-party event API.
package eventapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"telegate/internal/logging"
)

var (
	// ErrAPI matches every error reported by the API envelope.
	ErrAPI = errors.New("eventapi: api error")
	// ErrInvalidParams is returned when parameters fail schema validation.
	ErrInvalidParams = errors.New("eventapi: invalid params")
)

// Result is the data member of a successful response.
type Result json.RawMessage

// Caller issues a single API call.
type Caller interface {
	Call(ctx context.Context, namespace, action string, params map[string]any) (Result, error)
}

// APIError is a failure reported by the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("eventapi: %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrAPI) match.
func (e *APIError) Is(target error) bool { return target == ErrAPI }

type envelope struct {
	Success bool            `json:"success"`
	Error   *string         `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// Config configures an HTTPClient.
type Config struct {
	BaseURL    string
	AuthToken  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// HTTPClient posts form-encoded calls to {BaseURL}/{namespace}/{action}.
type HTTPClient struct {
	base      string
	authToken string
	http      *http.Client
	validator *Validator
	logger    *logging.Logger
}

var _ Caller = (*HTTPClient)(nil)

// NewHTTPClient compiles the request schemas and returns a client.
func NewHTTPClient(cfg Config, logger *logging.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("eventapi: base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("eventapi: parse base url: %w", err)
	}
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("eventapi: %w", err)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &HTTPClient{
		base:      strings.TrimRight(cfg.BaseURL, "/"),
		authToken: cfg.AuthToken,
		http:      hc,
		validator: validator,
		logger:    logger.WithComponent("eventapi"),
	}, nil
}

// Call validates params, posts them and unwraps the response envelope.
func (c *HTTPClient) Call(ctx context.Context, namespace, action string, params map[string]any) (Result, error) {
	if err := c.validator.Validate(namespace, action, params); err != nil {
		return nil, err
	}

	form := encodeForm(params)
	if c.authToken != "" {
		form.Set("auth_token", c.authToken)
	}

	endpoint := c.base + "/" + url.PathEscape(namespace) + "/" + url.PathEscape(action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s/%s: %w", namespace, action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s/%s response: %w", namespace, action, err)
	}

	c.logger.Debug("api call", "namespace", namespace, "action", action,
		"status", resp.StatusCode, "duration", time.Since(start))

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode >= 300 {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, fmt.Errorf("decode %s/%s response: %w", namespace, action, err)
	}
	if !env.Success || resp.StatusCode >= 300 {
		msg := http.StatusText(resp.StatusCode)
		if env.Error != nil {
			msg = *env.Error
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return Result(env.Data), nil
}

// encodeForm flattens params into form values in key order.
func encodeForm(params map[string]any) url.Values {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	form := url.Values{}
	for _, k := range keys {
		switch v := params[k].(type) {
		case nil:
		case string:
			form.Set(k, v)
		case int:
			form.Set(k, strconv.Itoa(v))
		case int64:
			form.Set(k, strconv.FormatInt(v, 10))
		case bool:
			form.Set(k, strconv.FormatBool(v))
		default:
			form.Set(k, fmt.Sprint(v))
		}
	}
	return form
}
