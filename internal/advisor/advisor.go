// Package advisor asks an external service to assess alarm descriptions and
// propose better ones. Advice is optional: callers treat any failure as
// "no advisory" and carry on.
package advisor

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

	domain "github.com/oshokin/alarm-health/internal/domain/alarm"
	"github.com/oshokin/alarm-health/internal/report"
)

// DefaultTimeout bounds a single advisory call.
const DefaultTimeout = 30 * time.Second

// maxResponseSize bounds the advisory response body.
const maxResponseSize = 1 << 20

// DescriptionAdvisor produces description advice for one alarm.
type DescriptionAdvisor interface {
	Advise(ctx context.Context, alarm *domain.Alarm) (*report.Advisory, error)
}

var (
	// errEndpointRequired is returned when no endpoint is configured.
	errEndpointRequired = errors.New("advisor endpoint must be provided")
	// ErrUnexpectedStatus is returned for non-2xx responses.
	ErrUnexpectedStatus = errors.New("unexpected advisor response status")
	// ErrEmptyAdvice is returned when the response carries no assessment.
	ErrEmptyAdvice = errors.New("advisor returned empty advice")
)

type (
	// adviceRequest is the JSON body sent to the advisor.
	adviceRequest struct {
		AlarmARN          string   `json:"alarm_arn"`
		AlarmName         string   `json:"alarm_name"`
		Description       string   `json:"description"`
		Threshold         *float64 `json:"threshold,omitempty"`
		DatapointsToAlarm *int     `json:"datapoints_to_alarm,omitempty"`
		StateValue        string   `json:"state_value,omitempty"`
	}

	// adviceResponse is the JSON body returned by the advisor.
	adviceResponse struct {
		Assessment           string `json:"assessment"`
		SuggestedDescription string `json:"suggested_description"`
	}
)

// HTTPAdvisor calls an advisory service over HTTP with a JSON POST.
type HTTPAdvisor struct {
	// endpoint is the absolute URL requests are posted to.
	endpoint string
	// client performs the requests.
	client *http.Client
	// timeout bounds each call.
	timeout time.Duration
}

// Option configures an HTTPAdvisor.
type Option func(*HTTPAdvisor)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *HTTPAdvisor) {
		if client != nil {
			a.client = client
		}
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(a *HTTPAdvisor) {
		if timeout > 0 {
			a.timeout = timeout
		}
	}
}

// NewHTTPAdvisor creates an advisor posting to endpoint.
func NewHTTPAdvisor(endpoint string, opts ...Option) (*HTTPAdvisor, error) {
	if endpoint == "" {
		return nil, errEndpointRequired
	}

	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid advisor endpoint: %w", err)
	}

	a := &HTTPAdvisor{
		endpoint: endpoint,
		client:   http.DefaultClient,
		timeout:  DefaultTimeout,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Advise posts the alarm definition and returns the service's advice.
func (a *HTTPAdvisor) Advise(ctx context.Context, alarm *domain.Alarm) (*report.Advisory, error) {
	body, err := json.Marshal(&adviceRequest{
		AlarmARN:          alarm.ARN,
		AlarmName:         alarm.Name,
		Description:       alarm.DescriptionText(),
		Threshold:         alarm.Threshold,
		DatapointsToAlarm: alarm.DatapointsToAlarm,
		StateValue:        string(alarm.StateValue),
	})
	if err != nil {
		return nil, fmt.Errorf("encode advice request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build advice request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request advice: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read advice response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var advice adviceResponse
	if err = json.Unmarshal(payload, &advice); err != nil {
		return nil, fmt.Errorf("decode advice response: %w", err)
	}

	if strings.TrimSpace(advice.Assessment) == "" {
		return nil, ErrEmptyAdvice
	}

	return &report.Advisory{
		Assessment:           advice.Assessment,
		SuggestedDescription: advice.SuggestedDescription,
	}, nil
}
