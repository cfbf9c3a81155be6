// Package railapi is the HTTP client for the rail reservation API: one
// POST for a train's route description, one GET per station pair for
// seat availability, and the status-to-error taxonomy the rest of the
// service dispatches on.
package railapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/trainseat/matrix/internal/model"
)

const defaultTimeout = 10 * time.Second

const maxBodyBytes = 1 << 20

const (
	routesPath = "/train-routes"
	tripsPath  = "/bookings/search-trips-v2"
)

// DefaultSeatClass is the seat class sent on availability searches.
const DefaultSeatClass = "SHULOV"

// Client calls the rail reservation API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Tests inject
// short timeouts through this.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the given API base URL, e.g.
// "https://railspaapi.shohoz.com/v1.0/web".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchTrainData retrieves the route description for a train model on
// an API-format date (YYYY-MM-DD). Returns nil when the response
// carries no data subobject; callers decide whether that is fatal.
func (c *Client) FetchTrainData(ctx context.Context, trainModel, apiDate string) (*TrainData, error) {
	body, err := json.Marshal(map[string]string{
		"model":               trainModel,
		"departure_date_time": apiDate,
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data *TrainData `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+routesPath, nil, body, &payload); err != nil {
		return nil, err
	}
	return payload.Data, nil
}

// FetchTrip searches seat availability between two cities on the given
// journey date (DD-MMM-YYYY). The search endpoint rejects anonymous
// calls, so auth must carry a token and device key.
func (c *Client) FetchTrip(ctx context.Context, fromCity, toCity, journeyDate, seatClass string, auth model.AuthCredentials) ([]Train, error) {
	q := url.Values{}
	q.Set("from_city", fromCity)
	q.Set("to_city", toCity)
	q.Set("date_of_journey", journeyDate)
	q.Set("seat_class", seatClass)

	headers := map[string]string{
		"Authorization": "Bearer " + auth.Token,
		"x-device-key":  auth.DeviceKey,
	}

	var payload struct {
		Data struct {
			Trains []Train `json:"trains"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, c.baseURL+tripsPath+"?"+q.Encode(), headers, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Data.Trains, nil
}

// do sends one request and decodes the response into out. A 5xx answer
// is retried exactly once; every other status is classified in a
// single pass. Network-level errors are returned as-is and never
// retried here.
func (c *Client) do(ctx context.Context, method, rawURL string, headers map[string]string, body []byte, out interface{}) error {
	resp, err := c.send(ctx, method, rawURL, headers, body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 500 {
		drain(resp)
		resp, err = c.send(ctx, method, rawURL, headers, body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			drain(resp)
			return ErrBackendUnavailable
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := classifyStatus(resp.StatusCode, rawURL, raw); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, rawURL string, headers map[string]string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.httpClient.Do(req)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	resp.Body.Close()
}

// classifyStatus maps a non-2xx response onto the error taxonomy.
// 429 and 403 are throttling, 401 is credential trouble sorted by the
// phrase the API uses, anything else keeps its status code.
func classifyStatus(code int, rawURL string, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	switch code {
	case http.StatusTooManyRequests:
		msg := firstErrorMessage(body)
		if msg == "" {
			msg = "Too many requests. Please slow down."
		}
		return &RateLimitError{Message: msg}
	case http.StatusUnauthorized:
		text := string(body)
		if strings.Contains(text, "Invalid User Access Token!") {
			return ErrTokenExpired
		}
		if strings.Contains(text, "not authorized") || strings.Contains(text, "Please login first") {
			return ErrDeviceKeyExpired
		}
		return ErrTokenExpired
	case http.StatusForbidden:
		return &RateLimitError{Message: "Currently we are experiencing high traffic. Please try again after some time."}
	default:
		return &StatusError{StatusCode: code, URL: rawURL}
	}
}

// firstErrorMessage extracts the first message from the API's error
// payload shape {"error":{"messages":[...]}}. The messages field is a
// list on most responses but shows up as a bare string on a few.
func firstErrorMessage(body []byte) string {
	var list struct {
		Error struct {
			Messages []string `json:"messages"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &list); err == nil && len(list.Error.Messages) > 0 {
		return strings.TrimSpace(list.Error.Messages[0])
	}

	var single struct {
		Error struct {
			Messages string `json:"messages"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &single); err == nil {
		return strings.TrimSpace(single.Error.Messages)
	}
	return ""
}
