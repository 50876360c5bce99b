// Package prowl posts notifications to the Prowl push relay.
package prowl

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"netgrowl/internal/failure"
)

// DefaultEndpoint is the Prowl "add" API.
const DefaultEndpoint = "https://api.prowlapp.com/publicapi/add"

const (
	defaultTimeout = 10 * time.Second
	maxReplyBytes  = 64 << 10
)

var (
	ErrMissingKey = errors.New("missing API key")
	ErrInvalidKey = errors.New("invalid API key")
)

// Request is one relay submission.
type Request struct {
	APIKey      string
	Application string
	Event       string
	Description string
	Priority    int
}

// Client posts to a Prowl-compatible endpoint. The zero value is usable.
type Client struct {
	Endpoint string
	HTTP     *http.Client
	Timeout  time.Duration
}

func New(endpoint string, timeout time.Duration) *Client {
	return &Client{Endpoint: endpoint, Timeout: timeout}
}

func (c *Client) endpoint() string {
	if c == nil || strings.TrimSpace(c.Endpoint) == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

func (c *Client) httpClient() *http.Client {
	if c != nil && c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) timeout() time.Duration {
	if c == nil || c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

// reply is the XML body Prowl answers with, e.g.
//
//	<prowl><success code="200" remaining="999" resetdate="1"/></prowl>
//	<prowl><error code="401">Invalid API key</error></prowl>
type reply struct {
	XMLName xml.Name `xml:"prowl"`
	Success *struct {
		Code      int `xml:"code,attr"`
		Remaining int `xml:"remaining,attr"`
	} `xml:"success"`
	Error *struct {
		Code    int    `xml:"code,attr"`
		Message string `xml:",chardata"`
	} `xml:"error"`
}

// Post submits r once. It never retries.
func (c *Client) Post(ctx context.Context, r Request) error {
	const step = "prowl.post"
	endpoint := c.endpoint()
	if strings.TrimSpace(r.APIKey) == "" {
		return failure.Config(step, ErrMissingKey)
	}

	form := url.Values{}
	form.Set("apikey", r.APIKey)
	form.Set("application", r.Application)
	form.Set("event", r.Event)
	form.Set("description", r.Description)
	form.Set("priority", strconv.Itoa(r.Priority))

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return failure.Config(step, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return failure.Transport(step, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return failure.Transport(step, endpoint, fmt.Errorf("read reply: %w", err))
	}
	return classify(step, endpoint, resp.StatusCode, body)
}

func classify(step, endpoint string, status int, body []byte) error {
	var rep reply
	parsed := xml.Unmarshal(body, &rep) == nil

	code := status
	msg := ""
	if parsed && rep.Error != nil {
		if rep.Error.Code != 0 {
			code = rep.Error.Code
		}
		msg = strings.TrimSpace(rep.Error.Message)
	}

	if code == http.StatusUnauthorized {
		return failure.Auth(step, endpoint, string(body), ErrInvalidKey)
	}
	if status >= 200 && status < 300 && (!parsed || rep.Error == nil) {
		return nil
	}
	if msg == "" {
		msg = http.StatusText(code)
	}
	return failure.Relay(step, endpoint, string(body), fmt.Errorf("status %d: %s", code, msg))
}
