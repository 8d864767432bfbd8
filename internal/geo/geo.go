// Package geo looks up the location and network owner of an address.
// Private and loopback addresses are answered locally; everything else is a
// single HTTP request to an ip-api.com compatible endpoint.
package geo

import (
	"RedWire/internal/model"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"
)

// DefaultEndpoint is the public ip-api.com JSON endpoint.
const DefaultEndpoint = "http://ip-api.com/json"

// DefaultTimeout bounds a single lookup.
const DefaultTimeout = 5 * time.Second

// Info is the result of a lookup.
type Info struct {
	Address string `json:"address"`
	Private bool   `json:"private"`
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
	ISP     string `json:"isp,omitempty"`
	Org     string `json:"org,omitempty"`
}

// String renders the info as shown in the address detail panel.
func (i Info) String() string {
	if i.Private {
		return fmt.Sprintf("IP: %s\nStatus: Private/Local Address", i.Address)
	}
	return fmt.Sprintf("IP: %s\nCountry: %s\nCity: %s\nISP: %s\nOrg: %s",
		i.Address, orNA(i.Country), orNA(i.City), orNA(i.ISP), orNA(i.Org))
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// StatusError is returned when the service answered but refused the query.
type StatusError struct {
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lookup status %q: %s", e.Status, e.Message)
}

// DisplayError renders a failed lookup for the address detail panel.
func DisplayError(addr string, err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		reason := se.Message
		if reason == "" {
			reason = "Unknown"
		}
		return fmt.Sprintf("IP: %s\nStatus: Failed\nReason: %s", addr, reason)
	}
	return fmt.Sprintf("IP: %s\nStatus: Error\nReason: API request failed.", addr)
}

// HTTPClient is the subset of *http.Client used for lookups.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client performs lookups. The zero value is not usable; use NewClient.
type Client struct {
	endpoint string
	timeout  time.Duration
	http     HTTPClient
}

// NewClient creates a client for endpoint. Empty or non-positive arguments
// select the defaults.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		timeout:  timeout,
		http:     &http.Client{Timeout: timeout},
	}
}

// SetHTTPClient replaces the transport, e.g. in tests.
func (c *Client) SetHTTPClient(h HTTPClient) {
	c.http = h
}

// IsPrivate reports whether addr is a private, loopback, link-local or
// unspecified address.
func IsPrivate(addr string) bool {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	ip = ip.Unmap()
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Query   string `json:"query"`
	Country string `json:"country"`
	City    string `json:"city"`
	ISP     string `json:"isp"`
	Org     string `json:"org"`
}

// Lookup resolves addr. Private addresses never leave the process. Failures
// are returned as *model.LookupError and are never retried.
func (c *Client) Lookup(ctx context.Context, addr string) (Info, error) {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return Info{}, &model.LookupError{Address: addr, Err: err}
	}
	if IsPrivate(addr) {
		return Info{Address: addr, Private: true}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/"+ip.String(), nil)
	if err != nil {
		return Info{}, &model.LookupError{Address: addr, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Info{}, &model.LookupError{Address: addr, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return Info{}, &model.LookupError{Address: addr, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Info{}, &model.LookupError{Address: addr, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if body.Status != "success" {
		return Info{}, &model.LookupError{Address: addr, Err: &StatusError{Status: body.Status, Message: body.Message}}
	}

	info := Info{
		Address: body.Query,
		Country: body.Country,
		City:    body.City,
		ISP:     body.ISP,
		Org:     body.Org,
	}
	if info.Address == "" {
		info.Address = addr
	}
	return info, nil
}

// LookupAsync runs Lookup on its own goroutine and hands the result to fn.
// It never blocks the caller.
func (c *Client) LookupAsync(addr string, fn func(Info, error)) {
	go func() {
		info, err := c.Lookup(context.Background(), addr)
		if fn != nil {
			fn(info, err)
		}
	}()
}
