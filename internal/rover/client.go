package rover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RequestTimeout bounds every outbound call to the rover.
const RequestTimeout = 3 * time.Second

// ErrMalformedTelemetry is returned when a /status body cannot be decoded or
// is missing required fields.
var ErrMalformedTelemetry = errors.New("malformed telemetry")

// Client is a typed client for the rover control API. All methods issue a
// single GET with a bounded timeout and report only transport-level success;
// the rover sends no acknowledgement beyond the HTTP status.
type Client struct {
	base string
	http *http.Client
}

// NewClient builds a client for the rover at address. A bare host[:port] is
// given an http scheme.
func NewClient(address string) *Client {
	base := strings.TrimRight(address, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: RequestTimeout},
	}
}

// BaseURL returns the normalized base URL requests are issued against.
func (c *Client) BaseURL() string { return c.base }

// SetMode pushes a mode change to the rover.
func (c *Client) SetMode(ctx context.Context, m Mode) error {
	return c.get(ctx, "/mode", url.Values{"mode": {string(m)}})
}

// Move pushes a movement command to the rover.
func (c *Client) Move(ctx context.Context, d Direction) error {
	return c.get(ctx, "/action", url.Values{"go": {string(d)}})
}

// SetSpeed pushes a speed setting to the rover.
func (c *Client) SetSpeed(ctx context.Context, val int) error {
	return c.get(ctx, "/speed", url.Values{"val": {strconv.Itoa(val)}})
}

// Status pulls one telemetry readout from the rover.
func (c *Client) Status(ctx context.Context) (Telemetry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/status", nil)
	if err != nil {
		return Telemetry{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Telemetry{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Telemetry{}, fmt.Errorf("%w: status %d", ErrMalformedTelemetry, resp.StatusCode)
	}
	return decodeTelemetry(resp.Body)
}

// statusPayload uses pointers so absent fields are distinguishable from
// zero values.
type statusPayload struct {
	Battery  *float64 `json:"battery"`
	RSSI     *int     `json:"rssi"`
	Command  *string  `json:"command"`
	Distance *float64 `json:"distance"`
	Mode     string   `json:"mode"`
}

func decodeTelemetry(r io.Reader) (Telemetry, error) {
	var p statusPayload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return Telemetry{}, fmt.Errorf("%w: %v", ErrMalformedTelemetry, err)
	}
	if p.Battery == nil || p.RSSI == nil || p.Command == nil {
		return Telemetry{}, fmt.Errorf("%w: missing required fields", ErrMalformedTelemetry)
	}
	t := Telemetry{
		Battery:  *p.Battery,
		RSSI:     *p.RSSI,
		Command:  *p.Command,
		Distance: p.Distance,
	}
	if p.Mode != "" {
		m := Mode(p.Mode)
		if !m.Valid() {
			return Telemetry{}, fmt.Errorf("%w: unknown mode %q", ErrMalformedTelemetry, p.Mode)
		}
		t.Mode = m
	}
	return t, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}
