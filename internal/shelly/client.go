package shelly

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Default connection settings for Gen1 devices.
const (
	// DefaultHost is the device's factory AP-mode address.
	DefaultHost = "192.168.33.1"

	// DefaultTimeout bounds each HTTP round trip to the device.
	DefaultTimeout = 1 * time.Second
)

// turn parameter values for the relay endpoint.
const (
	turnOn  = "on"
	turnOff = "off"
)

// Config contains actuator connection options.
// These map to the actuator section of config.yaml.
type Config struct {
	// Host is the device address, host or host:port. The client always
	// speaks plain HTTP; Gen1 devices expose no TLS endpoint.
	Host string

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration
}

// Client is a stateless HTTP facade over a Shelly Gen1 relay device.
//
// It owns no state beyond the remote device; every read goes to the
// device and every write returns the device's *reported* resulting
// state, which is authoritative over the requested one.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a device client. Zero-value config fields fall back to
// DefaultHost and DefaultTimeout.
func New(cfg Config) *Client {
	host := cfg.Host
	if host == "" {
		host = DefaultHost
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: "http://" + host,
		http:    &http.Client{Timeout: timeout},
	}
}

// Status fetches the device's full status document.
func (c *Client) Status(ctx context.Context) (*StatusDocument, error) {
	var doc StatusDocument
	if err := c.getJSON(ctx, "status", c.baseURL+"/status", &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Relays returns the on/off state of every relay on the device,
// indexed by relay id.
func (c *Client) Relays(ctx context.Context) ([]bool, error) {
	doc, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}
	states := make([]bool, len(doc.Relays))
	for i, r := range doc.Relays {
		states[i] = r.IsOn
	}
	return states, nil
}

// RelayState returns a single relay's reported state, derived from the
// status document. Returns ErrUnknownRelay if the index is not present
// on the device.
func (c *Client) RelayState(ctx context.Context, relayID int) (bool, error) {
	if relayID < 0 {
		return false, fmt.Errorf("%w: %d", ErrUnknownRelay, relayID)
	}
	doc, err := c.Status(ctx)
	if err != nil {
		return false, err
	}
	if relayID >= len(doc.Relays) {
		return false, fmt.Errorf("%w: %d (device has %d)", ErrUnknownRelay, relayID, len(doc.Relays))
	}
	return doc.Relays[relayID].IsOn, nil
}

// SetRelay commands the relay to the requested state and returns the
// state the device reports afterwards. The two can differ if the device
// refuses the command (e.g. an input override is active).
//
// Unknown relay indexes are rejected by the device itself and surface
// as a TransportError carrying the device's HTTP status.
func (c *Client) SetRelay(ctx context.Context, relayID int, on bool) (bool, error) {
	if relayID < 0 {
		return false, fmt.Errorf("%w: %d", ErrUnknownRelay, relayID)
	}
	turn := turnOff
	if on {
		turn = turnOn
	}
	url := fmt.Sprintf("%s/relay/%d?turn=%s", c.baseURL, relayID, turn)

	var rs RelayStatus
	if err := c.getJSON(ctx, "relay", url, &rs); err != nil {
		return false, err
	}
	return rs.IsOn, nil
}

// Toggle reads the relay's current state and commands the opposite,
// returning the device's reported resulting state.
func (c *Client) Toggle(ctx context.Context, relayID int) (bool, error) {
	current, err := c.RelayState(ctx, relayID)
	if err != nil {
		return false, err
	}
	return c.SetRelay(ctx, relayID, !current)
}

// HealthCheck verifies the device is reachable and answering.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.Status(ctx)
	return err
}

// getJSON issues a GET and decodes the JSON response body into v.
// Reachability and non-OK statuses become TransportError; an OK response
// with an unparsable body becomes ErrDecode.
func (c *Client) getJSON(ctx context.Context, op, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &TransportError{Op: op, URL: url, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, URL: url, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // Best-effort close on a fully-read body

	if resp.StatusCode != http.StatusOK {
		return &TransportError{Op: op, URL: url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDecode, op, err)
	}
	return nil
}
