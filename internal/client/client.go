// Package client implements the request/response half of spec §4.F: one
// connection, one request, one response.
package client

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/allen1211/kvsd/internal/protocol"
)

// Client dials addr fresh for every call, mirroring the server's one
// request per connection contract.
type Client struct {
	addr    string
	timeout time.Duration
}

// New returns a Client targeting addr. A zero timeout means no deadline.
func New(addr string, timeout time.Duration) *Client {
	return &Client{addr: addr, timeout: timeout}
}

func (c *Client) roundTrip(req protocol.Request) (protocol.Response, error) {
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("connecting to %s: %w", c.addr, err)
	}
	defer conn.Close()

	if c.timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return protocol.Response{}, err
		}
	}

	w := bufio.NewWriter(conn)
	if err := protocol.WriteRequest(w, req); err != nil {
		return protocol.Response{}, fmt.Errorf("sending request: %w", err)
	}
	if err := w.Flush(); err != nil {
		return protocol.Response{}, fmt.Errorf("sending request: %w", err)
	}

	resp, err := protocol.ReadResponse(bufio.NewReader(conn))
	if err != nil {
		return protocol.Response{}, fmt.Errorf("reading response: %w", err)
	}
	return resp, nil
}

// Get returns the value for key, and whether it was present.
func (c *Client) Get(key string) (value string, found bool, err error) {
	resp, err := c.roundTrip(protocol.Request{Kind: protocol.KindGet, Key: key})
	if err != nil {
		return "", false, err
	}
	switch resp.Kind {
	case protocol.KindFound:
		return resp.Value, true, nil
	case protocol.KindNotFound:
		return "", false, nil
	case protocol.KindErr:
		return "", false, fmt.Errorf("%s", resp.Err)
	default:
		return "", false, fmt.Errorf("unexpected response kind %d", resp.Kind)
	}
}

// Set upserts key to value.
func (c *Client) Set(key, value string) error {
	resp, err := c.roundTrip(protocol.Request{Kind: protocol.KindSet, Key: key, Value: value})
	if err != nil {
		return err
	}
	if resp.Kind == protocol.KindErr {
		return fmt.Errorf("%s", resp.Err)
	}
	return nil
}

// Remove deletes key. It returns an error (text "Key not found") if key
// was absent.
func (c *Client) Remove(key string) error {
	resp, err := c.roundTrip(protocol.Request{Kind: protocol.KindRemove, Key: key})
	if err != nil {
		return err
	}
	if resp.Kind == protocol.KindErr {
		return fmt.Errorf("%s", resp.Err)
	}
	return nil
}

// Stats fetches a snapshot of server-side engine statistics.
func (c *Client) Stats() (protocol.StatsPayload, error) {
	resp, err := c.roundTrip(protocol.Request{Kind: protocol.KindStats})
	if err != nil {
		return protocol.StatsPayload{}, err
	}
	switch resp.Kind {
	case protocol.KindStatsOk:
		return resp.Stats, nil
	case protocol.KindErr:
		return protocol.StatsPayload{}, fmt.Errorf("%s", resp.Err)
	default:
		return protocol.StatsPayload{}, fmt.Errorf("unexpected response kind %d", resp.Kind)
	}
}
