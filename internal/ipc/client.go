package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/rbright/soloist/internal/framing"
)

// Result is what a secondary instance learns from one forwarding exchange.
type Result struct {
	// Response holds every byte the primary wrote before closing. Empty is valid.
	Response []byte
}

// Client forwards argument lists to the primary instance listening on Endpoint.
type Client struct {
	Endpoint        string
	ConnectTimeout  time.Duration
	SendTimeout     time.Duration
	ResponseTimeout time.Duration
}

// NewClient creates a client that applies timeout to every phase of the exchange.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		Endpoint:        endpoint,
		ConnectTimeout:  timeout,
		SendTimeout:     timeout,
		ResponseTimeout: timeout,
	}
}

// Send opens one connection, writes args, and waits for the primary to hang up.
func Send(ctx context.Context, endpoint string, args []string, timeout time.Duration) (Result, error) {
	return NewClient(endpoint, timeout).Send(ctx, args)
}

// Send forwards args and collects the raw response.
//
// A KindSendFailed error may still come with a Result holding whatever the
// peer wrote before closing.
func (c *Client) Send(ctx context.Context, args []string) (Result, error) {
	payload, err := framing.Encode(args)
	if err != nil {
		return Result{}, fmt.Errorf("encode arguments: %w", err)
	}

	conn, err := dial(ctx, c.Endpoint, c.ConnectTimeout)
	if err != nil {
		return Result{}, newError(KindConnectFailed, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	var sendErr error
	if err := conn.SetWriteDeadline(time.Now().Add(c.SendTimeout)); err != nil {
		sendErr = newError(KindSendFailed, fmt.Errorf("set write deadline: %w", err))
	} else if _, err := conn.Write(payload); err != nil {
		sendErr = newError(KindSendFailed, err)
	}

	response, readErr := c.readUntilClose(conn)
	result := Result{Response: response}
	if sendErr != nil {
		return result, sendErr
	}
	if readErr != nil {
		return result, readErr
	}
	return result, nil
}

// readUntilClose drains conn; the peer closing is the only end-of-response marker.
func (c *Client) readUntilClose(conn net.Conn) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(c.ResponseTimeout)); err != nil {
		return nil, newError(KindReadFailed, fmt.Errorf("set read deadline: %w", err))
	}

	response, err := io.ReadAll(conn)
	if err == nil {
		return response, nil
	}
	switch {
	case isTimeout(err):
		return response, newError(KindResponseTimeout, err)
	case isReset(err):
		return response, newError(KindPeerDisconnectedPrematurely, err)
	default:
		return response, newError(KindReadFailed, err)
	}
}

// EndpointState is the observed condition of an endpoint.
type EndpointState string

const (
	EndpointFree  EndpointState = "free"
	EndpointLive  EndpointState = "live"
	EndpointStale EndpointState = "stale"
)

// Probe checks whether a listener currently owns endpoint without sending arguments.
func Probe(ctx context.Context, endpoint string, timeout time.Duration) (EndpointState, error) {
	conn, err := dial(ctx, endpoint, timeout)
	if err == nil {
		_ = conn.Close()
		return EndpointLive, nil
	}
	if isAbsent(err) {
		stale, statErr := staleEndpoint(endpoint)
		if statErr != nil {
			return "", fmt.Errorf("probe endpoint: %w", statErr)
		}
		if stale {
			return EndpointStale, nil
		}
		return EndpointFree, nil
	}
	return "", fmt.Errorf("probe endpoint: %w", err)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
