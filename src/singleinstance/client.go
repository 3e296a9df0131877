package singleinstance

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// ErrNoResident is returned by Trigger when no resident answered PING.
var ErrNoResident = errors.New("singleinstance: no running instance")

// DetectResidentPort scans the port range and returns (port, true) if a resident responds to PING.
func DetectResidentPort(ctx context.Context) (int, bool) {
	timeout := dialTimeout(ctx, 300*time.Millisecond)
	start, end := getPortRange()
	for port := start; port <= end; port++ {
		if ctx.Err() != nil {
			return 0, false
		}
		addr := net.JoinHostPort(residentHost, strconv.Itoa(port))
		if ping(addr, timeout) {
			return port, true
		}
	}
	return 0, false
}

func dialTimeout(ctx context.Context, def time.Duration) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < def {
			return d
		}
	}
	return def
}

func ping(addr string, timeout time.Duration) bool {
	resp, err := roundTrip(addr, pingRequest, timeout)
	return err == nil && resp == pongResponse
}

// roundTrip sends one request line and returns everything the peer wrote.
func roundTrip(addr, request string, timeout time.Duration) (string, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))
	if _, err := io.WriteString(conn, request); err != nil {
		return "", err
	}
	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	rest, _ := io.ReadAll(br)
	return status + string(rest), nil
}

type Client struct {
	// Timeout bounds the trigger round trip; the resident handles it synchronously.
	Timeout time.Duration
}

func NewClient() *Client { return &Client{Timeout: 2 * time.Second} }

// Trigger asks the resident to explain the selection under the cursor.
func (c *Client) Trigger(ctx context.Context) error {
	port, ok := DetectResidentPort(ctx)
	if !ok {
		return ErrNoResident
	}
	addr := net.JoinHostPort(residentHost, strconv.Itoa(port))
	resp, err := roundTrip(addr, triggerRequest, dialTimeout(ctx, c.Timeout))
	if err != nil {
		return fmt.Errorf("singleinstance: trigger %s: %w", addr, err)
	}
	switch {
	case resp == okResponse:
		return nil
	case strings.HasPrefix(resp, errorResponse):
		return fmt.Errorf("singleinstance: resident refused trigger: %s", strings.TrimPrefix(resp, errorResponse))
	default:
		return fmt.Errorf("singleinstance: unexpected response %q", resp)
	}
}
