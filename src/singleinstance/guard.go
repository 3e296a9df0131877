// Package singleinstance keeps one resident LuxSelect per user session. The
// resident owns a loopback TCP port and answers a tiny line protocol:
//
//	PING\n     -> PONG\n
//	TRIGGER\n  -> OK\n | ERROR\n<message>
//
// A second process detects the resident with PING and either exits or, with
// --trigger, asks it to explain the current selection.
package singleinstance

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	residentHost    = "127.0.0.1"
	pingRequest     = "PING\n"
	pongResponse    = "PONG\n"
	triggerRequest  = "TRIGGER\n"
	okResponse      = "OK\n"
	errorResponse   = "ERROR\n"
	requestDeadline = 3 * time.Second
)

// TriggerFunc handles a TRIGGER request from another process.
type TriggerFunc func() error

// Guard is the resident side: it claims the first port of the range and serves it.
type Guard struct {
	mu   sync.Mutex
	lis  net.Listener
	port int
	wg   sync.WaitGroup
}

func NewGuard() *Guard { return &Guard{} }

// Acquire claims the first port of the range. Any listener already bound
// there holds the marker, even one that does not answer PING yet.
func (g *Guard) Acquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lis != nil {
		return true
	}
	start, _ := getPortRange()
	addr := net.JoinHostPort(residentHost, strconv.Itoa(start))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		zap.S().Infow("another instance holds the single-instance port", "addr", addr, "error", err)
		return false
	}
	g.lis = lis
	g.port = start
	zap.S().Infow("single-instance guard acquired", "addr", addr)
	return true
}

// Port returns the bound port, or 0 before Acquire succeeds.
func (g *Guard) Port() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.port
}

// Serve answers requests until ctx ends or the guard is closed. onTrigger may be nil.
func (g *Guard) Serve(ctx context.Context, onTrigger TriggerFunc) error {
	g.mu.Lock()
	lis := g.lis
	g.mu.Unlock()
	if lis == nil {
		return errors.New("singleinstance: serve before acquire")
	}

	stop := context.AfterFunc(ctx, func() { _ = lis.Close() })
	defer stop()

	for {
		c, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				g.wg.Wait()
				return nil
			}
			return fmt.Errorf("singleinstance: accept: %w", err)
		}
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			g.handle(c, onTrigger)
		}()
	}
}

func (g *Guard) handle(c net.Conn, onTrigger TriggerFunc) {
	defer c.Close()
	remote := c.RemoteAddr().String()
	_ = c.SetDeadline(time.Now().Add(requestDeadline))

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		zap.S().Debugw("single-instance request unreadable", "remote", remote, "error", err)
		return
	}
	w := bufio.NewWriter(c)
	defer w.Flush()

	switch line {
	case pingRequest:
		zap.S().Debugw("PING -> PONG", "remote", remote)
		_, _ = w.WriteString(pongResponse)
	case triggerRequest:
		zap.S().Infow("remote trigger", "remote", remote)
		if onTrigger == nil {
			_, _ = w.WriteString(errorResponse + "trigger not supported")
			return
		}
		if err := onTrigger(); err != nil {
			_, _ = w.WriteString(errorResponse + err.Error())
			return
		}
		_, _ = w.WriteString(okResponse)
	default:
		zap.S().Warnw("unknown single-instance request", "remote", remote)
		_, _ = w.WriteString(errorResponse + "unknown request")
	}
}

// Close releases the port.
func (g *Guard) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lis == nil {
		return nil
	}
	err := g.lis.Close()
	g.lis = nil
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
