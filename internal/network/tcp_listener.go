package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ConnHandler serves one accepted connection. The connection is closed when
// the handler returns.
type ConnHandler func(ctx context.Context, conn net.Conn)

// TCPListener accepts game clients and serves each one in its own
// goroutine. It backs the local test server.
type TCPListener struct {
	addr    string
	handler ConnHandler
	logger  zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewTCPListener creates a listener for addr. Use port 0 to pick a free
// port and read it back with Addr after Listen.
func NewTCPListener(addr string, handler ConnHandler) *TCPListener {
	return &TCPListener{
		addr:    addr,
		handler: handler,
		logger:  log.With().Str("component", "tcp_listener").Logger(),
	}
}

// Listen binds the socket.
func (l *TCPListener) Listen(ctx context.Context) error {
	lc := ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to start TCP listener on %s: %w", l.addr, err)
	}

	l.mu.Lock()
	l.listener = ln
	l.mu.Unlock()

	l.logger.Info().Str("addr", ln.Addr().String()).Msg("TCP listener started")
	return nil
}

// Serve accepts connections until ctx is cancelled, then waits for the
// handlers to finish.
func (l *TCPListener) Serve(ctx context.Context) error {
	l.mu.Lock()
	ln := l.listener
	l.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("listener not bound")
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	defer l.wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				l.logger.Info().Msg("TCP listener stopping")
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		l.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("new client connection")

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer conn.Close()

			// Cancellation closes the connection so blocked reads return.
			done := make(chan struct{})
			defer close(done)
			go func() {
				select {
				case <-ctx.Done():
					conn.Close()
				case <-done:
				}
			}()

			l.handler(ctx, conn)
		}()
	}
}

// Start binds and serves.
func (l *TCPListener) Start(ctx context.Context) error {
	if err := l.Listen(ctx); err != nil {
		return err
	}
	return l.Serve(ctx)
}

// Addr returns the bound address, or nil before Listen.
func (l *TCPListener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// Stop closes the listening socket.
func (l *TCPListener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener != nil {
		return l.listener.Close()
	}
	return nil
}
