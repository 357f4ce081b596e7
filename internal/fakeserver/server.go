// Package fakeserver is a scripted stand-in for the game server. It speaks
// the real handshake and login exchange, replays a fixed batch of frames
// after login and answers detail and region requests from a table.
package fakeserver

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ggeimport/ggeimport/internal/network"
	"github.com/ggeimport/ggeimport/internal/protocol"
	"github.com/ggeimport/ggeimport/internal/splitter"
)

// versionRejected is sent for an unexpected version check.
const versionRejected = "<msg t='sys'><body action='apiKO' r='0'></body></msg>"

// Script is what the server says.
type Script struct {
	// Password, when set, is required for the login batch to be sent.
	// A wrong password gets silence, like the real server.
	Password string

	// OnLogin frames are sent right after the login code, in order.
	OnLogin []string

	// Details maps a player id to the gdi payload sent for it.
	Details map[int64]string

	// Regions maps a world number to the gaa payload sent for queries on
	// that world. Worlds without an entry get an empty result.
	Regions map[int]string

	// CloseAfterLogin closes the connection once the login batch is out.
	CloseAfterLogin bool

	// RejectVersion answers every version check with a rejection.
	RejectVersion bool
}

// Server serves Script to every client.
type Server struct {
	script   Script
	listener *network.TCPListener
	logger   zerolog.Logger

	mu       sync.Mutex
	logins   []protocol.Credentials
	requests []protocol.Request
}

// New creates a server for addr. Use "127.0.0.1:0" in tests.
func New(addr string, script Script) *Server {
	s := &Server{
		script: script,
		logger: log.With().Str("component", "fake_server").Logger(),
	}
	s.listener = network.NewTCPListener(addr, s.handle)
	return s
}

// Listen binds the socket.
func (s *Server) Listen(ctx context.Context) error {
	return s.listener.Listen(ctx)
}

// Serve accepts clients until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	return s.listener.Serve(ctx)
}

// Start binds and serves in the background. It returns once the socket is
// bound.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(ctx); err != nil {
		return err
	}
	go func() {
		if err := s.Serve(ctx); err != nil {
			s.logger.Error().Err(err).Msg("serve failed")
		}
	}()
	return nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	if a := s.listener.Addr(); a != nil {
		return a.String()
	}
	return ""
}

// Logins returns the credentials of every login received.
func (s *Server) Logins() []protocol.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Credentials(nil), s.logins...)
}

// Requests returns every client request received.
func (s *Server) Requests() []protocol.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Request(nil), s.requests...)
}

// conn is one client connection.
type conn struct {
	net.Conn
	frames *splitter.Splitter
	logger zerolog.Logger
}

func (c *conn) read() (string, error) {
	seg, err := c.frames.Next()
	if err != nil {
		return "", err
	}
	if seg.Kind == splitter.Suffix {
		if len(seg.Data) > 0 {
			c.logger.Warn().Int("bytes", len(seg.Data)).Msg("client left an unterminated frame")
		}
		return "", fmt.Errorf("client closed the connection")
	}
	return string(seg.Data), nil
}

func (c *conn) send(frame string) error {
	_, err := c.Write(append([]byte(frame), protocol.FrameDelimiter))
	return err
}

func (s *Server) handle(ctx context.Context, nc net.Conn) {
	frames, _ := splitter.New(nc, []byte{protocol.FrameDelimiter})
	c := &conn{
		Conn:   nc,
		frames: frames,
		logger: s.logger.With().Str("remote", nc.RemoteAddr().String()).Logger(),
	}

	if err := s.serve(ctx, c); err != nil {
		c.logger.Debug().Err(err).Msg("client session ended")
	}
}

func (s *Server) serve(ctx context.Context, c *conn) error {
	hello, err := c.read()
	if err != nil {
		return err
	}
	if hello != protocol.VersionCheck || s.script.RejectVersion {
		if err := c.send(versionRejected); err != nil {
			return fmt.Errorf("rejecting version check %q: %w", hello, err)
		}
		return fmt.Errorf("unexpected version check %q", hello)
	}
	if err := c.send(protocol.VersionAccepted); err != nil {
		return err
	}

	loginXML, err := c.read()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(loginXML, "<msg t='sys'><body action='login'") {
		return fmt.Errorf("expected system login, got %q", loginXML)
	}

	code, err := c.read()
	if err != nil {
		return err
	}
	_, creds, err := protocol.ParseLoginCode(code)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.logins = append(s.logins, creds)
	s.mu.Unlock()
	c.logger.Info().Str("user", creds.Username).Msg("client logged in")

	if s.script.Password == "" || creds.Password == s.script.Password {
		for _, f := range s.script.OnLogin {
			if err := c.send(f); err != nil {
				return err
			}
		}
		if s.script.CloseAfterLogin {
			return nil
		}
	} else {
		c.logger.Info().Str("user", creds.Username).Msg("wrong password, staying silent")
	}

	for ctx.Err() == nil {
		frame, err := c.read()
		if err != nil {
			return err
		}
		if err := s.answer(c, frame); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (s *Server) answer(c *conn, frame string) error {
	_, req, err := protocol.ParseRequest(frame)
	if err != nil {
		c.logger.Warn().Err(err).Msg("ignoring client frame")
		return nil
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	switch r := req.(type) {
	case protocol.DetailRequest:
		payload, ok := s.script.Details[r.OccupantID]
		if !ok {
			return nil
		}
		return c.send(protocol.ServerFrame(protocol.TagGdi, payload))
	case protocol.RegionQuery:
		payload, ok := s.script.Regions[r.Region]
		if !ok {
			payload = fmt.Sprintf(`{"KID":%d,"OI":[],"AI":[]}`, r.Region)
		}
		return c.send(protocol.ServerFrame(protocol.TagGaa, payload))
	}
	return nil
}
