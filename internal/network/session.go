// Package network implements the TCP session to the game server and the
// listener used by the local test server.
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ggeimport/ggeimport/internal/errs"
	"github.com/ggeimport/ggeimport/internal/protocol"
	"github.com/ggeimport/ggeimport/internal/splitter"
)

// State is the lifecycle position of a Session.
type State int

const (
	Unestablished State = iota
	HandshakeSent
	Established
	Closed
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case Unestablished:
		return "unestablished"
	case HandshakeSent:
		return "handshake_sent"
	case Established:
		return "established"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Default timeouts.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 2 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
)

// Options configures a Session. Zero values select the defaults.
type Options struct {
	Room           string
	Language       string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	// Now stamps the login token. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Room == "" {
		o.Room = protocol.DefaultRoom
	}
	if o.Language == "" {
		o.Language = protocol.DefaultLanguage
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Session is one connection to the game server. Frames are received by a
// single reader; sends may come from any goroutine.
type Session struct {
	mu     sync.Mutex
	conn   net.Conn
	frames *splitter.Splitter
	opts   Options
	logger zerolog.Logger

	state State

	// Timestamps
	connectedAt  time.Time
	lastActivity time.Time

	framesIn  int64
	framesOut int64
}

// Dial connects to addr and returns an Unestablished session.
func Dial(ctx context.Context, addr string, opts Options) (*Session, error) {
	opts = opts.withDefaults()

	d := net.Dialer{Timeout: opts.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errs.Transport("session.dial", fmt.Errorf("failed to connect to %s: %w", addr, err))
	}
	return NewSession(conn, opts), nil
}

// NewSession wraps an existing net.Conn.
func NewSession(conn net.Conn, opts Options) *Session {
	opts = opts.withDefaults()

	// The separator is a non-empty constant, so New cannot fail.
	frames, _ := splitter.New(conn, []byte{protocol.FrameDelimiter})

	now := time.Now()
	return &Session{
		conn:         conn,
		frames:       frames,
		opts:         opts,
		connectedAt:  now,
		lastActivity: now,
		logger: log.With().
			Str("component", "session").
			Str("remote", conn.RemoteAddr().String()).
			Logger(),
	}
}

// Handshake sends the version check and waits for exactly one reply, which
// must be the acceptance literal. Any failure closes the session.
func (s *Session) Handshake() error {
	const op = "session.handshake"

	if err := s.expect(op, Unestablished); err != nil {
		return err
	}

	if err := s.write(op, protocol.BuildVersionCheck()); err != nil {
		return err
	}

	reply, err := s.receive(op)
	if err != nil {
		s.closeWith("handshake failed")
		return err
	}
	// An unterminated reply means the server hung up mid-handshake.
	if s.State() == Closed {
		return errs.Transport(op, fmt.Errorf("%w: reply %q not terminated", errs.ErrSessionClosed, reply))
	}

	if !protocol.IsVersionAccepted(reply) {
		s.closeWith("handshake rejected")
		return errs.Protocol(op, fmt.Errorf("%w: got %q", errs.ErrHandshakeRejected, reply))
	}

	s.setState(HandshakeSent)
	s.logger.Debug().Msg("version check accepted")
	return nil
}

// Login sends the system login and the login code. It does not wait for a
// reply: the protocol has none, and success is inferred from the first bulk
// data message.
func (s *Session) Login(creds protocol.Credentials) error {
	const op = "session.login"

	if err := s.expect(op, HandshakeSent); err != nil {
		return err
	}

	token := protocol.CredentialToken(s.opts.Now(), s.opts.Language)
	if err := s.write(op, protocol.BuildLoginXML(s.opts.Room, token)); err != nil {
		return err
	}

	code, err := protocol.BuildLoginCode(s.opts.Room, s.opts.Language, creds)
	if err != nil {
		return errs.Protocol(op, err)
	}
	if err := s.write(op, code); err != nil {
		return err
	}

	s.setState(Established)
	s.logger.Info().Str("user", creds.Username).Str("room", s.opts.Room).Msg("login sent")
	return nil
}

// Send writes one frame followed by the NUL delimiter.
func (s *Session) Send(frame string) error {
	const op = "session.send"
	if err := s.expect(op, Established); err != nil {
		return err
	}
	return s.write(op, frame)
}

// SendRequest renders req for the session's room and sends it.
func (s *Session) SendRequest(req protocol.Request) error {
	frame, err := protocol.Render(s.opts.Room, req)
	if err != nil {
		return errs.Protocol("session.send_request", err)
	}
	return s.Send(frame)
}

// Receive blocks for the next frame, at most ReadTimeout. A timeout is
// returned as a transport error and leaves the session usable; end of
// stream and other I/O errors close it.
func (s *Session) Receive() (string, error) {
	const op = "session.receive"
	switch st := s.State(); st {
	case HandshakeSent, Established:
	case Closed:
		return "", errs.Transport(op, errs.ErrSessionClosed)
	default:
		return "", errs.New(errs.KindProtocol, op, fmt.Errorf("%w: %s", errs.ErrInvalidState, st))
	}
	return s.receive(op)
}

// Next receives and classifies the next frame.
func (s *Session) Next() (protocol.Message, error) {
	raw, err := s.Receive()
	if err != nil {
		return protocol.Message{}, err
	}
	return protocol.Classify(raw), nil
}

// Drain delivers messages to fn until the server goes quiet for a full
// ReadTimeout or the stream ends. Neither ends the drain with an error.
func (s *Session) Drain(fn func(protocol.Message) error) error {
	for {
		msg, err := s.Next()
		if err != nil {
			if errs.IsTimeout(err) || errors.Is(err, io.EOF) || errors.Is(err, errs.ErrSessionClosed) {
				return nil
			}
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}

func (s *Session) receive(op string) (string, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout)); err != nil {
		s.closeWith("set deadline failed")
		return "", errs.Transport(op, err)
	}

	seg, err := s.frames.Next()
	if err != nil {
		if errs.IsTimeout(err) {
			return "", errs.Transport(op, err)
		}
		if s.State() == Closed {
			return "", errs.Transport(op, errs.ErrSessionClosed)
		}
		s.closeWith("read failed")
		return "", errs.Transport(op, err)
	}

	if seg.Kind == splitter.Suffix {
		s.closeWith("server closed the stream")
		if len(seg.Data) == 0 {
			return "", errs.Transport(op, io.EOF)
		}
		s.logger.Warn().Int("bytes", len(seg.Data)).Msg("unterminated frame at end of stream")
	}

	s.mu.Lock()
	s.lastActivity = time.Now()
	s.framesIn++
	s.mu.Unlock()

	frame := string(seg.Data)
	s.logger.Trace().Int("len", len(frame)).Msg("frame received")
	return frame, nil
}

func (s *Session) write(op, frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Closed {
		return errs.Transport(op, errs.ErrSessionClosed)
	}

	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, protocol.FrameDelimiter)

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
		s.closeLocked("set deadline failed")
		return errs.Transport(op, err)
	}
	if _, err := s.conn.Write(buf); err != nil {
		s.closeLocked("write failed")
		return errs.Transport(op, fmt.Errorf("failed to write frame: %w", err))
	}

	s.lastActivity = time.Now()
	s.framesOut++
	return nil
}

func (s *Session) expect(op string, want State) error {
	st := s.State()
	if st == want {
		return nil
	}
	if st == Closed {
		return errs.Transport(op, errs.ErrSessionClosed)
	}
	return errs.New(errs.KindProtocol, op, fmt.Errorf("%w: %s, want %s", errs.ErrInvalidState, st, want))
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Closed {
		s.state = st
	}
}

func (s *Session) closeWith(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(reason)
}

func (s *Session) closeLocked(reason string) error {
	if s.state == Closed {
		return nil
	}
	s.state = Closed
	s.logger.Info().Str("reason", reason).Msg("session closed")
	return s.conn.Close()
}

// Close closes the socket, unblocking any receive in progress. It is safe
// to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked("closed by caller")
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats is a point-in-time view of session activity.
type Stats struct {
	State        string    `json:"state"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
	FramesIn     int64     `json:"frames_in"`
	FramesOut    int64     `json:"frames_out"`
}

// Stats returns activity counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		State:        s.state.String(),
		ConnectedAt:  s.connectedAt,
		LastActivity: s.lastActivity,
		FramesIn:     s.framesIn,
		FramesOut:    s.framesOut,
	}
}

// Room returns the room the session logs into.
func (s *Session) Room() string {
	return s.opts.Room
}

// RemoteAddr returns the remote address of the connection.
func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}
