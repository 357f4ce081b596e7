// Package connector drives one import session against the game server:
// connect, handshake, login, collect, query, and dispatch every classified
// message to a Handler.
package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ggeimport/ggeimport/internal/errs"
	"github.com/ggeimport/ggeimport/internal/events"
	"github.com/ggeimport/ggeimport/internal/network"
	"github.com/ggeimport/ggeimport/internal/protocol"
	"github.com/ggeimport/ggeimport/internal/store"
)

// Sender accepts outbound requests while a session is running.
type Sender interface {
	SendRequest(req protocol.Request) error
}

// Handler consumes classified messages. Keep-alive and chat messages are
// filtered out before Handle is called. A returned error aborts the run.
type Handler interface {
	Handle(ctx context.Context, msg protocol.Message, send Sender) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg protocol.Message, send Sender) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, msg protocol.Message, send Sender) error {
	return f(ctx, msg, send)
}

// Options configures a GameConnector.
type Options struct {
	Addr        string
	Session     network.Options
	Credentials protocol.Credentials

	// RegionQueries are sent after the server has gone quiet following
	// login, and answered during a second collection round.
	RegionQueries []protocol.RegionQuery

	// Store, when set, is counted into the import summary event.
	Store *store.Store
}

// Result summarises a finished run.
type Result struct {
	LoginConfirmed bool           `json:"login_confirmed"`
	Messages       map[string]int `json:"messages"`
	Requests       int            `json:"requests"`
	Duration       time.Duration  `json:"duration"`
}

// Status is a point-in-time view of the connector for the API.
type Status struct {
	Phase          events.Phase   `json:"phase"`
	LoginConfirmed bool           `json:"login_confirmed"`
	Messages       map[string]int `json:"messages"`
	Requests       int            `json:"requests"`
	Session        *network.Stats `json:"session,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
}

// GameConnector runs one import session. It is not reusable.
type GameConnector struct {
	mu sync.Mutex

	opts     Options
	handler  Handler
	eventBus *events.EventBus
	logger   zerolog.Logger

	session        *network.Session
	phase          events.Phase
	loginConfirmed bool
	counts         map[protocol.Kind]int
	requests       int
	startedAt      time.Time
}

// NewGameConnector creates a connector. eventBus may be nil.
func NewGameConnector(opts Options, handler Handler, eventBus *events.EventBus) *GameConnector {
	if opts.Addr == "" {
		opts.Addr = protocol.DefaultServerAddr
	}
	return &GameConnector{
		opts:     opts,
		handler:  handler,
		eventBus: eventBus,
		counts:   make(map[protocol.Kind]int),
		logger: log.With().
			Str("component", "game_connector").
			Str("addr", opts.Addr).
			Logger(),
	}
}

// Run performs the whole session. Cancelling ctx closes the socket, which
// unblocks any receive in progress. The returned Result is valid even when
// err is not nil.
func (c *GameConnector) Run(ctx context.Context) (Result, error) {
	c.mu.Lock()
	c.startedAt = time.Now()
	c.mu.Unlock()

	err := c.run(ctx)
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("import cancelled: %w", ctx.Err())
	}

	res := c.result()
	if err != nil {
		c.setPhase(ctx, events.PhaseFailed)
	} else {
		c.setPhase(ctx, events.PhaseDone)
	}

	summary := events.ImportSummaryPayload{
		LoginConfirmed: res.LoginConfirmed,
		Messages:       res.Messages,
		Duration:       res.Duration,
	}
	if c.opts.Store != nil {
		summary.Locations, summary.Occupants = c.opts.Store.Len()
	}
	if err != nil {
		summary.Error = err.Error()
	}
	c.emit(ctx, events.EventImportFinished, summary)

	return res, err
}

func (c *GameConnector) run(ctx context.Context) error {
	c.setPhase(ctx, events.PhaseConnecting)
	c.logger.Info().Msg("connecting to game server")

	session, err := network.Dial(ctx, c.opts.Addr, c.opts.Session)
	if err != nil {
		return err
	}
	defer session.Close()

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	sessionInfo := events.SessionPayload{
		Addr: c.opts.Addr,
		Room: session.Room(),
		User: c.opts.Credentials.Username,
	}
	c.emit(ctx, events.EventSessionConnected, sessionInfo)

	// Cancellation closes the socket.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("context cancelled, closing session")
			session.Close()
		case <-stop:
		}
	}()

	c.setPhase(ctx, events.PhaseHandshake)
	if err := session.Handshake(); err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}
	c.emit(ctx, events.EventHandshakeAccepted, sessionInfo)

	c.setPhase(ctx, events.PhaseLogin)
	if err := session.Login(c.opts.Credentials); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	c.emit(ctx, events.EventLoginSent, sessionInfo)

	c.setPhase(ctx, events.PhaseCollecting)
	if err := c.collect(ctx, session, 1); err != nil {
		return err
	}

	if len(c.opts.RegionQueries) == 0 {
		return nil
	}
	if session.State() == network.Closed {
		c.logger.Warn().Int("queries", len(c.opts.RegionQueries)).Msg("server closed the session, region queries skipped")
		return nil
	}

	c.setPhase(ctx, events.PhaseQuerying)
	for _, q := range c.opts.RegionQueries {
		if err := c.SendRequest(q); err != nil {
			return fmt.Errorf("region query failed: %w", err)
		}
	}
	return c.collect(ctx, session, 2)
}

// collect drains the session into the handler until the server goes quiet.
func (c *GameConnector) collect(ctx context.Context, session *network.Session, round int) error {
	n := 0
	err := session.Drain(func(msg protocol.Message) error {
		n++
		return c.dispatch(ctx, msg)
	})
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	c.logger.Info().Int("round", round).Int("messages", n).Msg("server went quiet")
	c.emit(ctx, events.EventDrainComplete, events.DrainPayload{Round: round, Messages: n})
	return nil
}

// dispatch counts, filters and hands one message to the handler.
func (c *GameConnector) dispatch(ctx context.Context, msg protocol.Message) error {
	c.mu.Lock()
	c.counts[msg.Kind]++
	first := msg.Kind == protocol.KindGbd && !c.loginConfirmed
	if first {
		c.loginConfirmed = true
	}
	c.mu.Unlock()

	c.emit(ctx, events.EventMessageReceived, events.MessagePayload{
		Kind:  msg.Kind.String(),
		Tag:   string(msg.Tag),
		Bytes: len(msg.Payload),
	})

	if first {
		c.logger.Info().Msg("bulk data received, login confirmed")
		c.emit(ctx, events.EventLoginConfirmed, events.SessionPayload{
			Addr: c.opts.Addr,
			User: c.opts.Credentials.Username,
		})
	}

	switch {
	case msg.Kind == protocol.KindEmpty:
		return nil
	case msg.IsNoise():
		c.logger.Trace().Str("kind", msg.Kind.String()).Msg("noise dropped")
		return nil
	case msg.Kind == protocol.KindUnrecognized:
		c.logger.Debug().Str("tag", string(msg.Tag)).Int("len", len(msg.Payload)).Msg("unrecognized message")
	}

	if err := c.handler.Handle(ctx, msg, c); err != nil {
		var conflict *store.ConflictError
		if errors.As(err, &conflict) {
			c.logger.Error().
				Int64("location", conflict.ID).
				Str("field", conflict.Field).
				Interface("old", conflict.Old).
				Interface("new", conflict.New).
				Msg("reconciliation conflict")
			c.emit(ctx, events.EventConflict, events.ConflictPayload{
				LocationID: conflict.ID,
				Field:      conflict.Field,
				Old:        fmt.Sprint(conflict.Old),
				New:        fmt.Sprint(conflict.New),
			})
		}
		return fmt.Errorf("handling %s: %w", msg.Kind, err)
	}
	return nil
}

// SendRequest implements Sender on the running session.
func (c *GameConnector) SendRequest(req protocol.Request) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return errs.Transport("connector.send", errs.ErrSessionClosed)
	}

	if err := session.SendRequest(req); err != nil {
		return err
	}

	c.mu.Lock()
	c.requests++
	c.mu.Unlock()

	c.logger.Debug().Str("tag", string(req.Tag())).Interface("request", req).Msg("request sent")
	c.emit(context.Background(), events.EventRequestSent, events.RequestPayload{
		Tag:    string(req.Tag()),
		Detail: fmt.Sprintf("%+v", req),
	})
	return nil
}

// LoginConfirmed reports whether a bulk data message has arrived. The
// protocol has no explicit login reply; without bulk data the login most
// likely failed.
func (c *GameConnector) LoginConfirmed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginConfirmed
}

// Status returns the current state of the run.
func (c *GameConnector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Phase:          c.phase,
		LoginConfirmed: c.loginConfirmed,
		Messages:       c.countsLocked(),
		Requests:       c.requests,
		StartedAt:      c.startedAt,
	}
	if c.session != nil {
		stats := c.session.Stats()
		st.Session = &stats
	}
	return st
}

func (c *GameConnector) result() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Result{
		LoginConfirmed: c.loginConfirmed,
		Messages:       c.countsLocked(),
		Requests:       c.requests,
		Duration:       time.Since(c.startedAt),
	}
}

func (c *GameConnector) countsLocked() map[string]int {
	out := make(map[string]int, len(c.counts))
	for k, n := range c.counts {
		out[k.String()] = n
	}
	return out
}

func (c *GameConnector) setPhase(ctx context.Context, p events.Phase) {
	c.mu.Lock()
	from := c.phase
	c.phase = p
	c.mu.Unlock()

	if from != p {
		c.emit(ctx, events.EventPhaseChanged, events.PhasePayload{From: from, To: p})
	}
}

func (c *GameConnector) emit(ctx context.Context, t events.EventType, payload interface{}) {
	if c.eventBus == nil {
		return
	}
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	c.eventBus.Emit(ctx, events.Event{
		Type:    t,
		Source:  "game_connector",
		Payload: payload,
	})
}
