// Package extract turns structured game messages into location and occupant
// records and merges them into the store.
package extract

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/ggeimport/ggeimport/internal/connector"
	"github.com/ggeimport/ggeimport/internal/protocol"
	"github.com/ggeimport/ggeimport/internal/store"
)

// Extractor is the connector.Handler that feeds the store. Gbd, Gdi and Gaa
// messages are extracted; every other kind is ignored.
type Extractor struct {
	store  *store.Store
	logger zerolog.Logger

	// RequestDetails controls whether a detail request is sent for every
	// occupant learned from bulk data.
	RequestDetails bool

	mu        sync.Mutex
	requested map[int64]bool
}

// New creates an Extractor merging into st.
func New(st *store.Store) *Extractor {
	return &Extractor{
		store:          st,
		logger:         log.With().Str("component", "extract").Logger(),
		RequestDetails: true,
		requested:      make(map[int64]bool),
	}
}

// Handle implements connector.Handler.
func (x *Extractor) Handle(ctx context.Context, msg protocol.Message, send connector.Sender) error {
	if !msg.IsStructured() {
		x.logger.Trace().Str("kind", msg.Kind.String()).Msg("ignoring message")
		return nil
	}

	res, err := msg.Structured()
	if err != nil {
		return err
	}

	var stats Stats
	switch msg.Kind {
	case protocol.KindGbd:
		stats, err = x.Gbd(res)
		if err == nil && x.RequestDetails {
			err = x.requestDetails(ctx, send)
		}
	case protocol.KindGdi:
		stats, err = x.Gdi(res)
	case protocol.KindGaa:
		stats, err = x.Gaa(res)
	}
	if err != nil {
		return err
	}

	x.logger.Debug().
		Str("kind", msg.Kind.String()).
		Int("locations", stats.Locations).
		Int("occupants", stats.Occupants).
		Int("skipped", stats.Skipped).
		Msg("message extracted")
	return nil
}

// requestDetails asks for player detail of every occupant not asked yet.
func (x *Extractor) requestDetails(ctx context.Context, send connector.Sender) error {
	for _, o := range x.store.Occupants() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		x.mu.Lock()
		done := x.requested[o.ID]
		x.requested[o.ID] = true
		x.mu.Unlock()
		if done {
			continue
		}

		if err := send.SendRequest(protocol.DetailRequest{OccupantID: o.ID}); err != nil {
			return err
		}
	}
	return nil
}

// Stats counts what one message contributed.
type Stats struct {
	Locations int
	Occupants int
	Skipped   int
}

// castleEntry reads a "[world, id, x, y, ...]" array. Entries with fewer
// than four elements or a non-numeric id are not castles.
func castleEntry(v gjson.Result) (world, id, x, y gjson.Result, ok bool) {
	arr := v.Array()
	if len(arr) < 4 || arr[1].Type != gjson.Number {
		return
	}
	return arr[0], arr[1], arr[2], arr[3], true
}

// nameFromSlice returns the castle name of a detail array. Two layouts are
// known: 18 elements with the name at 10, and 10 elements with it at 6.
func nameFromSlice(arr []gjson.Result) (string, bool) {
	var v gjson.Result
	switch len(arr) {
	case 18:
		v = arr[10]
	case 10:
		v = arr[6]
	default:
		return "", false
	}
	if v.Type != gjson.String {
		return "", false
	}
	return v.String(), true
}

func optInt(v gjson.Result) *int64 {
	if v.Type != gjson.Number {
		return nil
	}
	return store.Int64(v.Int())
}

func optRegion(v gjson.Result) (*store.Region, error) {
	if v.Type != gjson.Number {
		return nil, nil
	}
	r, err := store.ParseRegion(v.Int())
	if err != nil {
		return nil, err
	}
	return &r, nil
}
