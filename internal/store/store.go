// Package store reconciles partial records about game locations and their
// occupants. Records for the same id arrive over time from different message
// kinds; the store merges them field by field and refuses contradictions.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ggeimport/ggeimport/internal/errs"
)

// Region is the world a location belongs to.
type Region int

const (
	RegionGrass Region = iota
	RegionSand
	RegionIce
	RegionFire
	RegionSpecialEvent
)

var regionNames = map[Region]string{
	RegionGrass:        "gras",
	RegionSand:         "zand",
	RegionIce:          "ijs",
	RegionFire:         "vuur",
	RegionSpecialEvent: "special_event",
}

// ParseRegion converts a wire world number. Unknown numbers are a protocol
// violation.
func ParseRegion(n int64) (Region, error) {
	r := Region(n)
	if _, ok := regionNames[r]; !ok {
		return 0, errs.Protocolf("store.region", "unknown world number %d", n)
	}
	return r, nil
}

// String returns the world name as it appears in exported data.
func (r Region) String() string {
	if s, ok := regionNames[r]; ok {
		return s
	}
	return fmt.Sprintf("region(%d)", int(r))
}

// MarshalJSON serializes Region as its world name.
func (r Region) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

// Location is a castle or outpost on the map. Every field but ID is optional
// and may be filled in by later records.
type Location struct {
	ID      int64   `json:"id"`
	OwnerID *int64  `json:"owner_id,omitempty"`
	Name    *string `json:"name,omitempty"`
	X       *int64  `json:"x,omitempty"`
	Y       *int64  `json:"y,omitempty"`
	Region  *Region `json:"region,omitempty"`
}

// Occupant is a player owning locations.
type Occupant struct {
	ID          int64   `json:"id"`
	DisplayName *string `json:"display_name,omitempty"`
	IsKnownAlly bool    `json:"is_known_ally"`
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

// RegionPtr returns a pointer to v.
func RegionPtr(v Region) *Region { return &v }

// ConflictError reports two records for the same location that disagree on
// a field.
type ConflictError struct {
	ID    int64
	Field string
	Old   any
	New   any
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("location %d: conflicting %s: have %v, got %v", e.ID, e.Field, e.Old, e.New)
}

// ErrorKind classifies conflicts for errs.KindOf.
func (e *ConflictError) ErrorKind() errs.Kind {
	return errs.KindConflict
}

// Store holds the merged records of one import run. It is safe for
// concurrent use.
type Store struct {
	mu        sync.Mutex
	locations map[int64]Location
	occupants map[int64]Occupant
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		locations: make(map[int64]Location),
		occupants: make(map[int64]Occupant),
	}
}

// MergeLocation merges candidate into the record with the same id and
// returns the resolved record. A field present on both sides with different
// values yields a *ConflictError and leaves the stored record unchanged.
func (s *Store) MergeLocation(candidate Location) (Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.locations[candidate.ID]
	if !ok {
		stored := candidate.clone()
		s.locations[candidate.ID] = stored
		return stored.clone(), nil
	}

	merged := old.clone()
	var err error
	if merged.OwnerID, err = mergeField(candidate.ID, "owner_id", old.OwnerID, candidate.OwnerID); err != nil {
		return old.clone(), err
	}
	if merged.Name, err = mergeField(candidate.ID, "name", old.Name, candidate.Name); err != nil {
		return old.clone(), err
	}
	if merged.X, err = mergeField(candidate.ID, "x", old.X, candidate.X); err != nil {
		return old.clone(), err
	}
	if merged.Y, err = mergeField(candidate.ID, "y", old.Y, candidate.Y); err != nil {
		return old.clone(), err
	}
	if merged.Region, err = mergeField(candidate.ID, "region", old.Region, candidate.Region); err != nil {
		return old.clone(), err
	}

	s.locations[candidate.ID] = merged
	return merged.clone(), nil
}

func mergeField[T comparable](id int64, field string, old, cur *T) (*T, error) {
	switch {
	case old == nil && cur == nil:
		return nil, nil
	case old == nil:
		v := *cur
		return &v, nil
	case cur == nil || *old == *cur:
		v := *old
		return &v, nil
	default:
		return nil, &ConflictError{ID: id, Field: field, Old: *old, New: *cur}
	}
}

// MergeOccupant records what is known about a player. A provided name
// replaces the stored one; the ally flag never goes back to false.
func (s *Store) MergeOccupant(id int64, name *string, isKnownAlly bool) Occupant {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.occupants[id]
	if !ok {
		o = Occupant{ID: id}
	}
	if name != nil && *name != "" {
		o.DisplayName = String(*name)
	}
	o.IsKnownAlly = o.IsKnownAlly || isKnownAlly
	s.occupants[id] = o
	return o.clone()
}

// Location returns the record for id.
func (s *Store) Location(id int64) (Location, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locations[id]
	return l.clone(), ok
}

// Occupant returns the record for id.
func (s *Store) Occupant(id int64) (Occupant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.occupants[id]
	return o.clone(), ok
}

// Locations returns all locations ordered by id.
func (s *Store) Locations() []Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locationsLocked()
}

// Occupants returns all occupants ordered by id.
func (s *Store) Occupants() []Occupant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.occupantsLocked()
}

// Len returns the number of locations and occupants held.
func (s *Store) Len() (locations, occupants int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locations), len(s.occupants)
}

// Snapshot is a consistent copy of the store contents.
type Snapshot struct {
	Locations []Location `json:"locations"`
	Occupants []Occupant `json:"occupants"`
}

// Snapshot copies both maps under one lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Locations: s.locationsLocked(),
		Occupants: s.occupantsLocked(),
	}
}

// OccupantName returns the display name of the owner of l, falling back to
// the owner id. ok is false when the location has no owner.
func (snap Snapshot) OccupantName(l Location) (string, bool) {
	if l.OwnerID == nil {
		return "", false
	}
	i := sort.Search(len(snap.Occupants), func(i int) bool { return snap.Occupants[i].ID >= *l.OwnerID })
	if i < len(snap.Occupants) && snap.Occupants[i].ID == *l.OwnerID && snap.Occupants[i].DisplayName != nil {
		return *snap.Occupants[i].DisplayName, true
	}
	return fmt.Sprintf("%d", *l.OwnerID), true
}

func (s *Store) locationsLocked() []Location {
	out := make([]Location, 0, len(s.locations))
	for _, l := range s.locations {
		out = append(out, l.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) occupantsLocked() []Occupant {
	out := make([]Occupant, 0, len(s.occupants))
	for _, o := range s.occupants {
		out = append(out, o.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (l Location) clone() Location {
	c := Location{ID: l.ID}
	if l.OwnerID != nil {
		c.OwnerID = Int64(*l.OwnerID)
	}
	if l.Name != nil {
		c.Name = String(*l.Name)
	}
	if l.X != nil {
		c.X = Int64(*l.X)
	}
	if l.Y != nil {
		c.Y = Int64(*l.Y)
	}
	if l.Region != nil {
		c.Region = RegionPtr(*l.Region)
	}
	return c
}

func (o Occupant) clone() Occupant {
	c := o
	if o.DisplayName != nil {
		c.DisplayName = String(*o.DisplayName)
	}
	return c
}
