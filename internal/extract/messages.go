package extract

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/ggeimport/ggeimport/internal/errs"
	"github.com/ggeimport/ggeimport/internal/store"
)

// Gbd extracts the alliance members from bulk login data. Path
// ain.A.M[] holds {OID, N, AP, VP}; AP lists main castles and VP support
// castles, both as [world, id, x, y, ...]. Members are known allies.
func (x *Extractor) Gbd(res gjson.Result) (Stats, error) {
	var stats Stats

	members := res.Get("ain.A.M")
	if !members.IsArray() {
		x.logger.Debug().Msg("bulk data has no alliance members")
		return stats, nil
	}

	for _, m := range members.Array() {
		oid := m.Get("OID")
		if oid.Type != gjson.Number {
			stats.Skipped++
			continue
		}
		ownerID := oid.Int()

		var name *string
		if n := m.Get("N"); n.Type == gjson.String {
			name = store.String(n.String())
		}
		x.store.MergeOccupant(ownerID, name, true)
		stats.Occupants++

		for _, list := range []string{"AP", "VP"} {
			for _, entry := range m.Get(list).Array() {
				world, id, cx, cy, ok := castleEntry(entry)
				if !ok {
					stats.Skipped++
					continue
				}
				region, err := optRegion(world)
				if err != nil {
					return stats, err
				}
				if _, err := x.store.MergeLocation(store.Location{
					ID:      id.Int(),
					OwnerID: store.Int64(ownerID),
					X:       optInt(cx),
					Y:       optInt(cy),
					Region:  region,
				}); err != nil {
					return stats, err
				}
				stats.Locations++
			}
		}
	}
	return stats, nil
}

// Gdi extracts castle names from a player detail message. Path gcl.C[]
// holds one entry per world: {KID, AI[]{AI: [...]}} with the castle id at
// index 3. The optional O object names the player.
func (x *Extractor) Gdi(res gjson.Result) (Stats, error) {
	var stats Stats

	var ownerID *int64
	if o := res.Get("O"); o.IsObject() {
		if oid := o.Get("OID"); oid.Type == gjson.Number {
			ownerID = store.Int64(oid.Int())
			var name *string
			if n := o.Get("N"); n.Type == gjson.String {
				name = store.String(n.String())
			}
			x.store.MergeOccupant(*ownerID, name, false)
			stats.Occupants++
		}
	}

	worlds := res.Get("gcl.C")
	if !worlds.Exists() {
		return stats, nil
	}
	if !worlds.IsArray() {
		return stats, errs.Protocolf("extract.gdi", "gcl.C is not an array")
	}

	for _, w := range worlds.Array() {
		region, err := optRegion(w.Get("KID"))
		if err != nil {
			return stats, err
		}

		for _, c := range w.Get("AI").Array() {
			arr := c.Get("AI").Array()
			if len(arr) < 4 || arr[3].Type != gjson.Number {
				stats.Skipped++
				continue
			}

			loc := store.Location{ID: arr[3].Int(), OwnerID: ownerID, Region: region}
			if name, ok := nameFromSlice(arr); ok {
				loc.Name = store.String(name)
			} else {
				x.logger.Warn().
					Int64("id", loc.ID).
					Int("len", len(arr)).
					Msg("unknown castle detail layout, name skipped")
			}

			if _, err := x.store.MergeLocation(loc); err != nil {
				return stats, err
			}
			stats.Locations++
		}
	}
	return stats, nil
}

// Gaa extracts a region query result. KID is the world; OI[] lists the
// owners in the rectangle with their castles as [?, id, x, y]; AI[] lists
// the map objects, castles being arrays of at least ten elements with x at
// index 1, y at 2 and the id at 3.
func (x *Extractor) Gaa(res gjson.Result) (Stats, error) {
	var stats Stats

	kid := res.Get("KID")
	if kid.Type != gjson.Number {
		return stats, errs.Protocolf("extract.gaa", "missing world number")
	}
	region, err := optRegion(kid)
	if err != nil {
		return stats, err
	}

	for _, o := range res.Get("OI").Array() {
		oid := o.Get("OID")
		if oid.Type != gjson.Number {
			stats.Skipped++
			continue
		}
		ownerID := oid.Int()

		var name *string
		if n := o.Get("N"); n.Type == gjson.String {
			name = store.String(n.String())
		}
		x.store.MergeOccupant(ownerID, name, false)
		stats.Occupants++

		for _, list := range []string{"AP", "VP"} {
			for _, entry := range o.Get(list).Array() {
				_, id, cx, cy, ok := castleEntry(entry)
				if !ok {
					stats.Skipped++
					continue
				}
				if _, err := x.store.MergeLocation(store.Location{
					ID:      id.Int(),
					OwnerID: store.Int64(ownerID),
					X:       optInt(cx),
					Y:       optInt(cy),
					Region:  region,
				}); err != nil {
					return stats, err
				}
				stats.Locations++
			}
		}
	}

	for _, obj := range res.Get("AI").Array() {
		arr := obj.Array()
		if len(arr) < 10 || arr[3].Type != gjson.Number {
			stats.Skipped++
			continue
		}

		loc := store.Location{
			ID: arr[3].Int(),
			X:  optInt(arr[1]),
			Y:  optInt(arr[2]),
		}
		if name, ok := nameFromSlice(arr); ok {
			loc.Name = store.String(name)
		}
		if _, err := x.store.MergeLocation(loc); err != nil {
			return stats, fmt.Errorf("map object %d: %w", loc.ID, err)
		}
		stats.Locations++
	}
	return stats, nil
}
