// Package export writes the merged locations as the JSON array consumed by
// the map viewer.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/ggeimport/ggeimport/internal/store"
)

// Record is one location in the output file.
type Record struct {
	Name   string `json:"name"`
	Owner  string `json:"owner"`
	X      int64  `json:"X"`
	Y      int64  `json:"Y"`
	Wereld string `json:"wereld"`
}

// Records converts a snapshot into output records, in id order. Locations
// without both coordinates cannot be placed on the map and are left out.
func Records(snap store.Snapshot) []Record {
	out := make([]Record, 0, len(snap.Locations))
	for _, l := range snap.Locations {
		if l.X == nil || l.Y == nil {
			continue
		}

		owner, ok := snap.OccupantName(l)
		if !ok {
			owner = "0"
		}

		name := fmt.Sprintf("%s_%d", owner, l.ID)
		if l.Name != nil {
			name = *l.Name
		}

		region := store.RegionSpecialEvent
		if l.Region != nil {
			region = *l.Region
		}

		out = append(out, Record{
			Name:   name,
			Owner:  owner,
			X:      *l.X,
			Y:      *l.Y,
			Wereld: region.String(),
		})
	}
	return out
}

// Write encodes the records of snap to w and returns how many were written.
func Write(w io.Writer, snap store.Snapshot) (int, error) {
	records := Records(snap)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return 0, fmt.Errorf("failed to encode records: %w", err)
	}
	return len(records), nil
}

// WriteFile writes the records to path through a temporary file in the
// same directory, so readers never see a half-written file.
func WriteFile(path string, snap store.Snapshot) (int, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := Write(tmp, snap)
	if err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("failed to move output into place: %w", err)
	}

	log.Info().Str("path", path).Int("records", n).Msg("export written")
	return n, nil
}
