// Package cli renders import results as terminal tables and asks for
// credentials when none are configured.
package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/ggeimport/ggeimport/internal/connector"
	"github.com/ggeimport/ggeimport/internal/store"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	return tw
}

// PrintSummary writes the run totals and the per-kind message counts.
func PrintSummary(w io.Writer, res connector.Result, snap store.Snapshot) {
	fmt.Fprintln(w)

	login := "yes"
	if !res.LoginConfirmed {
		login = "NO (no bulk data received)"
	}

	allies := 0
	for _, o := range snap.Occupants {
		if o.IsKnownAlly {
			allies++
		}
	}

	tw := newTable(w, []string{"Item", "Value"})
	tw.Append([]string{"Login confirmed", login})
	tw.Append([]string{"Duration", res.Duration.Round(time.Millisecond).String()})
	tw.Append([]string{"Requests sent", strconv.Itoa(res.Requests)})
	tw.Append([]string{"Locations", strconv.Itoa(len(snap.Locations))})
	tw.Append([]string{"Occupants", fmt.Sprintf("%d (%d allies)", len(snap.Occupants), allies)})
	tw.Render()

	if len(res.Messages) == 0 {
		return
	}

	kinds := make([]string, 0, len(res.Messages))
	for k := range res.Messages {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	fmt.Fprintln(w)
	tw = newTable(w, []string{"Message", "Count"})
	for _, k := range kinds {
		tw.Append([]string{k, strconv.Itoa(res.Messages[k])})
	}
	tw.Render()
}

// PrintOccupants writes one row per occupant with its location count.
func PrintOccupants(w io.Writer, snap store.Snapshot) {
	owned := make(map[int64]int)
	for _, l := range snap.Locations {
		if l.OwnerID != nil {
			owned[*l.OwnerID]++
		}
	}

	fmt.Fprintln(w)
	tw := newTable(w, []string{"ID", "Name", "Ally", "Locations"})
	for _, o := range snap.Occupants {
		name := "-"
		if o.DisplayName != nil {
			name = *o.DisplayName
		}
		ally := ""
		if o.IsKnownAlly {
			ally = "yes"
		}
		tw.Append([]string{
			strconv.FormatInt(o.ID, 10),
			name,
			ally,
			strconv.Itoa(owned[o.ID]),
		})
	}
	tw.Render()
}

// PrintLocations writes up to limit locations; limit <= 0 prints all.
func PrintLocations(w io.Writer, snap store.Snapshot, limit int) {
	fmt.Fprintln(w)
	tw := newTable(w, []string{"ID", "Name", "Owner", "X", "Y", "World"})

	for i, l := range snap.Locations {
		if limit > 0 && i >= limit {
			break
		}
		owner, ok := snap.OccupantName(l)
		if !ok {
			owner = "-"
		}
		tw.Append([]string{
			strconv.FormatInt(l.ID, 10),
			orDash(l.Name),
			owner,
			intOrDash(l.X),
			intOrDash(l.Y),
			regionOrDash(l.Region),
		})
	}
	tw.Render()

	if limit > 0 && len(snap.Locations) > limit {
		fmt.Fprintf(w, "  ... %d more\n", len(snap.Locations)-limit)
	}
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func intOrDash(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}

func regionOrDash(r *store.Region) string {
	if r == nil {
		return "-"
	}
	return r.String()
}
