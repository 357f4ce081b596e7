package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggeimport/ggeimport/internal/connector"
	"github.com/ggeimport/ggeimport/internal/protocol"
	"github.com/ggeimport/ggeimport/internal/store"
)

func snapshot() store.Snapshot {
	return store.Snapshot{
		Occupants: []store.Occupant{
			{ID: 1, DisplayName: store.String("Jansen"), IsKnownAlly: true},
			{ID: 2},
		},
		Locations: []store.Location{
			{ID: 10, OwnerID: store.Int64(1), Name: store.String("Burcht"), X: store.Int64(5), Y: store.Int64(6), Region: store.RegionPtr(store.RegionSand)},
			{ID: 11, OwnerID: store.Int64(2)},
			{ID: 12},
		},
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, connector.Result{
		LoginConfirmed: false,
		Messages:       map[string]int{"gbd": 1, "kpi": 3},
		Requests:       2,
		Duration:       1500 * time.Millisecond,
	}, snapshot())

	out := buf.String()
	assert.Contains(t, out, "NO (no bulk data received)")
	assert.Contains(t, out, "2 (1 allies)")
	assert.Contains(t, out, "1.5s")
	assert.Less(t, strings.Index(out, "gbd"), strings.Index(out, "kpi"))
}

func TestPrintOccupants(t *testing.T) {
	var buf bytes.Buffer
	PrintOccupants(&buf, snapshot())
	assert.Contains(t, buf.String(), "Jansen")
	assert.Contains(t, buf.String(), "yes")
}

func TestPrintLocationsLimit(t *testing.T) {
	var buf bytes.Buffer
	PrintLocations(&buf, snapshot(), 2)

	out := buf.String()
	assert.Contains(t, out, "Burcht")
	assert.Contains(t, out, "zand")
	assert.Contains(t, out, "... 1 more")
}

func TestPromptCredentials(t *testing.T) {
	in := strings.NewReader("\nx\ngeheim\n")
	var out bytes.Buffer

	creds, err := PromptCredentials(in, &out, "anna")
	require.NoError(t, err)
	assert.Equal(t, protocol.Credentials{Username: "anna", Password: "geheim"}, creds)
	assert.Contains(t, out.String(), "at least 2 characters")
}

func TestPromptCredentialsGivesUp(t *testing.T) {
	_, err := PromptCredentials(strings.NewReader("a\nb\nc\n"), &bytes.Buffer{}, "")
	assert.Error(t, err)
}

func TestPromptCredentialsEOF(t *testing.T) {
	_, err := PromptCredentials(strings.NewReader(""), &bytes.Buffer{}, "")
	assert.Error(t, err)
}
