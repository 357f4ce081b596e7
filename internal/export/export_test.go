package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggeimport/ggeimport/internal/store"
)

func sampleStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New()
	st.MergeOccupant(1, store.String("Jansen"), true)
	st.MergeOccupant(2, nil, false)

	for _, l := range []store.Location{
		{ID: 10, OwnerID: store.Int64(1), Name: store.String("Burcht"), X: store.Int64(5), Y: store.Int64(6), Region: store.RegionPtr(store.RegionSand)},
		{ID: 11, OwnerID: store.Int64(2), X: store.Int64(7), Y: store.Int64(8), Region: store.RegionPtr(store.RegionFire)},
		{ID: 12, X: store.Int64(1), Y: store.Int64(2)},
		{ID: 13, OwnerID: store.Int64(1), X: store.Int64(1)},
		{ID: 14, OwnerID: store.Int64(3), X: store.Int64(3), Y: store.Int64(4), Region: store.RegionPtr(store.RegionGrass)},
	} {
		_, err := st.MergeLocation(l)
		require.NoError(t, err)
	}
	return st
}

func TestRecords(t *testing.T) {
	got := Records(sampleStore(t).Snapshot())

	assert.Equal(t, []Record{
		{Name: "Burcht", Owner: "Jansen", X: 5, Y: 6, Wereld: "zand"},
		{Name: "2_11", Owner: "2", X: 7, Y: 8, Wereld: "vuur"},
		{Name: "0_12", Owner: "0", X: 1, Y: 2, Wereld: "special_event"},
		{Name: "3_14", Owner: "3", X: 3, Y: 4, Wereld: "gras"},
	}, got)
}

func TestWriteShape(t *testing.T) {
	var buf bytes.Buffer
	n, err := Write(&buf, sampleStore(t).Snapshot())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Contains(t, buf.String(), `"name": "Burcht"`)
	assert.Contains(t, buf.String(), `"wereld": "zand"`)
	assert.Contains(t, buf.String(), `"X": 5`)
}

func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	n, err := Write(&buf, store.New().Snapshot())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.JSONEq(t, `[]`, buf.String())
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "data2.json")

	n, err := WriteFile(path, sampleStore(t).Snapshot())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"owner": "Jansen"`)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
