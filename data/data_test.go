package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadJSONAndBatching(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	raw := `{"X": [[1,2],[3,4],[5,6],[7,8],[9,10]], "Y": [0,1,0,1,0]}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))

	d, err := LoadJSON(path)
	require.NoError(t, err)
	d.Init(2)

	x, y, err := d.Batch()
	require.NoError(t, err)
	require.Equal(t, [][]float64{{1, 2}, {3, 4}}, x)
	require.Equal(t, []int{0, 1}, y)

	_, _, err = d.Batch()
	require.NoError(t, err)

	//fifth sample does not fill a batch
	_, _, err = d.Batch()
	require.ErrorIs(t, err, ErrNoMoreBatches)
}

func TestLoadJSONRejectsMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"X": [[1]], "Y": [0,1]}`), 0644))
	_, err := LoadJSON(path)
	require.Error(t, err)
}
