package cluster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, raw string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))
	return path
}

func TestReadConfig(t *testing.T) {
	path := writeConfig(t, `{
	 "queue_addr": "127.0.0.1:7000",
	 "workers": ["127.0.0.1:7001", "127.0.0.1:7002", "127.0.0.1:7003"],
	 "weights_path": "weights.json",
	 "num_requests": 5
	}`)
	c, err := ReadConfig(path)
	require.NoError(t, err)
	require.Equal(t, []string{"127.0.0.1:7001", "127.0.0.1:7002"}, c.ComputeWorkers())
	require.Equal(t, "127.0.0.1:7003", c.ProviderAddr())
	require.Equal(t, uint(16), c.FracBits) //default
	require.Equal(t, 1, c.BatchSize)       //default
}

func TestReadConfigRejectsWorkerCount(t *testing.T) {
	path := writeConfig(t, `{"workers": ["127.0.0.1:7001"]}`)
	_, err := ReadConfig(path)
	require.Error(t, err)
}
