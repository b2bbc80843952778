//Contains the cluster configuration shared by the serving daemon, the
//three workers and the demo client.
package cluster

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/oblivml/mpcserve/fixed"
)

//Config maps the config.json file. Workers holds exactly three
//host:port endpoints: the two compute workers and the crypto provider.
type Config struct {
	QueueAddr   string   `json:"queue_addr,omitempty"`
	Workers     []string `json:"workers,omitempty"`
	WeightsPath string   `json:"weights_path,omitempty"`
	FracBits    uint     `json:"frac_bits,omitempty"`
	NumRequests int      `json:"num_requests,omitempty"`
	BatchSize   int      `json:"batch_size,omitempty"`
}

func ReadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cluster: reading config: %w", err)
	}
	c := new(Config)
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("cluster: parsing config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.FracBits == 0 {
		c.FracBits = fixed.DefaultFracBits
	}
	if c.BatchSize == 0 {
		c.BatchSize = 1
	}
}

func (c *Config) Validate() error {
	if len(c.Workers) != 3 {
		return fmt.Errorf("cluster: need exactly 3 workers, got %d", len(c.Workers))
	}
	if c.FracBits < 8 || c.FracBits > 30 {
		return fmt.Errorf("cluster: frac_bits %d outside [8,30]", c.FracBits)
	}
	if c.NumRequests < 0 {
		return fmt.Errorf("cluster: negative num_requests")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("cluster: batch_size must be >= 1")
	}
	return nil
}

//ComputeWorkers returns the endpoints of the two share-holding workers.
func (c *Config) ComputeWorkers() []string {
	return c.Workers[:2]
}

//ProviderAddr returns the endpoint of the crypto provider.
func (c *Config) ProviderAddr() string {
	return c.Workers[2]
}
