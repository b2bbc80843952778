//Package data loads evaluation batches, either from a JSON export or
//from the raw MNIST files.
package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

var ErrNoMoreBatches = errors.New("data: no more complete batches")

type Data struct {
	X [][]float64 `json:"X"`
	Y []int       `json:"Y"`

	batchSize    int
	numBatches   int
	currentBatch int
}

//LoadJSON reads an exported dataset {"X": [[...]], "Y": [...]}.
func LoadJSON(path string) (*Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("data: parsing %s: %w", path, err)
	}
	if len(d.X) != len(d.Y) {
		return nil, fmt.Errorf("data: %d samples but %d labels", len(d.X), len(d.Y))
	}
	return &d, nil
}

func (d *Data) Init(batchSize int) {
	d.batchSize = batchSize
	d.numBatches = int(math.Floor(float64(len(d.Y)) / float64(batchSize)))
	d.currentBatch = 0
}

//Batch returns the next complete batch.
func (d *Data) Batch() ([][]float64, []int, error) {
	if d.currentBatch >= d.numBatches {
		return nil, nil, ErrNoMoreBatches
	}
	i := d.currentBatch * d.batchSize
	j := (d.currentBatch + 1) * d.batchSize
	d.currentBatch++
	return d.X[i:j], d.Y[i:j], nil
}
