package model

import (
	"encoding/json"
	"fmt"
	"os"
)

//json wrapper, matching the exported weights file
type networkJSON struct {
	Layers    []Layer `json:"layers"`
	NumLayers int     `json:"numLayers,omitempty"`
}

//Load reads a pretrained-weights file. The file carries every kernel in
//row-major form together with biases and per-layer activation specs.
func Load(path string) (*Network, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: reading weights: %w", err)
	}
	var nj networkJSON
	if err := json.Unmarshal(raw, &nj); err != nil {
		return nil, fmt.Errorf("model: parsing weights: %w", err)
	}
	if nj.NumLayers != 0 && nj.NumLayers != len(nj.Layers) {
		return nil, fmt.Errorf("model: numLayers %d does not match %d layers", nj.NumLayers, len(nj.Layers))
	}
	n := &Network{Layers: nj.Layers}
	if err := n.validate(); err != nil {
		return nil, err
	}
	return n, nil
}

//Save writes the network back in the weights-file format. Used by tests
//and by tooling that exports plaintext checkpoints.
func Save(n *Network, path string) error {
	raw, err := json.MarshalIndent(networkJSON{Layers: n.Layers, NumLayers: len(n.Layers)}, "", " ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0644)
}
