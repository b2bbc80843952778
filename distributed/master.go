package distributed

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/oblivml/mpcserve/fixed"
	"github.com/oblivml/mpcserve/model"
	"github.com/oblivml/mpcserve/mpc"
)

//Master is the model owner's view of the cluster. It splits the model
//into shares, pushes them to the compute workers, asks the provider to
//deal triples, and tears the session down. It never touches request
//data: inputs and outputs flow directly between client and workers.
type Master struct {
	ComputeAddrs []string //exactly two
	ProviderAddr string
	FracBits     uint
	Batch        int

	dims []LayerDims
}

func NewMaster(computeAddrs []string, providerAddr string, fracBits uint, batch int) (*Master, error) {
	if len(computeAddrs) != 2 {
		return nil, fmt.Errorf("distributed: need 2 compute workers, got %d", len(computeAddrs))
	}
	if batch < 1 {
		return nil, errors.New("distributed: batch must be >= 1")
	}
	return &Master{
		ComputeAddrs: computeAddrs,
		ProviderAddr: providerAddr,
		FracBits:     fracBits,
		Batch:        batch,
	}, nil
}

//ShareModel splits every kernel and bias into fresh additive shares and
//sends each compute worker its half together with the public activation
//polynomials.
func (m *Master) ShareModel(n *model.Network) error {
	shares := [2][]LayerShare{}
	m.dims = make([]LayerDims, n.NumLayers())
	for i := range n.Layers {
		w, b := n.Layers[i].Build(m.Batch)
		fw := fixed.FromDense(w, m.FracBits)
		fb := fixed.FromDense(b, m.FracBits)
		w0, w1 := mpc.Split(fw)
		b0, b1 := mpc.Split(fb)
		coeffs := n.Layers[i].Activation.Poly()
		shares[0] = append(shares[0], LayerShare{W: w0, B: b0, Coeffs: coeffs})
		shares[1] = append(shares[1], LayerShare{W: w1, B: b1, Coeffs: coeffs})
		m.dims[i] = LayerDims{
			Rows:    n.Layers[i].Weight.Rows,
			Cols:    n.Layers[i].Weight.Cols,
			ActMuls: n.Layers[i].Activation.MulDepth(),
		}
	}

	for party := 0; party < 2; party++ {
		msg := ModelMsg{
			Party:    party,
			PeerAddr: m.ComputeAddrs[1-party],
			FracBits: m.FracBits,
			Batch:    m.Batch,
			Layers:   shares[party],
		}
		log.Infof("[*] master -- sharing model with worker %d at %s", party, m.ComputeAddrs[party])
		if err := m.command(m.ComputeAddrs[party], MODEL, msg); err != nil {
			return err
		}
	}
	return nil
}

//Provision asks the crypto provider to deal triples for numRequests
//forward passes. Must run after ShareModel.
func (m *Master) Provision(numRequests int) error {
	if m.dims == nil {
		return errors.New("distributed: provision before model was shared")
	}
	log.Infof("[*] master -- provisioning %d requests at %s", numRequests, m.ProviderAddr)
	return m.command(m.ProviderAddr, PROVISION, ProvisionMsg{
		NumRequests:  numRequests,
		Batch:        m.Batch,
		Layers:       m.dims,
		ComputeAddrs: m.ComputeAddrs,
	})
}

//End tells every worker to stop serving.
func (m *Master) End() error {
	var firstErr error
	for _, addr := range append(append([]string{}, m.ComputeAddrs...), m.ProviderAddr) {
		if err := m.command(addr, END, AckMsg{}); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Master) command(addr string, typ MsgType, payload interface{}) error {
	env, err := NewEnvelope(typ, "", -1, payload)
	if err != nil {
		return err
	}
	if err := RoundTripAck(addr, env); err != nil {
		return fmt.Errorf("distributed: %s: %w", addr, err)
	}
	return nil
}
