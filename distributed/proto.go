package distributed

import (
	"encoding/json"

	"github.com/oblivml/mpcserve/fixed"
	"github.com/oblivml/mpcserve/mpc"
)

type MsgType int16

const (
	MODEL     MsgType = iota //owner -> compute worker: model shares
	PROVISION                //owner -> provider: deal triples for N requests
	TRIPLES                  //provider -> compute worker: one request's triples
	INPUT                    //client -> compute worker: input share
	OPEN                     //compute worker <-> compute worker: masked opens
	RESULT                   //compute worker -> client: output share
	END                      //owner -> worker: stop serving
	ACK                      //generic reply
	REGISTER                 //client -> queue: ask for a prediction slot
	GRANT                    //queue -> client: slot or refusal
	DONE                     //client -> queue: granted request finished
)

//Envelope wraps every message on the wire.
type Envelope struct {
	Type    MsgType         `json:"type"`
	ReqID   string          `json:"reqId,omitempty"`
	From    int             `json:"from"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewEnvelope(typ MsgType, reqID string, from int, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: typ, ReqID: reqID, From: from, Payload: raw}, nil
}

func UnmarshalPayload(env *Envelope, v interface{}) error {
	return json.Unmarshal(env.Payload, v)
}

//LayerShare is one compute worker's share of a layer: weight and bias
//shares plus the public activation polynomial.
type LayerShare struct {
	W      *fixed.Tensor `json:"w"`
	B      *fixed.Tensor `json:"b"`
	Coeffs []float64     `json:"coeffs,omitempty"`
}

//ModelMsg carries everything a compute worker needs to take part in the
//evaluation: its role, its peer and its half of the model.
type ModelMsg struct {
	Party    int          `json:"party"`
	PeerAddr string       `json:"peerAddr"`
	FracBits uint         `json:"fracBits"`
	Batch    int          `json:"batch"`
	Layers   []LayerShare `json:"layers"`
}

//LayerDims tells the provider the triple shapes one layer consumes.
type LayerDims struct {
	Rows    int `json:"rows"`
	Cols    int `json:"cols"`
	ActMuls int `json:"actMuls"`
}

//ProvisionMsg asks the provider to deal triples for n requests. The
//request bound of the serving queue is enforced here: without a dealt
//bundle a request cannot be evaluated.
type ProvisionMsg struct {
	NumRequests  int         `json:"numRequests"`
	Batch        int         `json:"batch"`
	Layers       []LayerDims `json:"layers"`
	ComputeAddrs []string    `json:"computeAddrs"`
}

//LayerTriples is one party's triples for a single layer of a single
//request: one matrix triple for the kernel product, one elementwise
//triple per multiplication in the activation polynomial.
type LayerTriples struct {
	MatMul *mpc.TripleShare   `json:"matmul"`
	Act    []*mpc.TripleShare `json:"act,omitempty"`
}

//TriplesMsg delivers the triples of request seq to one compute worker.
type TriplesMsg struct {
	Seq    int            `json:"seq"`
	Layers []LayerTriples `json:"layers"`
}

//InputMsg is the client's input share for request seq.
type InputMsg struct {
	Seq int           `json:"seq"`
	X   *fixed.Tensor `json:"x"`
}

//OpenMsg carries one party's masked shares of a Beaver round.
type OpenMsg struct {
	Layer int           `json:"layer"`
	Step  int           `json:"step"`
	E     *fixed.Tensor `json:"e"`
	F     *fixed.Tensor `json:"f"`
}

//ResultMsg returns the worker's output share to the client.
type ResultMsg struct {
	Y   *fixed.Tensor `json:"y,omitempty"`
	Err string        `json:"err,omitempty"`
}

//AckMsg acknowledges MODEL, PROVISION and END.
type AckMsg struct {
	OK  bool   `json:"ok"`
	Err string `json:"err,omitempty"`
}

//RegisterMsg asks the serving queue for a prediction slot.
type RegisterMsg struct{}

//GrantMsg hands the client everything needed to query the compute
//workers directly. The queue never sees the input or the output.
type GrantMsg struct {
	Granted  bool     `json:"granted"`
	Reason   string   `json:"reason,omitempty"`
	Seq      int      `json:"seq"`
	ReqID    string   `json:"reqId"`
	Workers  []string `json:"workers"`
	FracBits uint     `json:"fracBits"`
	Batch    int      `json:"batch"`
	InputDim int      `json:"inputDim"`
}
