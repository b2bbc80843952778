package serving

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/oblivml/mpcserve/distributed"
	"github.com/oblivml/mpcserve/fixed"
	"github.com/oblivml/mpcserve/mpc"
	"github.com/oblivml/mpcserve/plainUtils"
)

//Client is a querier. Each prediction registers with the owner's queue,
//splits the input into two shares and sends one share to each compute
//worker, so neither the owner nor a single worker ever sees the input.
type Client struct {
	QueueAddr string
}

func NewClient(queueAddr string) *Client {
	return &Client{QueueAddr: queueAddr}
}

//register asks the queue for a slot.
func (c *Client) register() (*distributed.GrantMsg, error) {
	env, err := distributed.NewEnvelope(distributed.REGISTER, "", -1, distributed.RegisterMsg{})
	if err != nil {
		return nil, err
	}
	reply, err := distributed.RoundTrip(c.QueueAddr, env)
	if err != nil {
		return nil, fmt.Errorf("serving: registering with queue: %w", err)
	}
	if reply.Type != distributed.GRANT {
		return nil, fmt.Errorf("serving: unexpected reply type %d", reply.Type)
	}
	var grant distributed.GrantMsg
	if err := distributed.UnmarshalPayload(reply, &grant); err != nil {
		return nil, err
	}
	if !grant.Granted {
		return nil, fmt.Errorf("%w: %s", ErrExhausted, grant.Reason)
	}
	return &grant, nil
}

//reportDone tells the queue the granted request is over, successfully
//or not, so the owner knows when every granted slot has run its course.
func (c *Client) reportDone(reqID string) {
	env, err := distributed.NewEnvelope(distributed.DONE, reqID, -1, distributed.AckMsg{OK: true})
	if err != nil {
		return
	}
	if err := distributed.SendOnce(c.QueueAddr, env); err != nil {
		log.Warnf("[*] client -- reporting completion of %s: %v", reqID, err)
	}
}

//PredictBatch runs one secure prediction over a batch of flattened
//samples. The batch size must match the cluster's configured one.
func (c *Client) PredictBatch(X [][]float64) ([][]float64, error) {
	grant, err := c.register()
	if err != nil {
		return nil, err
	}
	defer c.reportDone(grant.ReqID)
	if len(X) != grant.Batch {
		return nil, fmt.Errorf("serving: batch of %d samples, cluster expects %d", len(X), grant.Batch)
	}
	for i := range X {
		if len(X[i]) != grant.InputDim {
			return nil, fmt.Errorf("serving: sample %d has %d features, model expects %d", i, len(X[i]), grant.InputDim)
		}
	}

	fx := fixed.FromDense(plainUtils.NewDense(X), grant.FracBits)
	shares := make([]*fixed.Tensor, 2)
	shares[0], shares[1] = mpc.Split(fx)

	results := make([]*fixed.Tensor, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.query(grant.Workers[i], grant.ReqID, grant.Seq, shares[i])
		}(i)
	}
	wg.Wait()
	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			return nil, fmt.Errorf("serving: worker %d: %w", i, errs[i])
		}
	}

	out := mpc.Reconstruct(results[0], results[1]).ToDense(grant.FracBits)
	return plainUtils.MatToArray(out), nil
}

//Predict is PredictBatch for the common single-sample configuration.
func (c *Client) Predict(x []float64) ([]float64, error) {
	scores, err := c.PredictBatch([][]float64{x})
	if err != nil {
		return nil, err
	}
	return scores[0], nil
}

func (c *Client) query(addr, reqID string, seq int, share *fixed.Tensor) (*fixed.Tensor, error) {
	env, err := distributed.NewEnvelope(distributed.INPUT, reqID, -1, distributed.InputMsg{Seq: seq, X: share})
	if err != nil {
		return nil, err
	}
	reply, err := distributed.RoundTrip(addr, env)
	if err != nil {
		return nil, err
	}
	if reply.Type != distributed.RESULT {
		return nil, fmt.Errorf("unexpected reply type %d", reply.Type)
	}
	var res distributed.ResultMsg
	if err := distributed.UnmarshalPayload(reply, &res); err != nil {
		return nil, err
	}
	if res.Err != "" {
		return nil, fmt.Errorf("%s", res.Err)
	}
	return res.Y, nil
}
